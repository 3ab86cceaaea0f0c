// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry keeps the live database clients scripts reach by id.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"mongolark.io/driver"
	"mongolark.io/errkind"
)

const (
	namespace = "mongolark"
	subsystem = "registry"
)

// Entry is a registered client. Entries are not modified after insertion.
type Entry struct {
	ID          string
	URI         string
	Client      driver.Client
	ConnectedAt time.Time
}

// Registry maps opaque ids to clients. It is safe for concurrent use,
// lookups only take the read lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	connected prometheus.Gauge
	lookups   *prometheus.CounterVec
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "clients",
				Help:      "The current number of registered clients.",
			},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "lookups_total",
				Help:      "Total number of client lookups by result.",
			},
			[]string{"result"},
		),
	}
}

// Insert registers client under a fresh id. Ids are never reused.
func (r *Registry) Insert(ctx context.Context, uri string, client driver.Client) *Entry {
	e := &Entry{
		ID:          uuid.NewString(),
		URI:         uri,
		Client:      client,
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	r.entries[e.ID] = e
	n := len(r.entries)
	r.mu.Unlock()

	r.connected.Set(float64(n))
	logr.FromContextOrDiscard(ctx).V(1).Info("client registered", "id", e.ID, "uri", driver.Redact(uri))
	return e
}

// Lookup returns the entry for id or a ClientNotFound error.
func (r *Registry) Lookup(id string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		r.lookups.WithLabelValues("miss").Inc()
		return nil, errkind.Errorf(errkind.ClientNotFound, "", "client %q not found", id)
	}
	r.lookups.WithLabelValues("hit").Inc()
	return e, nil
}

// Client returns the client registered under id.
func (r *Registry) Client(id string) (driver.Client, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	return e.Client, nil
}

// Entries returns a snapshot of the registered entries ordered by
// connection time.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	es := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		es = append(es, e)
	}
	r.mu.RUnlock()

	sort.Slice(es, func(i, j int) bool {
		return es[i].ConnectedAt.Before(es[j].ConnectedAt)
	})
	return es
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove unregisters id and disconnects its client.
// Scripts still holding the id observe ClientNotFound afterwards.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	n := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return errkind.Errorf(errkind.ClientNotFound, "", "client %q not found", id)
	}
	r.connected.Set(float64(n))
	logr.FromContextOrDiscard(ctx).V(1).Info("client removed", "id", id)

	if err := e.Client.Disconnect(ctx); err != nil {
		return errkind.New(errkind.DatabaseOperationError, "disconnect", err)
	}
	return nil
}

// Close removes and disconnects every client.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()
	r.connected.Set(0)

	var errs []error
	for id, e := range entries {
		if err := e.Client.Disconnect(ctx); err != nil {
			errs = append(errs, errkind.New(errkind.DatabaseOperationError, "disconnect "+id, err))
		}
	}
	return errors.Join(errs...)
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	r.connected.Describe(ch)
	r.lookups.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.connected.Collect(ch)
	r.lookups.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Registry)(nil)
)
