// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package worker runs scripts and serves the commands of the frontend.
package worker

import (
	"context"
	"sort"

	"github.com/go-logr/logr"

	"mongolark.io/driver"
	"mongolark.io/errkind"
	"mongolark.io/registry"
	"mongolark.io/store"
)

// Store persists saved connections.
type Store interface {
	Create(ctx context.Context, name, uri string) (*store.Connection, error)
	Get(ctx context.Context, id int64) (*store.Connection, error)
	List(ctx context.Context) ([]*store.Connection, error)
}

// Connected is a registered connection and its database names.
type Connected struct {
	ID  string
	DBs []string
}

// Server implements the commands over a registry, a host and a store.
type Server struct {
	registry *registry.Registry
	host     *Host
	store    Store
}

// NewServer returns a Server. A nil store disables saved connections.
func NewServer(r *registry.Registry, h *Host, s Store) *Server {
	return &Server{
		registry: r,
		host:     h,
		store:    s,
	}
}

// Connect opens uri, lists its databases and registers the client.
// A non-empty saveName also saves the connection.
func (s *Server) Connect(ctx context.Context, uri, saveName string) (*Connected, error) {
	log := logr.FromContextOrDiscard(ctx)

	c, err := driver.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	dbs, err := c.ListDatabaseNames(ctx)
	if err != nil {
		if derr := c.Disconnect(ctx); derr != nil {
			log.Error(derr, "disconnecting", "uri", driver.Redact(uri))
		}
		return nil, errkind.New(errkind.DatabaseOperationError, "listDatabaseNames", err)
	}
	sort.Strings(dbs)

	if saveName != "" {
		if err := s.save(ctx, saveName, uri); err != nil {
			if derr := c.Disconnect(ctx); derr != nil {
				log.Error(derr, "disconnecting", "uri", driver.Redact(uri))
			}
			return nil, err
		}
	}

	e := s.registry.Insert(ctx, uri, c)
	log.Info("connected", "id", e.ID, "uri", driver.Redact(uri), "dbs", len(dbs))
	return &Connected{ID: e.ID, DBs: dbs}, nil
}

func (s *Server) save(ctx context.Context, name, uri string) error {
	if s.store == nil {
		return errkind.Errorf(errkind.InvalidArgument, "save", "saved connections are disabled")
	}
	_, err := s.store.Create(ctx, name, uri)
	return err
}

// ConnectSaved connects to the saved connection id.
func (s *Server) ConnectSaved(ctx context.Context, id int64) (*Connected, error) {
	if s.store == nil {
		return nil, errkind.Errorf(errkind.InvalidArgument, "connectSaved", "saved connections are disabled")
	}
	conn, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Connect(ctx, conn.URI, "")
}

// ListCollections returns the sorted collection names of db.
func (s *Server) ListCollections(ctx context.Context, clientID, db string) ([]string, error) {
	if db == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "listCollections", "empty database name")
	}
	c, err := s.registry.Client(clientID)
	if err != nil {
		return nil, err
	}
	names, err := c.Database(db).ListCollectionNames(ctx)
	if err != nil {
		return nil, errkind.New(errkind.DatabaseOperationError, "listCollections", err)
	}
	sort.Strings(names)
	return names, nil
}

// RunScript runs script against db of the client.
func (s *Server) RunScript(ctx context.Context, clientID, db, script string) (*Result, error) {
	return s.host.Run(ctx, Request{
		ClientID: clientID,
		Database: db,
		Script:   script,
	})
}

// ListSavedConnections returns every saved connection.
func (s *Server) ListSavedConnections(ctx context.Context) ([]*store.Connection, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.List(ctx)
}

// Disconnect removes the client from the registry and closes it.
func (s *Server) Disconnect(ctx context.Context, clientID string) error {
	return s.registry.Remove(ctx, clientID)
}
