// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package starlarkthread manages thread local state shared by the native
// modules: the invocation context, its logger and closable resources.
package starlarkthread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"go.starlark.net/starlark"
)

const ctxkey = "context"

// SetContext sets the thread context.
func SetContext(thread *starlark.Thread, ctx context.Context) {
	thread.SetLocal(ctxkey, ctx)
}

// GetContext gets the thread context or returns a TODO context.
func GetContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(ctxkey).(context.Context); ok {
		return ctx
	}
	return context.TODO()
}

// GetLogger returns the logger of the thread context.
func GetLogger(thread *starlark.Thread) logr.Logger {
	return logr.FromContextOrDiscard(GetContext(thread)).WithValues("thread", thread.Name)
}

// WatchContext cancels the thread when ctx is done. The returned stop
// function must be called once the thread has finished, before ctx is
// cancelled. It returns after the watcher has exited.
func WatchContext(thread *starlark.Thread, ctx context.Context) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

// Resource is a starlark.Value that requires close handling.
type Resource interface {
	starlark.Value
	io.Closer
}

const rsckey = "resources"

// ResourceStore is a thread local storage map for adding resources.
// It is thread safe.
type ResourceStore struct {
	mu   sync.Mutex
	rscs []io.Closer
}

// WithResourceStore returns a cleanup function. It is required for
// packages that add resources.
func WithResourceStore(thread *starlark.Thread) func() error {
	store := &ResourceStore{}
	SetResourceStore(thread, store)
	return func() error { return CloseResources(thread) }
}

func SetResourceStore(thread *starlark.Thread, store *ResourceStore) {
	thread.SetLocal(rsckey, store)
}

func GetResourceStore(thread *starlark.Thread) (*ResourceStore, error) {
	store, ok := thread.Local(rsckey).(*ResourceStore)
	if !ok {
		return nil, fmt.Errorf("thread missing resource store")
	}
	return store, nil
}

// AddResource closes rsc with the thread's store.
func AddResource(thread *starlark.Thread, rsc io.Closer) error {
	store, err := GetResourceStore(thread)
	if err != nil {
		return err
	}
	store.mu.Lock()
	store.rscs = append(store.rscs, rsc)
	store.mu.Unlock()
	return nil
}

// Close closes resources in reverse order of addition.
func (s *ResourceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.rscs) - 1; i >= 0; i-- {
		errs = append(errs, s.rscs[i].Close())
	}
	s.rscs = nil
	return errors.Join(errs...)
}

func CloseResources(thread *starlark.Thread) error {
	store, err := GetResourceStore(thread)
	if err != nil {
		return err
	}
	return store.Close()
}

// AssertOption implements starlarkassert.TestOption
// Add like so:
//
//	starlarkassert.RunTests(t, "*.star", globals, starlarkthread.AssertOption)
func AssertOption(t testing.TB, thread *starlark.Thread) func() {
	close := WithResourceStore(thread)
	return func() {
		if err := close(); err != nil {
			t.Error(err, "failed to close resources")
		}
	}
}
