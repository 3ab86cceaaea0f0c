// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"mongolark.io/docvalue"
)

var (
	memServersMu sync.Mutex
	memServers   = make(map[string]*memServer)
)

// memServer holds databases of marshalled documents.
type memServer struct {
	mu  sync.RWMutex
	dbs map[string]map[string]*memCollection
}

type memCollection struct {
	docs []bson.Raw
}

func openMem(name string) *memClient {
	if name == "" {
		return &memClient{srv: newMemServer()}
	}

	memServersMu.Lock()
	defer memServersMu.Unlock()
	srv, ok := memServers[name]
	if !ok {
		srv = newMemServer()
		memServers[name] = srv
	}
	return &memClient{srv: srv}
}

func newMemServer() *memServer {
	return &memServer{dbs: make(map[string]map[string]*memCollection)}
}

type memClient struct {
	srv *memServer

	mu     sync.Mutex
	closed bool
}

func (c *memClient) check(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return mongo.ErrClientDisconnected
	}
	return ctx.Err()
}

func (c *memClient) ListDatabaseNames(ctx context.Context) ([]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.srv.mu.RLock()
	defer c.srv.mu.RUnlock()

	names := make([]string, 0, len(c.srv.dbs))
	for name := range c.srv.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *memClient) Database(name string) Database {
	return &memDatabase{client: c, name: name}
}

func (c *memClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return mongo.ErrClientDisconnected
	}
	c.closed = true
	return nil
}

type memDatabase struct {
	client *memClient
	name   string
}

func (d *memDatabase) Name() string { return d.name }

func (d *memDatabase) ListCollectionNames(ctx context.Context) ([]string, error) {
	if err := d.client.check(ctx); err != nil {
		return nil, err
	}
	srv := d.client.srv
	srv.mu.RLock()
	defer srv.mu.RUnlock()

	colls := srv.dbs[d.name]
	names := make([]string, 0, len(colls))
	for name := range colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *memDatabase) Collection(name string) Collection {
	return &memCollectionHandle{db: d, name: name}
}

type memCollectionHandle struct {
	db   *memDatabase
	name string
}

func (c *memCollectionHandle) Name() string { return c.name }

func (c *memCollectionHandle) srv() *memServer { return c.db.client.srv }

// lookup returns the collection, nil if it does not exist yet.
// Callers hold srv.mu.
func (c *memCollectionHandle) lookup() *memCollection {
	return c.srv().dbs[c.db.name][c.name]
}

// create returns the collection, creating it and its database on first
// write. Callers hold srv.mu for writing.
func (c *memCollectionHandle) create() *memCollection {
	srv := c.srv()
	colls, ok := srv.dbs[c.db.name]
	if !ok {
		colls = make(map[string]*memCollection)
		srv.dbs[c.db.name] = colls
	}
	coll, ok := colls[c.name]
	if !ok {
		coll = &memCollection{}
		colls[c.name] = coll
	}
	return coll
}

func (c *memCollectionHandle) find(ctx context.Context, filter bson.D, limit int) ([]bson.D, error) {
	if err := c.db.client.check(ctx); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	srv := c.srv()
	srv.mu.RLock()
	defer srv.mu.RUnlock()

	docs := []bson.D{}
	coll := c.lookup()
	if coll == nil {
		return docs, nil
	}
	for _, raw := range coll.docs {
		var doc bson.D
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		if !matches(doc, filter) {
			continue
		}
		docs = append(docs, doc)
		if limit > 0 && len(docs) == limit {
			break
		}
	}
	return docs, nil
}

func (c *memCollectionHandle) Find(ctx context.Context, filter bson.D) ([]bson.D, error) {
	return c.find(ctx, filter, 0)
}

func (c *memCollectionHandle) FindOne(ctx context.Context, filter bson.D) (bson.D, error) {
	docs, err := c.find(ctx, filter, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (c *memCollectionHandle) InsertOne(ctx context.Context, doc bson.D) (any, error) {
	ids, err := c.InsertMany(ctx, []bson.D{doc})
	if err != nil {
		return nil, err
	}
	return ids[0], nil
}

func (c *memCollectionHandle) InsertMany(ctx context.Context, docs []bson.D) ([]any, error) {
	if err := c.db.client.check(ctx); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("must provide at least one element in input slice")
	}

	srv := c.srv()
	srv.mu.Lock()
	defer srv.mu.Unlock()

	coll := c.create()
	ids := make([]any, 0, len(docs))
	for i, doc := range docs {
		id, ok := docvalue.Lookup(doc, "_id")
		if !ok {
			id = primitive.NewObjectID()
			doc = append(bson.D{{Key: "_id", Value: id}}, doc...)
		}
		if err := coll.checkUnique(id); err != nil {
			return ids, fmt.Errorf("index %d: %w", i, err)
		}

		raw, err := bson.Marshal(doc)
		if err != nil {
			return ids, fmt.Errorf("index %d: %w", i, err)
		}
		coll.docs = append(coll.docs, raw)
		ids = append(ids, id)
	}
	return ids, nil
}

// checkUnique enforces the _id index.
func (coll *memCollection) checkUnique(id any) error {
	for _, raw := range coll.docs {
		rv, err := raw.LookupErr("_id")
		if err != nil {
			continue
		}
		var existing any
		if err := rv.Unmarshal(&existing); err != nil {
			return err
		}
		if docvalue.Equal(existing, id) {
			return fmt.Errorf("E11000 duplicate key error dup key: { _id: %s }", rv)
		}
	}
	return nil
}

// checkFilter rejects query operators, only equality is implemented.
func checkFilter(filter bson.D) error {
	for _, e := range filter {
		if strings.HasPrefix(e.Key, "$") {
			return fmt.Errorf("unsupported query operator %s", e.Key)
		}
		if d, ok := e.Value.(bson.D); ok && len(d) > 0 && strings.HasPrefix(d[0].Key, "$") {
			return fmt.Errorf("unsupported query operator %s", d[0].Key)
		}
	}
	return nil
}

// matches reports whether every filter path in doc equals the filter value.
// A null filter value matches a missing field and an array field matches
// when any element equals the filter value.
func matches(doc bson.D, filter bson.D) bool {
	for _, e := range filter {
		v, ok := docvalue.Lookup(doc, strings.Split(e.Key, ".")...)
		if !ok {
			if e.Value == nil {
				continue
			}
			return false
		}
		if docvalue.Equal(v, e.Value) {
			continue
		}
		if k, _ := docvalue.KindOf(v); k == docvalue.Array {
			if containsEqual(docvalue.Elements(v), e.Value) {
				continue
			}
		}
		return false
	}
	return true
}

func containsEqual(xs []any, x any) bool {
	for _, v := range xs {
		if docvalue.Equal(v, x) {
			return true
		}
	}
	return false
}
