// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package driver defines the database operations scripts rely on and opens
// clients for them by URI.
//
// Supported schemes:
//
//	mongodb://, mongodb+srv://   a MongoDB deployment through mongo-driver
//	mem://[name]                 an in-process store, clients opened with the
//	                             same non-empty name share their data
package driver

import (
	"context"
	"net/url"

	"go.mongodb.org/mongo-driver/bson"

	"mongolark.io/errkind"
)

// Client is an open connection to a deployment.
type Client interface {
	ListDatabaseNames(ctx context.Context) ([]string, error)
	Database(name string) Database
	Disconnect(ctx context.Context) error
}

// Database is a named database of a Client.
type Database interface {
	Name() string
	ListCollectionNames(ctx context.Context) ([]string, error)
	Collection(name string) Collection
}

// Collection is a named collection of a Database.
//
// Filters are equality documents, a nil filter matches everything.
type Collection interface {
	Name() string
	Find(ctx context.Context, filter bson.D) ([]bson.D, error)
	// FindOne returns nil without error when nothing matches.
	FindOne(ctx context.Context, filter bson.D) (bson.D, error)
	// InsertOne returns the _id of the stored document, generated when
	// doc has none.
	InsertOne(ctx context.Context, doc bson.D) (any, error)
	// InsertMany inserts in order and stops at the first failure.
	InsertMany(ctx context.Context, docs []bson.D) ([]any, error)
}

// Open connects to the deployment named by uri.
func Open(ctx context.Context, uri string) (Client, error) {
	const op = "driver.Open"

	u, err := url.Parse(uri)
	if err != nil {
		return nil, errkind.New(errkind.InvalidArgument, op, err)
	}
	switch u.Scheme {
	case "mongodb", "mongodb+srv":
		c, err := openMongo(ctx, uri)
		if err != nil {
			return nil, errkind.New(errkind.DatabaseOperationError, op, err)
		}
		return c, nil
	case "mem":
		return openMem(u.Host), nil
	case "":
		return nil, errkind.Errorf(errkind.InvalidArgument, op, "missing scheme in %q", uri)
	default:
		return nil, errkind.Errorf(errkind.InvalidArgument, op, "unsupported scheme %q", u.Scheme)
	}
}

// Redact returns uri without its password, for logs.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid uri>"
	}
	return u.Redacted()
}
