// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store persists saved connections in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-logr/logr"
	_ "modernc.org/sqlite"

	"mongolark.io/errkind"
)

const schema = `CREATE TABLE IF NOT EXISTS saved_connections (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	uri TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// Connection is a saved connection.
type Connection struct {
	ID        int64
	Name      string
	URI       string
	CreatedAt time.Time
}

// Store is a saved connection store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the store at dsn, a SQLite file name or
// "file::memory:" style URI.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errkind.New(errkind.PersistenceError, "open", err)
	}
	// Each connection to ":memory:" is a new database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Join(
			errkind.New(errkind.PersistenceError, "open", err),
			db.Close(),
		)
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("opened connection store", "dsn", dsn)
	return &Store{db: db, now: time.Now}, nil
}

// Create saves uri under the unique name.
func (s *Store) Create(ctx context.Context, name, uri string) (*Connection, error) {
	if name == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "create", "empty connection name")
	}
	if uri == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "create", "empty connection uri")
	}
	createdAt := s.now().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_connections (name, uri, created_at) VALUES (?, ?, ?)`,
		name, uri, createdAt.Unix(),
	)
	if err != nil {
		return nil, errkind.New(errkind.PersistenceError, "create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errkind.New(errkind.PersistenceError, "create", err)
	}
	return &Connection{
		ID:        id,
		Name:      name,
		URI:       uri,
		CreatedAt: createdAt,
	}, nil
}

// Get returns the connection id.
func (s *Store) Get(ctx context.Context, id int64) (*Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, uri, created_at FROM saved_connections WHERE id = ?`, id,
	)
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.Errorf(errkind.InvalidArgument, "get", "saved connection %d not found", id)
	}
	if err != nil {
		return nil, errkind.New(errkind.PersistenceError, "get", err)
	}
	return c, nil
}

// List returns every connection ordered by id.
func (s *Store) List(ctx context.Context) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, uri, created_at FROM saved_connections ORDER BY id`,
	)
	if err != nil {
		return nil, errkind.New(errkind.PersistenceError, "list", err)
	}
	defer rows.Close()

	var cs []*Connection
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, errkind.New(errkind.PersistenceError, "list", err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errkind.New(errkind.PersistenceError, "list", err)
	}
	return cs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*Connection, error) {
	var (
		c         Connection
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.URI, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}
