// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongolark.io/errkind"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "connections.db")

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 500) }

	cs, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, cs)

	local, err := s.Create(ctx, "local", "mongodb://localhost:27017")
	require.NoError(t, err)
	assert.Equal(t, "local", local.Name)
	assert.Equal(t, int64(1700000000), local.CreatedAt.Unix())

	mem, err := s.Create(ctx, "scratch", "mem://scratch")
	require.NoError(t, err)
	assert.NotEqual(t, local.ID, mem.ID)

	_, err = s.Create(ctx, "local", "mongodb://other")
	assert.True(t, errkind.Is(err, errkind.PersistenceError), "duplicate name: %v", err)

	_, err = s.Create(ctx, "", "mongodb://other")
	assert.True(t, errkind.Is(err, errkind.InvalidArgument), "empty name: %v", err)

	got, err := s.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, mem.ID, got.ID)
	assert.Equal(t, "mem://scratch", got.URI)
	assert.True(t, mem.CreatedAt.Equal(got.CreatedAt))

	_, err = s.Get(ctx, 42)
	assert.True(t, errkind.Is(err, errkind.InvalidArgument), "missing id: %v", err)

	cs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "local", cs[0].Name)
	assert.Equal(t, "scratch", cs[1].Name)
	require.NoError(t, s.Close())

	// Reopen keeps the records.
	s, err = Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cs, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, cs, 2)
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "connections.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.List(ctx)
	assert.True(t, errkind.Is(err, errkind.PersistenceError), "closed: %v", err)
}
