// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkmongo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"mongolark.io/driver"
	"mongolark.io/errkind"
	"mongolark.io/registry"
	"mongolark.io/starlib"
	"mongolark.io/starlib/starlarkmongo"
	"mongolark.io/starlib/starlarkthread"
)

func newRegistry(t *testing.T) (*registry.Registry, string) {
	t.Helper()
	ctx := context.Background()

	r := registry.New()
	c, err := driver.Open(ctx, "mem://")
	require.NoError(t, err)
	e := r.Insert(ctx, "mem://", c)
	t.Cleanup(func() {
		if err := r.Close(ctx); err != nil {
			t.Error(err)
		}
	})
	return r, e.ID
}

func TestExecFile(t *testing.T) {
	r, id := newRegistry(t)

	globals := starlark.StringDict{
		"db":        starlarkmongo.NewDB("test", id),
		"missing":   starlarkmongo.NewDB("test", "missing"),
		"client_id": starlark.String(id),
	}
	starlib.RunTests(t, "testdata/*.star", globals, func(_ testing.TB, thread *starlark.Thread) func() {
		starlarkmongo.SetRegistry(thread, r)
		return nil
	})
}

func TestRemovedClient(t *testing.T) {
	ctx := context.Background()
	r, id := newRegistry(t)

	thread := &starlark.Thread{Name: "removed"}
	starlarkthread.SetContext(thread, ctx)
	starlarkmongo.SetRegistry(thread, r)

	globals := starlark.StringDict{
		"db": starlarkmongo.NewDB("test", id),
	}
	_, err := starlark.ExecFile(thread, "insert.star", `db.users.insertOne({"a": 1})`, globals)
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, id))

	_, err = starlark.ExecFile(thread, "find.star", `db.users.find()`, globals)
	require.Error(t, err)
	assert.Equal(t, errkind.ClientNotFound, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "Collection.find")
}

func TestMissingRegistry(t *testing.T) {
	thread := &starlark.Thread{Name: "unset"}
	globals := starlark.StringDict{
		"db": starlarkmongo.NewDB("test", "id"),
	}
	_, err := starlark.ExecFile(thread, "find.star", `db.users.find()`, globals)
	assert.ErrorContains(t, err, "thread missing client registry")
}

func TestConstructors(t *testing.T) {
	thread := &starlark.Thread{Name: "constructors"}
	mod := starlarkmongo.NewModule()

	for _, src := range []string{
		`Db("", "id")`,
		`Collection("", Db("test", "id"))`,
	} {
		_, err := starlark.ExecFile(thread, "ctor.star", src, mod.Members)
		require.Error(t, err, src)
		assert.Equal(t, errkind.InvalidArgument, errkind.KindOf(err), src)
	}

	_, err := starlark.ExecFile(thread, "ctor.star", `Collection("users", "db")`, mod.Members)
	assert.ErrorContains(t, err, "db")
}
