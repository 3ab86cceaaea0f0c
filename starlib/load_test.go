// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	_ "gocloud.dev/blob/fileblob"

	"mongolark.io/starlib/starlarkthread"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	}
	return "file://" + filepath.ToSlash(dir) + "?metadata=skip"
}

func TestLoader(t *testing.T) {
	bktURL := writeFiles(t, map[string]string{
		"main.star": `
load("./lib/users.star", "collection")
load("bson.star", "ObjectId")
result = collection + ":" + type(ObjectId())
`,
		"lib/users.star": `
load("../names.star", "prefix")
collection = prefix + "users"
`,
		"names.star": `prefix = "app_"`,
		"cycle.star": `load("./cycle.star", "x")`,
	})

	globals := NewGlobals()
	loader := NewLoader(globals)
	defer func() { require.NoError(t, loader.Close()) }()

	thread := &starlark.Thread{
		Name: ModuleName(bktURL, "main.star"),
		Load: loader.Load,
	}
	starlarkthread.SetContext(thread, context.Background())

	v, err := loader.Load(thread, "./main.star")
	require.NoError(t, err)
	assert.Equal(t, starlark.String("app_users:ObjectId"), v["result"])
	assert.Equal(t, ModuleName(bktURL, "main.star"), thread.Name, "name must be restored")

	// Cached.
	again, err := loader.Load(thread, "main.star")
	require.NoError(t, err)
	assert.Equal(t, v["result"], again["result"])

	_, err = loader.Load(thread, "cycle.star")
	assert.ErrorContains(t, err, errCycle.Error())

	_, err = loader.Load(thread, "missing.star")
	assert.Error(t, err)

	std, err := loader.Load(thread, "errors.star")
	require.NoError(t, err)
	assert.Contains(t, std, "catch")
}
