// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emcfarlane/starlarkassert"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarktest"
	_ "gocloud.dev/blob/fileblob"

	"mongolark.io/starlib/starlarkthread"
)

// nameTestOption names test threads after a file bucket of the working
// directory so relative loads resolve next to the test file.
func nameTestOption(t testing.TB, thread *starlark.Thread) func() {
	if strings.Contains(thread.Name, "://") {
		return nil
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	bktURL := "file://" + filepath.ToSlash(wd) + "?metadata=skip"
	thread.Name = ModuleName(bktURL, filepath.ToSlash(thread.Name))
	return nil
}

func ctxTestOption(t testing.TB, thread *starlark.Thread) func() {
	ctx, cancel := context.WithCancel(context.Background())
	if tt, ok := t.(*testing.T); ok {
		ctx = logr.NewContext(ctx, testr.New(tt))
	}
	starlarkthread.SetContext(thread, ctx)
	return cancel
}

// reporterTestOption reports assert.star failures to t.
func reporterTestOption(t testing.TB, thread *starlark.Thread) func() {
	starlarktest.SetReporter(thread, t)
	return nil
}

// testLoad adds assert.star to a loader.
func testLoad(l *Loader) func(*starlark.Thread, string) (starlark.StringDict, error) {
	return func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
		if module == "assert.star" {
			return starlarktest.LoadAssertModule()
		}
		return l.Load(thread, module)
	}
}

// RunTests calls starlarkassert.RunTests with the standard globals and
// loader. To use add it to a Test function:
//
//	func TestStarlark(t *testing.T) {
//		starlib.RunTests(t, "testdata/*.star", nil)
//	}
func RunTests(t *testing.T, pattern string, globals starlark.StringDict, opts ...starlarkassert.TestOption) {
	t.Helper()

	g := NewGlobals()
	for key, val := range globals {
		g[key] = val
	}
	loader := NewLoader(g)
	t.Cleanup(func() {
		if err := loader.Close(); err != nil {
			t.Error(err)
		}
	})

	opts = append([]starlarkassert.TestOption{
		starlarkthread.AssertOption,
		starlarkassert.WithLoad(testLoad(loader)),
		nameTestOption,
		ctxTestOption,
		reporterTestOption,
	}, opts...)

	starlarkassert.RunTests(t, pattern, g, opts...)
}
