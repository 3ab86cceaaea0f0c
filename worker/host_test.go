// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	testing_logr "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.starlark.net/starlark"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"mongolark.io/driver"
	"mongolark.io/errkind"
	"mongolark.io/registry"
	"mongolark.io/worker"
)

func testContext(t *testing.T) context.Context {
	ctx := context.Background()
	log := testing_logr.NewTestLogger(t)
	ctx = logr.NewContext(ctx, log)
	return ctx
}

// testRegistry returns a registry holding one isolated mem client.
func testRegistry(t *testing.T) (*registry.Registry, string) {
	t.Helper()
	ctx := testContext(t)

	r := registry.New()
	c, err := driver.Open(ctx, "mem://")
	require.NoError(t, err)
	e := r.Insert(ctx, "mem://", c)
	t.Cleanup(func() {
		if err := r.Close(context.Background()); err != nil {
			t.Error(err)
		}
	})
	return r, e.ID
}

func TestHostInsertThenFind(t *testing.T) {
	ctx := testContext(t)
	r, id := testRegistry(t)
	h := worker.NewHost(r)

	res, err := h.Run(ctx, worker.Request{
		ClientID: id,
		Database: "app",
		Script: `
db.getCollection("users").insertOne({"name": "a"})
db.getCollection("users").find({"name": "a"})
`,
	})
	require.NoError(t, err)

	docs, ok := res.Value.(bson.A)
	require.True(t, ok, "got %T", res.Value)
	require.Len(t, docs, 1)
	doc, ok := docs[0].(bson.D)
	require.True(t, ok, "got %T", docs[0])
	require.Len(t, doc, 2)
	assert.Equal(t, "_id", doc[0].Key)
	assert.IsType(t, primitive.ObjectID{}, doc[0].Value)
	assert.Equal(t, bson.E{Key: "name", Value: "a"}, doc[1])

	// A second invocation sees the same database.
	res, err = h.Run(ctx, worker.Request{
		ClientID: id,
		Database: "app",
		Script:   `len(db.users.find())`,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.Value)
}

func TestHostRun(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   any
		output string
	}{{
		name:   "expression",
		script: "1 + 2",
		want:   int32(3),
	}, {
		name:   "no trailing expression",
		script: "x = 1\n",
		want:   nil,
	}, {
		name: "print",
		script: `
print("hello")
def double(n):
    return n * 2
{"n": double(21), "ok": True}
`,
		want:   bson.D{{Key: "n", Value: int32(42)}, {Key: "ok", Value: true}},
		output: "hello\n",
	}, {
		name: "std load",
		script: `
load("math.star", "sqrt")
sqrt(4)
`,
		want: float64(2),
	}, {
		name:   "undefined",
		script: "[None, undefined]",
		want:   bson.A{nil, primitive.Undefined{}},
	}, {
		name: "find one miss",
		script: `
db.users.findOne({"name": "missing"})
`,
		want: nil,
	}, {
		name: "catch",
		script: `
res = errors.catch(Db("app", "missing").users.find)
[res.err.kind(errors.ClientNotFound), res.err.code]
`,
		want: bson.A{true, "ClientNotFound"},
	}, {
		name: "blob export",
		script: `
db.users.insertOne({"_id": 7})
bkt = blob.open("mem://")
bkt.writeAll("users.json", json.encode(db.users.findOne({"_id": 7})))
json.decode(str(bkt.readAll("users.json")))
`,
		want: bson.D{{Key: "_id", Value: int32(7)}},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			r, id := testRegistry(t)
			h := worker.NewHost(r)

			res, err := h.Run(ctx, worker.Request{
				ClientID: id,
				Database: "app",
				Script:   tt.script,
			})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, res.Value); diff != "" {
				t.Errorf("value mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.output, res.Output)
		})
	}
}

func TestHostErrors(t *testing.T) {
	tests := []struct {
		name     string
		clientID string // defaults to the registered client
		db       string
		script   string
		kind     errkind.Kind
		eval     bool // wraps a starlark.EvalError
	}{{
		name:   "empty script",
		db:     "app",
		script: " \n",
		kind:   errkind.InvalidArgument,
	}, {
		name:   "empty database",
		script: "1",
		kind:   errkind.InvalidArgument,
	}, {
		name:     "unknown client",
		clientID: "missing",
		db:       "app",
		script:   "1",
		kind:     errkind.ClientNotFound,
	}, {
		name:   "syntax",
		db:     "app",
		script: "def (",
		kind:   errkind.ScriptParseError,
	}, {
		name:   "undefined name",
		db:     "app",
		script: "x = y\n",
		kind:   errkind.ScriptParseError,
	}, {
		name:   "undefined trailing name",
		db:     "app",
		script: "y",
		kind:   errkind.ScriptParseError,
	}, {
		name:   "runtime",
		db:     "app",
		script: "x = 1 // 0\n",
		kind:   errkind.ScriptRuntimeError,
		eval:   true,
	}, {
		name:   "fail",
		db:     "app",
		script: `fail("boom")`,
		kind:   errkind.ScriptRuntimeError,
		eval:   true,
	}, {
		name:   "binding conversion",
		db:     "app",
		script: "db.users.insertOne(1)",
		kind:   errkind.ConversionError,
		eval:   true,
	}, {
		name:   "binding client",
		db:     "app",
		script: `Db("app", "missing").users.find()`,
		kind:   errkind.ClientNotFound,
		eval:   true,
	}, {
		name:   "binding driver",
		db:     "app",
		script: `db.users.find({"n": {"$gt": 1}})`,
		kind:   errkind.DatabaseOperationError,
		eval:   true,
	}, {
		name:   "result conversion",
		db:     "app",
		script: "db",
		kind:   errkind.ConversionError,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			r, id := testRegistry(t)
			h := worker.NewHost(r)

			clientID := tt.clientID
			if clientID == "" {
				clientID = id
			}
			_, err := h.Run(ctx, worker.Request{
				ClientID: clientID,
				Database: tt.db,
				Script:   tt.script,
			})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errkind.KindOf(err), "error: %v", err)

			var evalErr *starlark.EvalError
			assert.Equal(t, tt.eval, errors.As(err, &evalErr), "error: %v", err)
		})
	}
}

func TestHostTimeout(t *testing.T) {
	ctx := testContext(t)
	r, id := testRegistry(t)
	h := worker.NewHost(r, worker.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := h.Run(ctx, worker.Request{
		ClientID: id,
		Database: "app",
		Script: `
def spin():
    for i in range(1 << 30):
        pass
spin()
`,
	})
	require.Error(t, err)
	assert.Equal(t, errkind.ScriptRuntimeError, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "context deadline exceeded")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestHostMaxSteps(t *testing.T) {
	ctx := testContext(t)
	r, id := testRegistry(t)
	h := worker.NewHost(r, worker.WithMaxSteps(1000))

	_, err := h.Run(ctx, worker.Request{
		ClientID: id,
		Database: "app",
		Script: `
def spin():
    for i in range(1 << 30):
        pass
spin()
`,
	})
	require.Error(t, err)
	assert.Equal(t, errkind.ScriptRuntimeError, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "too many steps")
}

func TestHostLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "users.star"), []byte(`
def add_user(name):
    return db.users.insertOne({"name": name})["acknowledged"]
`), 0o644))
	bktURL := "file://" + filepath.ToSlash(dir) + "?metadata=skip"

	ctx := testContext(t)
	r, id := testRegistry(t)
	h := worker.NewHost(r, worker.WithLoader(bktURL))

	res, err := h.Run(ctx, worker.Request{
		ClientID: id,
		Database: "app",
		Name:     "main.star",
		Script: `
load("./lib/users.star", "add_user")
add_user("a")
`,
	})
	require.NoError(t, err)
	assert.Equal(t, true, res.Value)

	_, err = h.Run(ctx, worker.Request{
		ClientID: id,
		Database: "app",
		Script:   `load("./lib/missing.star", "x")`,
	})
	require.Error(t, err)
	assert.Equal(t, errkind.ScriptRuntimeError, errkind.KindOf(err))
}

func TestHostMetrics(t *testing.T) {
	ctx := testContext(t)
	r, id := testRegistry(t)
	m := worker.NewMetrics()
	h := worker.NewHost(r, worker.WithMetrics(m))

	for _, script := range []string{"1", "2", "def (", "db", ""} {
		_, _ = h.Run(ctx, worker.Request{
			ClientID: id,
			Database: "app",
			Script:   script,
		})
	}

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(m))
	n, err := testutil.GatherAndCount(reg, "mongolark_worker_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "one series per result")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	counts := make(map[string]uint64)
	for _, mf := range mfs {
		if mf.GetName() != "mongolark_worker_run_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "phase" {
					counts[lp.GetValue()] = metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	want := map[string]uint64{
		"created":      1,
		"bootstrapped": 1,
		"evaluated":    1,
		"succeeded":    2,
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
}

func TestSession(t *testing.T) {
	ctx := testContext(t)
	r, id := testRegistry(t)
	h := worker.NewHost(r)

	_, err := h.NewSession(ctx, id, "", "")
	assert.Equal(t, errkind.InvalidArgument, errkind.KindOf(err))
	_, err = h.NewSession(ctx, "missing", "app", "")
	assert.Equal(t, errkind.ClientNotFound, errkind.KindOf(err))

	s, err := h.NewSession(ctx, id, "app", "<stdin>")
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	v, out, err := s.Eval(ctx, "users = db.users\nprint('ok')\n")
	require.NoError(t, err)
	assert.Equal(t, starlark.None, v)
	assert.Equal(t, "ok\n", out)

	v, out, err = s.Eval(ctx, `users.insertOne({"name": "a"})["acknowledged"]`)
	require.NoError(t, err)
	assert.Equal(t, starlark.True, v)
	assert.Empty(t, out)

	c := s.Completer()
	assert.Equal(t, []string{"users"}, c.Complete("use"))
	assert.Contains(t, c.Complete("db.us"), "db.users")
}

func TestSessionTimeoutReuse(t *testing.T) {
	ctx := testContext(t)
	r, id := testRegistry(t)
	h := worker.NewHost(r, worker.WithTimeout(time.Hour))

	for i := 0; i < 50; i++ {
		s, err := h.NewSession(ctx, id, "app", "<stdin>")
		require.NoError(t, err)
		for j := 0; j < 20; j++ {
			v, _, err := s.Eval(ctx, "x = 1\nx")
			require.NoError(t, err, "session %d eval %d", i, j)
			assert.Equal(t, "1", v.String())
		}
		require.NoError(t, s.Close())
	}
}
