// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/driver"
	"mongolark.io/registry"
	"mongolark.io/starlib/starlarkmongo"
	"mongolark.io/starlib/starlarkthread"
)

func TestAutoComplete(t *testing.T) {
	ctx := context.Background()
	r := registry.New()
	c, err := driver.Open(ctx, "mem://")
	if err != nil {
		t.Fatal(err)
	}
	e := r.Insert(ctx, "mem://", c)
	defer r.Close(ctx) //nolint
	if _, err := c.Database("app").Collection("users").InsertOne(ctx, bson.D{}); err != nil {
		t.Fatal(err)
	}

	thread := &starlark.Thread{Name: "complete"}
	starlarkthread.SetContext(thread, ctx)
	starlarkmongo.SetRegistry(thread, r)

	mod := &starlarkstruct.Module{
		Name: "hello",
		Members: starlark.StringDict{
			"world": starlark.String("world"),
			"wide":  starlark.String("wide"),
		},
	}

	for _, tt := range []struct {
		name    string
		globals starlark.StringDict
		line    string
		want    []string
	}{{
		name: "simple",
		globals: map[string]starlark.Value{
			"abc": starlark.String("hello"),
		},
		line: "a",
		want: []string{"abc", "abs", "all", "any"},
	}, {
		name: "simple_semi",
		globals: map[string]starlark.Value{
			"abc": starlark.String("hello"),
		},
		line: "abc = \"hello\"; a",
		want: []string{
			"abc = \"hello\"; abc",
			"abc = \"hello\"; abs",
			"abc = \"hello\"; all",
			"abc = \"hello\"; any",
		},
	}, {
		name: "module",
		globals: map[string]starlark.Value{
			"hello": mod,
		},
		line: "x = hello.w",
		want: []string{"x = hello.wide", "x = hello.world"},
	}, {
		name: "call_arg",
		globals: map[string]starlark.Value{
			"hello": mod,
		},
		line: "print(hello.wo",
		want: []string{"print(hello.world"},
	}, {
		name: "db",
		globals: map[string]starlark.Value{
			"db": starlarkmongo.NewDB("app", e.ID),
		},
		line: "db.u",
		want: []string{"db.users"},
	}, {
		name: "db_methods",
		globals: map[string]starlark.Value{
			"db": starlarkmongo.NewDB("app", e.ID),
		},
		line: "db.getCollectionN",
		want: []string{"db.getCollectionNames"},
	}, {
		name: "collection",
		globals: map[string]starlark.Value{
			"db": starlarkmongo.NewDB("app", e.ID),
		},
		line: "db.users.insert",
		want: []string{"db.users.insertMany", "db.users.insertOne"},
	}, {
		name: "unknown",
		line: "nothing.x",
	}, {
		name: "indent",
		line: "  ",
		want: []string{"    "},
	}} {
		t.Run(tt.name, func(t *testing.T) {
			c := Completer{StringDict: tt.globals, Thread: thread}
			got := c.Complete(tt.line)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
