// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkthread

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.starlark.net/starlark"
)

type closer struct {
	name  string
	order *[]string
	err   error
}

func (c closer) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestResourceStore(t *testing.T) {
	thread := &starlark.Thread{}
	if err := AddResource(thread, closer{}); err == nil {
		t.Fatal("expected missing store error")
	}

	cleanup := WithResourceStore(thread)

	var order []string
	errBoom := errors.New("boom")
	for _, c := range []closer{
		{name: "a", order: &order},
		{name: "b", order: &order, err: errBoom},
	} {
		if err := AddResource(thread, c); err != nil {
			t.Fatal(err)
		}
	}

	if err := cleanup(); !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want %v", err, errBoom)
	}
	if got := strings.Join(order, ","); got != "b,a" {
		t.Errorf("close order %s", got)
	}
}

func TestWatchContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	thread := &starlark.Thread{Name: "loop"}
	SetContext(thread, ctx)
	if GetContext(thread) != ctx {
		t.Fatal("context not set")
	}

	stop := WatchContext(thread, ctx)
	defer stop()

	const src = `
def loop():
    x = 0
    for i in range(1000000000):
        x += i
    return x

loop()
`
	_, err := starlark.ExecFile(thread, "loop.star", src, nil)
	if err == nil {
		t.Fatal("expected cancellation")
	}
	if !strings.Contains(err.Error(), "context deadline exceeded") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestWatchContextStop(t *testing.T) {
	thread := &starlark.Thread{Name: "stop"}
	for i := 0; i < 1000; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		stop := WatchContext(thread, ctx)
		stop()
		cancel()
	}
	if _, err := starlark.ExecFile(thread, "stop.star", "x = 1\n", nil); err != nil {
		t.Fatalf("thread cancelled after stop: %v", err)
	}
}
