// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"bytes"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.starlark.net/starlark"

	"mongolark.io/starlib/starext"
	"mongolark.io/starlib/starlarkthread"
)

// call is an in-flight or completed load call
type call struct {
	wg   sync.WaitGroup
	val  starlark.StringDict
	err  error
	done bool

	// callers are threads waiting on the call
	callers map[*starlark.Thread]bool
}

// Loader is a gocloud.dev/blob backed loader. It uses thread.Name to figure
// out the current bucket and module. Loaded modules are cached for the
// lifetime of the loader.
type Loader struct {
	mu    sync.Mutex       // protects m
	m     map[string]*call // lazily initialized
	blobs starext.Blobs

	// Predeclared globals
	globals starlark.StringDict
}

func NewLoader(globals starlark.StringDict) *Loader {
	return &Loader{
		globals: globals,
	}
}

// errCycle indicates the load caused a cycle.
var errCycle = errors.New("cycle in loading module")

// A panicError is an arbitrary value recovered from a panic
// with the stack trace during the execution of given function.
type panicError struct {
	value interface{}
	stack []byte
}

// Error implements error interface.
func (p *panicError) Error() string {
	return fmt.Sprintf("%v\n\n%s", p.value, p.stack)
}
func newPanicError(v interface{}) error {
	stack := debug.Stack()

	// The first line of the stack trace is of the form "goroutine N [status]:"
	// but by the time the panic reaches Do the goroutine may no longer exist
	// and its status will have changed. Trim out the misleading line.
	if line := bytes.IndexByte(stack[:], '\n'); line >= 0 {
		stack = stack[line+1:]
	}
	return &panicError{value: v, stack: stack}
}

// Load checks the standard library before loading from buckets.
func (l *Loader) Load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	if v, ok := StdLoad(module); ok {
		return v, nil
	}

	bktURL, key, err := resolveModuleURL(thread.Name, module)
	if err != nil {
		return nil, err
	}
	name := ModuleName(bktURL, key)

	log := starlarkthread.GetLogger(thread)
	log.V(1).Info("loading module", "module", name)

	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*call)
	}
	if c, ok := l.m[name]; ok {
		if !c.done && c.callers[thread] {
			l.mu.Unlock()
			return nil, fmt.Errorf("%s: %w", module, errCycle)
		}
		l.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err
	}
	c := new(call)
	c.wg.Add(1)
	c.callers = map[*starlark.Thread]bool{thread: true}
	l.m[name] = c
	l.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.err = newPanicError(r)
			}
		}()
		c.val, c.err = l.load(thread, bktURL, key)
	}()

	l.mu.Lock()
	c.done = true
	l.mu.Unlock()
	c.wg.Done()

	return c.val, c.err
}

func (l *Loader) load(thread *starlark.Thread, bktURL, key string) (starlark.StringDict, error) {
	ctx := starlarkthread.GetContext(thread)

	src, err := l.blobs.ReadAll(ctx, bktURL, key)
	if err != nil {
		return nil, err
	}

	oldName, newName := thread.Name, ModuleName(bktURL, key)
	thread.Name = newName
	defer func() { thread.Name = oldName }()

	return starlark.ExecFile(thread, key, src, l.globals)
}

// Close open buckets.
func (l *Loader) Close() error {
	return l.blobs.Close()
}
