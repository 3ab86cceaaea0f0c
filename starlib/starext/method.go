// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package starext provides helpers for native Starlark classes.
package starext

import (
	"fmt"
	"sort"

	"github.com/iancoleman/strcase"
	"go.starlark.net/starlark"
)

type BuiltinFn func(*starlark.Thread, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

type Builtin struct {
	name string
	fn   BuiltinFn
}

func MakeBuiltin(name string, fn BuiltinFn) Builtin {
	return Builtin{
		name: name,
		fn:   fn,
	}
}

func (b Builtin) Name() string          { return b.name }
func (b Builtin) Freeze()               {} // immutable
func (b Builtin) Hash() (uint32, error) { return starlark.String(b.name).Hash() }
func (b Builtin) String() string {
	return fmt.Sprintf("<builtin_function %s>", b.Name())
}
func (b Builtin) Type() string         { return "builtin_function" }
func (b Builtin) Truth() starlark.Bool { return true }
func (b Builtin) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return b.fn(thread, b.name, args, kwargs)
}

type Method struct {
	Builtin
	recv starlark.Value
}

func MakeMethod(recv starlark.Value, name string, fn BuiltinFn) Method {
	return Method{
		Builtin: MakeBuiltin(name, fn),
		recv:    recv,
	}
}

func (m Method) String() string {
	return fmt.Sprintf("<builtin_method %s of %s value>", m.name, m.recv.Type())
}
func (m Method) Type() string { return "builtin_method" }
func (m Method) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return m.fn(thread, m.recv.Type()+"."+m.name, args, kwargs)
}

// Attrs is the attribute table of a native class. Names are lowerCamelCase
// and each also resolves by its snake_case spelling.
type Attrs[T any] struct {
	attrs   map[string]func(T) starlark.Value
	aliases map[string]string
	names   []string
}

func NewAttrs[T any](attrs map[string]func(T) starlark.Value) *Attrs[T] {
	a := &Attrs[T]{
		attrs:   attrs,
		aliases: make(map[string]string),
		names:   make([]string, 0, len(attrs)),
	}
	for name := range attrs {
		a.names = append(a.names, name)
		if alias := strcase.ToSnake(name); alias != name {
			a.aliases[alias] = name
		}
	}
	sort.Strings(a.names)
	return a
}

// Attr returns the attribute name of recv, or nil if there is none.
func (a *Attrs[T]) Attr(recv T, name string) starlark.Value {
	if fn := a.attrs[name]; fn != nil {
		return fn(recv)
	}
	if fn := a.attrs[a.aliases[name]]; fn != nil {
		return fn(recv)
	}
	return nil
}

// Has reports whether name is an attribute or an alias of one.
func (a *Attrs[T]) Has(name string) bool {
	if _, ok := a.attrs[name]; ok {
		return true
	}
	_, ok := a.aliases[name]
	return ok
}

// Names returns the sorted lowerCamelCase names.
func (a *Attrs[T]) Names() []string {
	return append([]string(nil), a.names...)
}
