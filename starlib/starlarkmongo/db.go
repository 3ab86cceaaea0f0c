// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkmongo

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"mongolark.io/errkind"
	"mongolark.io/starlib/starext"
	"mongolark.io/starlib/starlarkthread"
)

type DB struct {
	name     string
	clientID string
}

func NewDB(name, clientID string) *DB { return &DB{name: name, clientID: clientID} }

func (v *DB) Name() string     { return v.name }
func (v *DB) ClientID() string { return v.clientID }

func (v *DB) String() string        { return fmt.Sprintf("<db %q>", v.name) }
func (v *DB) Type() string          { return "Db" }
func (v *DB) Freeze()               {} // immutable
func (v *DB) Truth() starlark.Bool  { return starlark.True }
func (v *DB) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", v.Type()) }

var dbAttrs = starext.NewAttrs(map[string]func(v *DB) starlark.Value{
	"name":               func(v *DB) starlark.Value { return starlark.String(v.name) },
	"getCollection":      func(v *DB) starlark.Value { return starext.MakeMethod(v, "getCollection", v.getCollection) },
	"getCollectionNames": func(v *DB) starlark.Value { return starext.MakeMethod(v, "getCollectionNames", v.getCollectionNames) },
	"getName":            func(v *DB) starlark.Value { return starext.MakeMethod(v, "getName", v.getName) },
})

// Attr resolves methods, then treats any other name as a collection:
// db.users is db.getCollection("users").
func (v *DB) Attr(name string) (starlark.Value, error) {
	if a := dbAttrs.Attr(v, name); a != nil {
		return a, nil
	}
	if strings.HasPrefix(name, "_") {
		return nil, nil
	}
	return NewCollection(name, v), nil
}
func (v *DB) AttrNames() []string { return dbAttrs.Names() }

func (v *DB) getCollection(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "", "%s: empty collection name", fnname)
	}
	return NewCollection(name, v), nil
}

func (v *DB) getName(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(v.name), nil
}

func (v *DB) getCollectionNames(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, err := client(thread, fnname, v.clientID)
	if err != nil {
		return nil, err
	}
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 0); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	names, err := c.Database(v.name).ListCollectionNames(ctx)
	if err != nil {
		return nil, driverError(fnname, err)
	}
	sort.Strings(names)

	elems := make([]starlark.Value, len(names))
	for i, name := range names {
		elems[i] = starlark.String(name)
	}
	return starlark.NewList(elems), nil
}

// Completions lists methods and existing collections for the shell.
// Lookup failures only drop the collections.
func (v *DB) Completions(thread *starlark.Thread) []string {
	names := dbAttrs.Names()
	c, err := client(thread, "completions", v.clientID)
	if err != nil {
		return names
	}
	colls, err := c.Database(v.name).ListCollectionNames(starlarkthread.GetContext(thread))
	if err != nil {
		return names
	}
	names = append(names, colls...)
	sort.Strings(names)
	return names
}
