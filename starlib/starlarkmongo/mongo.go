// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package starlarkmongo exposes databases and collections to scripts.
//
// A Db holds a database name and the id of a registered client, never the
// client itself. Every operation resolves the id in the thread's registry,
// so a removed client fails with ClientNotFound instead of being used
// after disconnect.
package starlarkmongo

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/driver"
	"mongolark.io/errkind"
	"mongolark.io/registry"
	"mongolark.io/starlib/starext"
	"mongolark.io/starlib/starlarkbson"
)

func NewModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "mongo",
		Members: starlark.StringDict{
			"Db":         starext.MakeBuiltin("Db", MakeDB),
			"Collection": starext.MakeBuiltin("Collection", MakeCollection),
			"ObjectId":   starext.MakeBuiltin("ObjectId", starlarkbson.MakeObjectID),
		},
	}
}

const registryKey = "mongo.registry"

// SetRegistry sets the registry operations resolve clients in.
func SetRegistry(thread *starlark.Thread, r *registry.Registry) {
	thread.SetLocal(registryKey, r)
}

// GetRegistry returns the thread registry.
func GetRegistry(thread *starlark.Thread) (*registry.Registry, error) {
	r, ok := thread.Local(registryKey).(*registry.Registry)
	if !ok {
		return nil, fmt.Errorf("thread missing client registry")
	}
	return r, nil
}

// client resolves id at call time.
func client(thread *starlark.Thread, fnname, id string) (driver.Client, error) {
	r, err := GetRegistry(thread)
	if err != nil {
		return nil, err
	}
	c, err := r.Client(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}
	return c, nil
}

// MakeDB implements Db(name, client_id).
func MakeDB(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, clientID string
	if err := starlark.UnpackArgs(fnname, args, kwargs, "name", &name, "client_id", &clientID); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "", "%s: empty database name", fnname)
	}
	return NewDB(name, clientID), nil
}

// MakeCollection implements Collection(name, db).
func MakeCollection(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name string
		db   *DB
	)
	if err := starlark.UnpackArgs(fnname, args, kwargs, "name", &name, "db", &db); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errkind.Errorf(errkind.InvalidArgument, "", "%s: empty collection name", fnname)
	}
	return NewCollection(name, db), nil
}

func driverError(fnname string, err error) error {
	if errkind.KindOf(err) != errkind.Unknown {
		return fmt.Errorf("%s: %w", fnname, err)
	}
	return errkind.New(errkind.DatabaseOperationError, fnname, err)
}
