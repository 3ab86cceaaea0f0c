// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkbson

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"mongolark.io/errkind"
	"mongolark.io/starlib/starext"
)

// ObjectID is the 12 byte document identifier.
type ObjectID primitive.ObjectID

var (
	_ starlark.HasAttrs   = ObjectID{}
	_ starlark.Comparable = ObjectID{}
)

// MakeObjectID implements ObjectId(hex=None). Without an argument it
// generates a new id.
func MakeObjectID(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value = starlark.None
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 0, &v); err != nil {
		return nil, err
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return ObjectID(primitive.NewObjectID()), nil
	case ObjectID:
		return v, nil
	case starlark.String:
		id, err := primitive.ObjectIDFromHex(string(v))
		if err != nil {
			return nil, errkind.Errorf(errkind.InvalidArgument, "", "%s: invalid id %q: %w", fnname, string(v), err)
		}
		return ObjectID(id), nil
	default:
		return nil, errkind.Errorf(errkind.InvalidArgument, "", "%s: expected hex string, got %s", fnname, v.Type())
	}
}

func (id ObjectID) Hex() string { return primitive.ObjectID(id).Hex() }

func (id ObjectID) String() string       { return fmt.Sprintf("ObjectId(%q)", id.Hex()) }
func (id ObjectID) Type() string         { return "ObjectId" }
func (id ObjectID) Freeze()              {} // immutable
func (id ObjectID) Truth() starlark.Bool { return starlark.Bool(!primitive.ObjectID(id).IsZero()) }
func (id ObjectID) Hash() (uint32, error) {
	return starlark.String(id[:]).Hash()
}

func (id ObjectID) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	other := y.(ObjectID)
	return threeway(op, bytes.Compare(id[:], other[:])), nil
}

func threeway(op syntax.Token, cmp int) bool {
	switch op {
	case syntax.EQL:
		return cmp == 0
	case syntax.NEQ:
		return cmp != 0
	case syntax.LE:
		return cmp <= 0
	case syntax.LT:
		return cmp < 0
	case syntax.GE:
		return cmp >= 0
	case syntax.GT:
		return cmp > 0
	}
	panic(op)
}

var objectIDAttrs = starext.NewAttrs(map[string]func(ObjectID) starlark.Value{
	"toString":  func(id ObjectID) starlark.Value { return starext.MakeMethod(id, "toString", id.hex) },
	"toJSON":    func(id ObjectID) starlark.Value { return starext.MakeMethod(id, "toJSON", id.hex) },
	"timestamp": func(id ObjectID) starlark.Value { return starext.MakeMethod(id, "timestamp", id.timestamp) },
})

func (id ObjectID) Attr(name string) (starlark.Value, error) {
	return objectIDAttrs.Attr(id, name), nil
}
func (id ObjectID) AttrNames() []string { return objectIDAttrs.Names() }

func (id ObjectID) hex(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(id.Hex()), nil
}

func (id ObjectID) timestamp(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlarktime.Time(primitive.ObjectID(id).Timestamp()), nil
}
