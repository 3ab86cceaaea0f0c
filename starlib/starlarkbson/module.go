// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkbson

import (
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/docvalue"
	"mongolark.io/errkind"
	"mongolark.io/starlib/starext"
)

func NewModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "bson",
		Members: starlark.StringDict{
			"ObjectId":      starext.MakeBuiltin("ObjectId", MakeObjectID),
			"undefined":     Undefined,
			"extjson":       starext.MakeBuiltin("bson.extjson", extJSON),
			"parse_extjson": starext.MakeBuiltin("bson.parse_extjson", parseExtJSON),
		},
	}
}

// extJSON renders a value as relaxed, or canonical, Extended JSON.
func extJSON(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		v         starlark.Value
		canonical bool
	)
	if err := starlark.UnpackArgs(fnname, args, kwargs, "value", &v, "canonical?", &canonical); err != nil {
		return nil, err
	}
	x, err := ToBSON(v)
	if err != nil {
		return nil, err
	}
	b, err := docvalue.MarshalExtJSON(x, canonical)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, fnname, err)
	}
	return starlark.String(b), nil
}

func parseExtJSON(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(fnname, args, kwargs, "s", &s); err != nil {
		return nil, err
	}
	x, err := docvalue.UnmarshalExtJSON([]byte(s), false)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, fnname, err)
	}
	return ToStarlark(x)
}
