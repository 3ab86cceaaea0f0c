// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/starlib/starlarkbson"
)

func init() {
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true

	// Required by the shell, each line is a chunk.
	resolve.LoadBindsGlobally = true
}

// NewGlobals returns the predeclared names of every script: the common
// modules and the document classes. The db global is added per invocation.
func NewGlobals() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module": starlark.NewBuiltin("module", starlarkstruct.MakeModule),

		"blob":   modBlob,
		"bson":   modBSON,
		"errors": modErrors,
		"json":   modJSON,
		"math":   modMath,
		"time":   modTime,

		"ObjectId":   modMongo.Members["ObjectId"],
		"Db":         modMongo.Members["Db"],
		"Collection": modMongo.Members["Collection"],
		"undefined":  starlarkbson.Undefined,
	}
}
