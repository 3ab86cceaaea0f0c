// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlib

import (
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/starlib/starlarkblob"
	"mongolark.io/starlib/starlarkbson"
	"mongolark.io/starlib/starlarkerrors"
	"mongolark.io/starlib/starlarkmongo"
)

var (
	modBlob   = starlarkblob.NewModule()
	modBSON   = starlarkbson.NewModule()
	modErrors = starlarkerrors.NewModule()
	modJSON   = starlarkjson.Module // encoding
	modMath   = starlarkmath.Module
	modMongo  = starlarkmongo.NewModule()
	modTime   = starlarktime.Module

	stdLib = map[string]starlark.StringDict{
		"@std": makeDict(NewModule()),

		"blob.star":          makeDict(modBlob),
		"bson.star":          makeDict(modBSON),
		"encoding/json.star": makeDict(modJSON), // starlark
		"errors.star":        makeDict(modErrors),
		"math.star":          makeDict(modMath), // starlark
		"mongo.star":         makeDict(modMongo),
		"time.star":          makeDict(modTime), // starlark
	}
)

func makeDict(module *starlarkstruct.Module) starlark.StringDict {
	dict := make(starlark.StringDict, len(module.Members)+1)
	for key, val := range module.Members {
		dict[key] = val
	}
	// Add module if no module name.
	if _, ok := dict[module.Name]; !ok {
		dict[module.Name] = module
	}
	return dict
}

func NewModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "std",
		Members: starlark.StringDict{
			"blob":   modBlob,
			"bson":   modBSON,
			"errors": modErrors,
			"json":   modJSON,
			"math":   modMath,
			"mongo":  modMongo,
			"time":   modTime,
		},
	}
}

// StdLoad loads modules from the standard library.
func StdLoad(module string) (starlark.StringDict, bool) {
	v, ok := stdLib[module]
	return v, ok
}
