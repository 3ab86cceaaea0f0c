// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkbson

import "go.starlark.net/starlark"

// UndefinedType is the type of Undefined, the script value of the
// deprecated BSON undefined. It is distinct from None.
type UndefinedType byte

const Undefined = UndefinedType(0)

func (UndefinedType) String() string        { return "undefined" }
func (UndefinedType) Type() string          { return "undefined" }
func (UndefinedType) Freeze()               {} // immutable
func (UndefinedType) Truth() starlark.Bool  { return starlark.False }
func (UndefinedType) Hash() (uint32, error) { return 1, nil }
