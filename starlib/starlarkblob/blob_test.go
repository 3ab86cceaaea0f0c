// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkblob_test

import (
	"testing"

	_ "gocloud.dev/blob/memblob"

	"mongolark.io/starlib"
)

func TestExecFile(t *testing.T) {
	starlib.RunTests(t, "testdata/*.star", nil)
}
