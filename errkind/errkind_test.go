// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errkind

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		want Kind
	}{{
		name: "nil",
		err:  nil,
		want: Unknown,
	}, {
		name: "plain",
		err:  io.EOF,
		want: Unknown,
	}, {
		name: "direct",
		err:  New(ClientNotFound, "find", io.EOF),
		want: ClientNotFound,
	}, {
		name: "wrapped",
		err:  fmt.Errorf("outer: %w", New(ConversionError, "insertOne", io.EOF)),
		want: ConversionError,
	}, {
		name: "outermost",
		err:  New(ScriptRuntimeError, "run", New(DatabaseOperationError, "find", io.EOF)),
		want: ScriptRuntimeError,
	}} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError(t *testing.T) {
	err := Errorf(DatabaseOperationError, "insertMany", "write failed: %w", io.ErrUnexpectedEOF)
	assert.Equal(t, "insertMany: write failed: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, &Error{Kind: DatabaseOperationError}))
	assert.False(t, errors.Is(err, &Error{Kind: ConversionError}))

	assert.Equal(t, "lookup: ClientNotFound", (&Error{Kind: ClientNotFound, Op: "lookup"}).Error())
	assert.Equal(t, "PersistenceError", PersistenceError.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
