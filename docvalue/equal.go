// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package docvalue

import (
	"bytes"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// number returns v as a float64 if it is a numeric kind.
func number(v any) (float64, bool) {
	switch v := v.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Equal reports whether a and b hold the same value.
//
// Numbers compare by value across Int32, Int64 and Double, NaN equals NaN.
// Maps compare in order. Other scalars compare by their BSON encoding.
func Equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	}

	ka, err := KindOf(a)
	if err != nil {
		return false
	}
	kb, err := KindOf(b)
	if err != nil || ka != kb {
		return false
	}

	switch ka {
	case Null, Undefined, MinKey, MaxKey:
		return true
	case Array:
		xs, ys := Elements(a), Elements(b)
		if len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !Equal(xs[i], ys[i]) {
				return false
			}
		}
		return true
	case Map:
		xs, ys := Entries(a), Entries(b)
		if len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if xs[i].Key != ys[i].Key || !Equal(xs[i].Value, ys[i].Value) {
				return false
			}
		}
		return true
	case DateTime:
		return dateTime(a) == dateTime(b)
	}

	ta, ba, err := bson.MarshalValue(a)
	if err != nil {
		return false
	}
	tb, bb, err := bson.MarshalValue(b)
	if err != nil {
		return false
	}
	return ta == tb && bytes.Equal(ba, bb)
}

func dateTime(v any) primitive.DateTime {
	switch v := v.(type) {
	case primitive.DateTime:
		return v
	case interface{ UnixMilli() int64 }:
		return primitive.DateTime(v.UnixMilli())
	default:
		return 0
	}
}
