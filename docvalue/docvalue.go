// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package docvalue describes the BSON values exchanged with the database.
//
// A document value is a Go value of one of the types below. The mongo-driver
// types are used directly so values pass to and from the driver unchanged.
//
// # Mapping
//
// Composite types
//
//	bson.D               Map (ordered, canonical)
//	bson.M               Map (unordered, keys sorted when walked)
//	bson.A, []any        Array
//
// Scalar types
//
//	nil                  Null (canonical)
//	primitive.Null       Null
//	primitive.Undefined  Undefined
//	bool                 Boolean
//	int32                Int32
//	int64                Int64
//	float64              Double
//	string               String
//	primitive.Symbol     Symbol
//	primitive.Decimal128 Decimal128
//	primitive.Binary     Binary
//	primitive.ObjectID   ObjectId
//	primitive.DateTime   UTC datetime (time.Time is accepted)
//	primitive.Timestamp  Timestamp
//	primitive.Regex      Regular expression
//	primitive.MinKey     MinKey
//	primitive.MaxKey     MaxKey
//	primitive.DBPointer  DBPointer
//	primitive.JavaScript JavaScript code
//	primitive.CodeWithScope JavaScript code with scope
package docvalue

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind is the variant of a document value.
type Kind int

const (
	Invalid Kind = iota
	Null
	Undefined
	Boolean
	Int32
	Int64
	Double
	String
	Symbol
	Decimal128
	Array
	Map
	Binary
	ObjectID
	DateTime
	Timestamp
	Regex
	MinKey
	MaxKey
	DBPointer
	Code
	CodeWithScope
)

var kindNames = [...]string{
	Invalid:       "invalid",
	Null:          "null",
	Undefined:     "undefined",
	Boolean:       "bool",
	Int32:         "int",
	Int64:         "long",
	Double:        "double",
	String:        "string",
	Symbol:        "symbol",
	Decimal128:    "decimal",
	Array:         "array",
	Map:           "object",
	Binary:        "binData",
	ObjectID:      "objectId",
	DateTime:      "date",
	Timestamp:     "timestamp",
	Regex:         "regex",
	MinKey:        "minKey",
	MaxKey:        "maxKey",
	DBPointer:     "dbPointer",
	Code:          "javascript",
	CodeWithScope: "javascriptWithScope",
}

// String returns the BSON type alias used by the server ($type operator).
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// KindOf returns the variant of v.
// Values outside the mapping return an error, never a default kind.
func KindOf(v any) (Kind, error) {
	switch v.(type) {
	case nil, primitive.Null:
		return Null, nil
	case primitive.Undefined:
		return Undefined, nil
	case bool:
		return Boolean, nil
	case int32:
		return Int32, nil
	case int64:
		return Int64, nil
	case float64:
		return Double, nil
	case string:
		return String, nil
	case primitive.Symbol:
		return Symbol, nil
	case primitive.Decimal128:
		return Decimal128, nil
	case bson.A, []any:
		return Array, nil
	case bson.D, bson.M:
		return Map, nil
	case primitive.Binary:
		return Binary, nil
	case primitive.ObjectID:
		return ObjectID, nil
	case primitive.DateTime, time.Time:
		return DateTime, nil
	case primitive.Timestamp:
		return Timestamp, nil
	case primitive.Regex:
		return Regex, nil
	case primitive.MinKey:
		return MinKey, nil
	case primitive.MaxKey:
		return MaxKey, nil
	case primitive.DBPointer:
		return DBPointer, nil
	case primitive.JavaScript:
		return Code, nil
	case primitive.CodeWithScope:
		return CodeWithScope, nil
	default:
		return Invalid, fmt.Errorf("docvalue: unsupported type %T", v)
	}
}

// Validate checks v and everything it contains belongs to the mapping.
func Validate(v any) error {
	k, err := KindOf(v)
	if err != nil {
		return err
	}
	switch k {
	case Array:
		for i, e := range Elements(v) {
			if err := Validate(e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case Map:
		for _, e := range Entries(v) {
			if err := Validate(e.Value); err != nil {
				return fmt.Errorf("%s: %w", e.Key, err)
			}
		}
	}
	return nil
}

// Elements returns the elements of an Array value, or nil.
func Elements(v any) []any {
	switch v := v.(type) {
	case bson.A:
		return v
	case []any:
		return v
	default:
		return nil
	}
}

// Entries returns the entries of a Map value in order, or nil.
// bson.M entries are sorted by key.
func Entries(v any) bson.D {
	switch v := v.(type) {
	case bson.D:
		return v
	case bson.M:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(keys))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: v[k]})
		}
		return d
	default:
		return nil
	}
}

// Lookup returns the value at a dotted path inside doc.
// Numeric path elements index arrays.
func Lookup(doc bson.D, path ...string) (any, bool) {
	var cur any = doc
	for _, p := range path {
		switch c := cur.(type) {
		case bson.D, bson.M:
			var found bool
			for _, e := range Entries(c) {
				if e.Key == p {
					cur, found = e.Value, true
					break
				}
			}
			if !found {
				return nil, false
			}
		case bson.A, []any:
			i, err := strconv.Atoi(p)
			if err != nil {
				return nil, false
			}
			es := Elements(c)
			if i < 0 || i >= len(es) {
				return nil, false
			}
			cur = es[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
