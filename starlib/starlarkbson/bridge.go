// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package starlarkbson converts between Starlark values and BSON values.
//
// Conversion to Starlark:
//
//	Null, MinKey, MaxKey, DBPointer  None
//	Undefined                        undefined
//	Boolean                          bool
//	Int32, Int64                     int
//	Double                           float
//	String, Symbol                   string
//	Decimal128                       string, textual
//	Regex                            string, /pattern/options
//	Array                            list
//	Map                              dict, same order
//	Binary                           bytes
//	ObjectID                         ObjectId
//	DateTime, Timestamp              time.time
//	JavaScript, CodeWithScope        error
//
// Conversion to BSON:
//
//	None                             Null
//	undefined                        Undefined
//	bool                             Boolean
//	int                              Int32 if it fits, else Int64 clamped to range
//	float                            Double
//	string                           String
//	list, tuple                      Array
//	dict                             Map, string keys in insertion order
//	struct                           Map, attributes in name order
//	time.time                        DateTime, milliseconds
//	ObjectId                         ObjectID
//	bytes                            error, not implemented
//
// Symbol, Decimal128, Regex and Timestamp do not survive a round trip,
// they come back as strings and DateTimes.
package starlarkbson

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/docvalue"
	"mongolark.io/errkind"
)

// MaxDepth is the deepest nesting of arrays and maps converted.
const MaxDepth = 100

func conversionErrorf(format string, args ...any) error {
	return errkind.Errorf(errkind.ConversionError, "", format, args...)
}

// ToStarlark converts a BSON value to a Starlark value.
func ToStarlark(v any) (starlark.Value, error) {
	return toStarlark(v, 0)
}

func toStarlark(v any, depth int) (starlark.Value, error) {
	if depth > MaxDepth {
		return nil, conversionErrorf("document exceeds max depth %d", MaxDepth)
	}

	k, err := docvalue.KindOf(v)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, "", err)
	}

	switch k {
	case docvalue.Null, docvalue.MinKey, docvalue.MaxKey, docvalue.DBPointer:
		return starlark.None, nil
	case docvalue.Undefined:
		return Undefined, nil
	case docvalue.Boolean:
		return starlark.Bool(v.(bool)), nil
	case docvalue.Int32:
		return starlark.MakeInt64(int64(v.(int32))), nil
	case docvalue.Int64:
		return starlark.MakeInt64(v.(int64)), nil
	case docvalue.Double:
		return starlark.Float(v.(float64)), nil
	case docvalue.String:
		return starlark.String(v.(string)), nil
	case docvalue.Symbol:
		return starlark.String(v.(primitive.Symbol)), nil
	case docvalue.Decimal128:
		return starlark.String(v.(primitive.Decimal128).String()), nil
	case docvalue.Regex:
		re := v.(primitive.Regex)
		return starlark.String("/" + re.Pattern + "/" + re.Options), nil
	case docvalue.Array:
		xs := docvalue.Elements(v)
		elems := make([]starlark.Value, len(xs))
		for i, x := range xs {
			elem, err := toStarlark(x, depth+1)
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return starlark.NewList(elems), nil
	case docvalue.Map:
		entries := docvalue.Entries(v)
		dict := starlark.NewDict(len(entries))
		for _, e := range entries {
			val, err := toStarlark(e.Value, depth+1)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(e.Key), val); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case docvalue.Binary:
		return starlark.Bytes(v.(primitive.Binary).Data), nil
	case docvalue.ObjectID:
		return ObjectID(v.(primitive.ObjectID)), nil
	case docvalue.DateTime:
		switch v := v.(type) {
		case time.Time:
			return starlarktime.Time(v), nil
		default:
			return starlarktime.Time(v.(primitive.DateTime).Time()), nil
		}
	case docvalue.Timestamp:
		ts := v.(primitive.Timestamp)
		return starlarktime.Time(time.Unix(int64(ts.T), 0)), nil
	case docvalue.Code, docvalue.CodeWithScope:
		return nil, conversionErrorf("cannot convert %s to a script value", k)
	default:
		return nil, conversionErrorf("cannot convert %s to a script value", k)
	}
}

// ToBSON converts a Starlark value to a BSON value.
func ToBSON(v starlark.Value) (any, error) {
	return toBSON(v, 0)
}

// ToDocument converts a Starlark value that must become a Map.
func ToDocument(v starlark.Value) (bson.D, error) {
	x, err := toBSON(v, 0)
	if err != nil {
		return nil, err
	}
	doc, ok := x.(bson.D)
	if !ok {
		return nil, conversionErrorf("expected a document, got %s", v.Type())
	}
	return doc, nil
}

// ToDocuments converts a list or tuple of documents. Every element is
// converted before any is returned.
func ToDocuments(v starlark.Value) ([]bson.D, error) {
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, conversionErrorf("expected a list of documents, got %s", v.Type())
	}
	switch v.(type) {
	case *starlark.List, starlark.Tuple:
	default:
		return nil, conversionErrorf("expected a list of documents, got %s", v.Type())
	}

	docs := make([]bson.D, seq.Len())
	for i := range docs {
		doc, err := ToDocument(seq.Index(i))
		if err != nil {
			return nil, conversionErrorf("document %d: %w", i, err)
		}
		docs[i] = doc
	}
	return docs, nil
}

func toBSON(v starlark.Value, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, conversionErrorf("value exceeds max depth %d", MaxDepth)
	}

	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case UndefinedType:
		return primitive.Undefined{}, nil
	case starlark.String:
		return string(v), nil
	case starlark.Int:
		return intToBSON(v), nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Float:
		return float64(v), nil
	case *starlark.List:
		return seqToBSON(v, depth)
	case starlark.Tuple:
		return seqToBSON(v, depth)
	case starlarktime.Time:
		return primitive.NewDateTimeFromTime(time.Time(v)), nil
	case starlark.Bytes:
		return nil, conversionErrorf("cannot convert bytes: not implemented")
	case ObjectID:
		return primitive.ObjectID(v), nil
	case *starlark.Dict:
		doc := make(bson.D, 0, v.Len())
		for _, item := range v.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, conversionErrorf("document keys must be strings, got %s", item[0].Type())
			}
			val, err := toBSON(item[1], depth+1)
			if err != nil {
				return nil, err
			}
			doc = append(doc, bson.E{Key: string(key), Value: val})
		}
		return doc, nil
	case *starlarkstruct.Struct:
		names := v.AttrNames()
		doc := make(bson.D, 0, len(names))
		for _, name := range names {
			attr, err := v.Attr(name)
			if err != nil {
				return nil, err
			}
			val, err := toBSON(attr, depth+1)
			if err != nil {
				return nil, err
			}
			doc = append(doc, bson.E{Key: name, Value: val})
		}
		return doc, nil
	default:
		return nil, conversionErrorf("cannot convert %s to a document value", v.Type())
	}
}

func seqToBSON(seq starlark.Indexable, depth int) (bson.A, error) {
	arr := make(bson.A, seq.Len())
	for i := range arr {
		x, err := toBSON(seq.Index(i), depth+1)
		if err != nil {
			return nil, err
		}
		arr[i] = x
	}
	return arr, nil
}

// intToBSON narrows to Int32 when the value fits. Values beyond the int64
// range are clamped.
func intToBSON(v starlark.Int) any {
	i, ok := v.Int64()
	if !ok {
		if v.Sign() < 0 {
			return int64(math.MinInt64)
		}
		return int64(math.MaxInt64)
	}
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return int32(i)
	}
	return i
}
