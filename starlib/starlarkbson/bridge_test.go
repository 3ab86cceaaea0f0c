// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkbson

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"mongolark.io/docvalue"
	"mongolark.io/errkind"
)

func TestRoundTrip(t *testing.T) {
	now := primitive.NewDateTimeFromTime(time.Now())
	oid := primitive.NewObjectID()

	for _, tt := range []struct {
		name  string
		value any
	}{
		{"null", nil},
		{"boolean", true},
		{"int32", int32(-7)},
		{"int32_max", int32(math.MaxInt32)},
		{"int64", int64(math.MaxInt64)},
		{"double", 1.25},
		{"string", "hello"},
		{"array", bson.A{int32(1), "a", bson.A{}}},
		{"map", bson.D{{Key: "z", Value: int32(1)}, {Key: "a", Value: bson.D{{Key: "b", Value: nil}}}}},
		{"objectid", oid},
		{"datetime", now},
		{"undefined", primitive.Undefined{}},
		{"nested", bson.D{{Key: "_id", Value: oid}, {Key: "at", Value: now}, {Key: "tags", Value: bson.A{"x"}}}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			sv, err := ToStarlark(tt.value)
			require.NoError(t, err)
			got, err := ToBSON(sv)
			require.NoError(t, err)
			assert.True(t, docvalue.Equal(tt.value, got), "got %#v, want %#v", got, tt.value)
		})
	}
}

func TestLossy(t *testing.T) {
	dec, err := primitive.ParseDecimal128("15")
	require.NoError(t, err)

	for _, tt := range []struct {
		name  string
		value any
		want  starlark.Value
	}{
		{"symbol", primitive.Symbol("sym"), starlark.String("sym")},
		{"decimal", dec, starlark.String("15")},
		{"regex", primitive.Regex{Pattern: "^a", Options: "i"}, starlark.String("/^a/i")},
		{"timestamp", primitive.Timestamp{T: 1600000000, I: 3}, starlarktime.Time(time.Unix(1600000000, 0))},
		{"minkey", primitive.MinKey{}, starlark.None},
		{"maxkey", primitive.MaxKey{}, starlark.None},
		{"dbpointer", primitive.DBPointer{DB: "db", Pointer: primitive.NewObjectID()}, starlark.None},
		{"binary", primitive.Binary{Data: []byte("ab")}, starlark.Bytes("ab")},
	} {
		t.Run(tt.name, func(t *testing.T) {
			sv, err := ToStarlark(tt.value)
			require.NoError(t, err)
			eq, err := starlark.Equal(tt.want, sv)
			require.NoError(t, err)
			assert.True(t, eq, "got %s, want %s", sv, tt.want)

			if _, ok := sv.(starlark.Bytes); ok {
				return // bytes are not converted back
			}
			_, err = ToBSON(sv)
			assert.NoError(t, err)
		})
	}
}

func TestToStarlarkErrors(t *testing.T) {
	for _, v := range []any{
		primitive.JavaScript("1"),
		primitive.CodeWithScope{Code: "1"},
		uint8(1),
		bson.D{{Key: "f", Value: bson.A{primitive.JavaScript("1")}}},
	} {
		_, err := ToStarlark(v)
		require.Error(t, err, "%T", v)
		assert.Equal(t, errkind.ConversionError, errkind.KindOf(err), "%T", v)
	}
}

func TestToBSON(t *testing.T) {
	big1 := new(big.Int).Lsh(big.NewInt(1), 70)

	dict := starlark.NewDict(2)
	require.NoError(t, dict.SetKey(starlark.String("b"), starlark.MakeInt(1)))
	require.NoError(t, dict.SetKey(starlark.String("a"), starlark.Tuple{starlark.True, starlark.Float(0.5)}))

	at := time.Date(2022, 5, 1, 10, 0, 0, 123456789, time.UTC)

	for _, tt := range []struct {
		name  string
		value starlark.Value
		want  any
	}{
		{"none", starlark.None, nil},
		{"undefined", Undefined, primitive.Undefined{}},
		{"int32", starlark.MakeInt(42), int32(42)},
		{"int64", starlark.MakeInt64(math.MaxInt32 + 1), int64(math.MaxInt32 + 1)},
		{"int_clamp_max", starlark.MakeBigInt(big1), int64(math.MaxInt64)},
		{"int_clamp_min", starlark.MakeBigInt(new(big.Int).Neg(big1)), int64(math.MinInt64)},
		{"dict_order", dict, bson.D{
			{Key: "b", Value: int32(1)},
			{Key: "a", Value: bson.A{true, 0.5}},
		}},
		{"struct", starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"y": starlark.String("2"),
			"x": starlark.String("1"),
		}), bson.D{{Key: "x", Value: "1"}, {Key: "y", Value: "2"}}},
		{"time", starlarktime.Time(at), primitive.DateTime(at.UnixMilli())},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToBSON(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToBSONErrors(t *testing.T) {
	badKey := starlark.NewDict(1)
	require.NoError(t, badKey.SetKey(starlark.MakeInt(1), starlark.None))

	self := starlark.NewList(nil)
	require.NoError(t, self.Append(self))

	set := starlark.NewSet(0)

	for _, tt := range []struct {
		name  string
		value starlark.Value
		msg   string
	}{
		{"bytes", starlark.Bytes("x"), "not implemented"},
		{"key", badKey, "keys must be strings"},
		{"cycle", self, "max depth"},
		{"set", set, "cannot convert set"},
		{"builtin", starlark.NewBuiltin("f", nil), "cannot convert builtin_function_or_method"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToBSON(tt.value)
			require.Error(t, err)
			assert.Equal(t, errkind.ConversionError, errkind.KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := ToDocument(starlark.MakeInt(1))
	assert.Equal(t, errkind.ConversionError, errkind.KindOf(err))

	_, err = ToDocuments(starlark.NewList([]starlark.Value{starlark.NewDict(0), starlark.String("x")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document 1")

	_, err = ToDocuments(starlark.NewDict(0))
	assert.Equal(t, errkind.ConversionError, errkind.KindOf(err))
}

func TestObjectID(t *testing.T) {
	const hex = "5f2b1c9e8d3a4b5c6d7e8f90"
	globals := starlark.StringDict{
		"ObjectId":  NewModule().Members["ObjectId"],
		"undefined": Undefined,
	}

	thread := &starlark.Thread{Name: "objectid"}
	src := `
a = ObjectId("` + hex + `")
b = ObjectId("` + hex + `")
c = ObjectId()
seen = {a: 1}
results = [
    a == b,
    a != c,
    a.toString(),
    a.to_json(),
    str(a),
    seen[b],
    a.timestamp().unix,
    type(a),
    bool(undefined),
    str(undefined),
    bool(a),
    bool(ObjectId("000000000000000000000000")),
]
`
	g, err := starlark.ExecFile(thread, "objectid.star", src, globals)
	require.NoError(t, err)

	want := `[True, True, "` + hex + `", "` + hex + `", "ObjectId(\"` + hex + `\")", 1, 1596660894, "ObjectId", False, "undefined", True, False]`
	assert.Equal(t, want, g["results"].String())

	_, err = starlark.ExecFile(thread, "bad.star", `ObjectId("zz")`, globals)
	require.Error(t, err)
	assert.Equal(t, errkind.InvalidArgument, errkind.KindOf(err))
}
