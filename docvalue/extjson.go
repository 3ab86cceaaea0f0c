// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package docvalue

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// wrapKey holds a value inside a single field document, the driver only
// renders documents as Extended JSON.
const wrapKey = "v"

// MarshalExtJSON renders any document value as Extended JSON, including
// scalars and arrays.
func MarshalExtJSON(v any, canonical bool) ([]byte, error) {
	if err := Validate(v); err != nil {
		return nil, err
	}
	b, err := bson.MarshalExtJSON(bson.D{{Key: wrapKey, Value: v}}, canonical, false)
	if err != nil {
		return nil, fmt.Errorf("docvalue: %w", err)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return nil, fmt.Errorf("docvalue: %w", err)
	}
	return wrapper[wrapKey], nil
}

// UnmarshalExtJSON parses a single Extended JSON value.
// Documents decode to bson.D and arrays to bson.A.
func UnmarshalExtJSON(b []byte, canonical bool) (any, error) {
	src := make([]byte, 0, len(b)+8)
	src = append(src, `{"`+wrapKey+`":`...)
	src = append(src, b...)
	src = append(src, '}')

	var doc bson.D
	if err := bson.UnmarshalExtJSON(src, canonical, &doc); err != nil {
		return nil, fmt.Errorf("docvalue: %w", err)
	}
	if len(doc) != 1 {
		return nil, fmt.Errorf("docvalue: invalid extended JSON value")
	}
	return doc[0].Value, nil
}
