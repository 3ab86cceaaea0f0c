// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starlarkmongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.starlark.net/starlark"

	"mongolark.io/driver"
	"mongolark.io/starlib/starext"
	"mongolark.io/starlib/starlarkbson"
	"mongolark.io/starlib/starlarkthread"
)

// Collection shares its Db, it never copies it.
type Collection struct {
	name string
	db   *DB
}

func NewCollection(name string, db *DB) *Collection { return &Collection{name: name, db: db} }

func (v *Collection) Name() string { return v.name }
func (v *Collection) DB() *DB      { return v.db }

func (v *Collection) String() string {
	return fmt.Sprintf("<collection %q>", v.db.name+"."+v.name)
}
func (v *Collection) Type() string          { return "Collection" }
func (v *Collection) Freeze()               {} // immutable
func (v *Collection) Truth() starlark.Bool  { return starlark.True }
func (v *Collection) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", v.Type()) }

var collectionAttrs = starext.NewAttrs(map[string]func(v *Collection) starlark.Value{
	"name":       func(v *Collection) starlark.Value { return starlark.String(v.name) },
	"db":         func(v *Collection) starlark.Value { return v.db },
	"find":       func(v *Collection) starlark.Value { return starext.MakeMethod(v, "find", v.find) },
	"findOne":    func(v *Collection) starlark.Value { return starext.MakeMethod(v, "findOne", v.findOne) },
	"insertOne":  func(v *Collection) starlark.Value { return starext.MakeMethod(v, "insertOne", v.insertOne) },
	"insertMany": func(v *Collection) starlark.Value { return starext.MakeMethod(v, "insertMany", v.insertMany) },
})

func (v *Collection) Attr(name string) (starlark.Value, error) {
	return collectionAttrs.Attr(v, name), nil
}
func (v *Collection) AttrNames() []string { return collectionAttrs.Names() }

// collection resolves the driver collection for this call.
func (v *Collection) collection(thread *starlark.Thread, fnname string) (driver.Collection, error) {
	c, err := client(thread, fnname, v.db.clientID)
	if err != nil {
		return nil, err
	}
	return c.Database(v.db.name).Collection(v.name), nil
}

// filter converts an optional filter argument, None and missing match
// everything.
func filter(fnname string, v starlark.Value) (bson.D, error) {
	if v == nil || v == starlark.None {
		return bson.D{}, nil
	}
	doc, err := starlarkbson.ToDocument(v)
	if err != nil {
		return nil, fmt.Errorf("%s: filter: %w", fnname, err)
	}
	return doc, nil
}

func (v *Collection) find(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	coll, err := v.collection(thread, fnname)
	if err != nil {
		return nil, err
	}
	var filterv starlark.Value
	if err := starlark.UnpackArgs(fnname, args, kwargs, "filter?", &filterv); err != nil {
		return nil, err
	}
	f, err := filter(fnname, filterv)
	if err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	starlarkthread.GetLogger(thread).V(1).Info("find", "db", v.db.name, "collection", v.name)

	docs, err := coll.Find(ctx, f)
	if err != nil {
		return nil, driverError(fnname, err)
	}

	elems := make([]starlark.Value, len(docs))
	for i, doc := range docs {
		elem, err := starlarkbson.ToStarlark(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fnname, err)
		}
		elems[i] = elem
	}
	return starlark.NewList(elems), nil
}

func (v *Collection) findOne(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	coll, err := v.collection(thread, fnname)
	if err != nil {
		return nil, err
	}
	var filterv starlark.Value
	if err := starlark.UnpackArgs(fnname, args, kwargs, "filter?", &filterv); err != nil {
		return nil, err
	}
	f, err := filter(fnname, filterv)
	if err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	starlarkthread.GetLogger(thread).V(1).Info("findOne", "db", v.db.name, "collection", v.name)

	doc, err := coll.FindOne(ctx, f)
	if err != nil {
		return nil, driverError(fnname, err)
	}
	if doc == nil {
		return starlark.None, nil
	}
	val, err := starlarkbson.ToStarlark(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}
	return val, nil
}

func (v *Collection) insertOne(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	coll, err := v.collection(thread, fnname)
	if err != nil {
		return nil, err
	}
	var docv starlark.Value
	if err := starlark.UnpackArgs(fnname, args, kwargs, "doc", &docv); err != nil {
		return nil, err
	}
	doc, err := starlarkbson.ToDocument(docv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}

	ctx := starlarkthread.GetContext(thread)
	starlarkthread.GetLogger(thread).V(1).Info("insertOne", "db", v.db.name, "collection", v.name)

	id, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, driverError(fnname, err)
	}
	idv, err := starlarkbson.ToStarlark(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}

	res := starlark.NewDict(2)
	if err := res.SetKey(starlark.String("acknowledged"), starlark.True); err != nil {
		return nil, err
	}
	if err := res.SetKey(starlark.String("insertedId"), idv); err != nil {
		return nil, err
	}
	return res, nil
}

func (v *Collection) insertMany(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	coll, err := v.collection(thread, fnname)
	if err != nil {
		return nil, err
	}
	var docsv starlark.Value
	if err := starlark.UnpackArgs(fnname, args, kwargs, "docs", &docsv); err != nil {
		return nil, err
	}
	docs, err := starlarkbson.ToDocuments(docsv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnname, err)
	}

	ctx := starlarkthread.GetContext(thread)
	starlarkthread.GetLogger(thread).V(1).Info("insertMany", "db", v.db.name, "collection", v.name, "count", len(docs))

	ids, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, driverError(fnname, err)
	}

	elems := make([]starlark.Value, len(ids))
	for i, id := range ids {
		idv, err := starlarkbson.ToStarlark(id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fnname, err)
		}
		elems[i] = idv
	}

	res := starlark.NewDict(2)
	if err := res.SetKey(starlark.String("acknowledged"), starlark.True); err != nil {
		return nil, err
	}
	if err := res.SetKey(starlark.String("insertedIds"), starlark.NewList(elems)); err != nil {
		return nil, err
	}
	return res, nil
}
