// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package starlarkblob gives scripts access to gocloud blob buckets, used to
// stage exported documents or read fixtures.
package starlarkblob

import (
	"fmt"
	"io"
	"sort"

	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"gocloud.dev/blob"

	"mongolark.io/starlib/starext"
	"mongolark.io/starlib/starlarkthread"
)

func NewModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "blob",
		Members: starlark.StringDict{
			"open": starext.MakeBuiltin("blob.open", Open),
		},
	}
}

// Open opens the bucket at a URL. The bucket is closed with the thread's
// resources if the script does not close it.
func Open(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 1, &name); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	bkt, err := blob.OpenBucket(ctx, name)
	if err != nil {
		return nil, err
	}

	b := &Bucket{name: name, bkt: bkt}
	if err := starlarkthread.AddResource(thread, b); err != nil {
		bkt.Close() //nolint
		return nil, err
	}
	return b, nil
}

type Bucket struct {
	name   string
	bkt    *blob.Bucket
	closed bool
}

var _ io.Closer = (*Bucket)(nil)

// Close closes the bucket once.
func (b *Bucket) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.bkt.Close()
}

func (b *Bucket) String() string        { return fmt.Sprintf("<bucket %q>", b.name) }
func (b *Bucket) Type() string          { return "blob.bucket" }
func (b *Bucket) Freeze()               {} // concurrent safe
func (b *Bucket) Truth() starlark.Bool  { return starlark.Bool(!b.closed) }
func (b *Bucket) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", b.Type()) }

var bucketAttrs = starext.NewAttrs(map[string]func(b *Bucket) starlark.Value{
	"attributes": func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "attributes", b.attributes) },
	"close":      func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "close", b.close) },
	"delete":     func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "delete", b.delete) },
	"exists":     func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "exists", b.exists) },
	"keys":       func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "keys", b.keys) },
	"readAll":    func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "readAll", b.readAll) },
	"writeAll":   func(b *Bucket) starlark.Value { return starext.MakeMethod(b, "writeAll", b.writeAll) },
})

func (b *Bucket) Attr(name string) (starlark.Value, error) {
	return bucketAttrs.Attr(b, name), nil
}
func (b *Bucket) AttrNames() []string { return bucketAttrs.Names() }

func (b *Bucket) checkOpen(fnname string) error {
	if b.closed {
		return fmt.Errorf("%s: bucket %q is closed", fnname, b.name)
	}
	return nil
}

func (b *Bucket) attributes(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 1, &key); err != nil {
		return nil, err
	}
	if err := b.checkOpen(fnname); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	p, err := b.bkt.Attributes(ctx, key)
	if err != nil {
		return nil, err
	}

	metadata := starlark.NewDict(len(p.Metadata))
	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := metadata.SetKey(starlark.String(k), starlark.String(p.Metadata[k])); err != nil {
			return nil, err
		}
	}

	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"contentType": starlark.String(p.ContentType),
		"etag":        starlark.String(p.ETag),
		"md5":         starlark.Bytes(p.MD5),
		"metadata":    metadata,
		"modTime":     starlarktime.Time(p.ModTime),
		"size":        starlark.MakeInt64(p.Size),
	}), nil
}

func (b *Bucket) writeAll(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		key      string
		data     starlark.Value
		metadata *starlark.Dict
		opts     blob.WriterOptions
	)
	if err := starlark.UnpackArgs(fnname, args, kwargs,
		"key", &key,
		"data", &data,
		"content_type?", &opts.ContentType,
		"metadata?", &metadata,
	); err != nil {
		return nil, err
	}
	if err := b.checkOpen(fnname); err != nil {
		return nil, err
	}

	var p []byte
	switch x := data.(type) {
	case starlark.String:
		p = []byte(x)
	case starlark.Bytes:
		p = []byte(x)
	default:
		return nil, fmt.Errorf("%s: got %s for data, want string or bytes", fnname, data.Type())
	}

	if metadata != nil && metadata.Len() > 0 {
		opts.Metadata = make(map[string]string, metadata.Len())
		for _, item := range metadata.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("%s: invalid metadata key: %v", fnname, item[0])
			}
			v, ok := starlark.AsString(item[1])
			if !ok {
				return nil, fmt.Errorf("%s: invalid metadata value for %q: %v", fnname, k, item[1])
			}
			opts.Metadata[k] = v
		}
	}

	ctx := starlarkthread.GetContext(thread)
	if err := b.bkt.WriteAll(ctx, key, p, &opts); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (b *Bucket) readAll(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 1, &key); err != nil {
		return nil, err
	}
	if err := b.checkOpen(fnname); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	p, err := b.bkt.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return starlark.Bytes(p), nil
}

func (b *Bucket) exists(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 1, &key); err != nil {
		return nil, err
	}
	if err := b.checkOpen(fnname); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	ok, err := b.bkt.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(ok), nil
}

// keys lists the keys under a prefix in lexical order.
func (b *Bucket) keys(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prefix string
	if err := starlark.UnpackArgs(fnname, args, kwargs, "prefix?", &prefix); err != nil {
		return nil, err
	}
	if err := b.checkOpen(fnname); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	iter := b.bkt.List(&blob.ListOptions{Prefix: prefix})
	var keys []starlark.Value
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, starlark.String(obj.Key))
	}
	return starlark.NewList(keys), nil
}

func (b *Bucket) delete(thread *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 1, &key); err != nil {
		return nil, err
	}
	if err := b.checkOpen(fnname); err != nil {
		return nil, err
	}

	ctx := starlarkthread.GetContext(thread)
	if err := b.bkt.Delete(ctx, key); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (b *Bucket) close(_ *starlark.Thread, fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fnname, args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := b.Close(); err != nil {
		return nil, err
	}
	return starlark.None, nil
}
