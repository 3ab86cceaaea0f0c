// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/bazelbuild/buildtools/build"
	"github.com/bazelbuild/buildtools/convertast"
	"github.com/go-logr/logr"
	"go.starlark.net/syntax"
	"gocloud.dev/blob"

	"mongolark.io/errkind"
)

// Format starlark code.
func Format(_ context.Context, filename string, src interface{}) ([]byte, error) {
	ast, err := syntax.Parse(filename, src, syntax.RetainComments)
	if err != nil {
		return nil, errkind.New(errkind.ScriptParseError, "format", err)
	}
	newAst := convertast.ConvFile(ast)
	return build.Format(newAst), nil
}

// FormatBucket formats the keys of bkt matching pattern in place and
// returns the keys that changed.
func FormatBucket(ctx context.Context, bkt *blob.Bucket, pattern string) ([]string, error) {
	log := logr.FromContextOrDiscard(ctx)

	// Limit choice by prefix, path.Match the rest.
	opts := &blob.ListOptions{
		Prefix: pattern,
	}
	if i := strings.IndexAny(pattern, "*?[\\"); i >= 0 {
		opts.Prefix = pattern[:i]
	}

	var changed []string
	iter := bkt.List(opts)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return changed, err
		}
		if obj.IsDir {
			continue
		}
		if ok, _ := path.Match(pattern, obj.Key); !ok {
			continue
		}

		src, err := bkt.ReadAll(ctx, obj.Key)
		if err != nil {
			return changed, err
		}
		dst, err := Format(ctx, obj.Key, src)
		if err != nil {
			return changed, err
		}
		if bytes.Equal(src, dst) {
			continue
		}

		log.Info("formatting", "key", obj.Key)
		if err := bkt.WriteAll(ctx, obj.Key, dst, nil); err != nil {
			return changed, err
		}
		changed = append(changed, obj.Key)
	}
	return changed, nil
}
