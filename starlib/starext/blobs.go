// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package starext

import (
	"context"
	"errors"
	"sync"

	"gocloud.dev/blob"
)

// Blobs is a pool of open buckets keyed by URL.
type Blobs struct {
	mu   sync.Mutex // protects bkts
	bkts map[string]*blob.Bucket
}

// OpenBucket returns the pooled bucket for urlstr, opening it on first use.
// Buckets are closed by Blobs.Close.
func (b *Blobs) OpenBucket(ctx context.Context, urlstr string) (*blob.Bucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bkt, ok := b.bkts[urlstr]; ok {
		return bkt, nil
	}

	bkt, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, err
	}

	if b.bkts == nil {
		b.bkts = make(map[string]*blob.Bucket)
	}
	b.bkts[urlstr] = bkt
	return bkt, nil
}

// ReadAll reads key from the bucket at urlstr.
func (b *Blobs) ReadAll(ctx context.Context, urlstr, key string) ([]byte, error) {
	bkt, err := b.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, err
	}
	return bkt.ReadAll(ctx, key)
}

// WriteAll writes key to the bucket at urlstr.
func (b *Blobs) WriteAll(ctx context.Context, urlstr, key string, p []byte) error {
	bkt, err := b.OpenBucket(ctx, urlstr)
	if err != nil {
		return err
	}
	return bkt.WriteAll(ctx, key, p, nil)
}

// Close open buckets.
func (b *Blobs) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, bkt := range b.bkts {
		errs = append(errs, bkt.Close())
	}
	b.bkts = nil
	return errors.Join(errs...)
}
