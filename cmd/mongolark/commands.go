// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/runtimevar"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"mongolark.io/registry"
	"mongolark.io/store"
	"mongolark.io/worker"
)

// commands are served in process by a worker.Server or remotely through
// a worker.Client.
type commands interface {
	Connect(ctx context.Context, uri, saveName string) (*worker.Connected, error)
	ConnectSaved(ctx context.Context, id int64) (*worker.Connected, error)
	ListCollections(ctx context.Context, clientID, db string) ([]string, error)
	RunScript(ctx context.Context, clientID, db, script string) (*worker.Result, error)
	ListSavedConnections(ctx context.Context) ([]*store.Connection, error)
	Disconnect(ctx context.Context, clientID string) error
}

var (
	_ commands = (*worker.Server)(nil)
	_ commands = (*worker.Client)(nil)
)

// local is an in process server.
type local struct {
	*worker.Server
	registry *registry.Registry
	host     *worker.Host
	store    *store.Store
}

func openLocal(ctx context.Context, dsn string, opts ...worker.HostOption) (*local, error) {
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	r := registry.New()
	h := worker.NewHost(r, opts...)
	return &local{
		Server:   worker.NewServer(r, h, st),
		registry: r,
		host:     h,
		store:    st,
	}, nil
}

func (l *local) Close() error {
	return errors.Join(
		l.registry.Close(context.Background()),
		l.store.Close(),
	)
}

func loadTransportCredentials() (credentials.TransportCredentials, error) {
	if cli.Insecure {
		return insecure.NewCredentials(), nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}
	return credentials.NewClientTLSFromCert(pool, ""), nil
}

func openCommands(ctx context.Context) (commands, func() error, error) {
	if addr := cli.Remote; addr != "" {
		creds, err := loadTransportCredentials()
		if err != nil {
			return nil, nil, err
		}
		cc, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, nil, err
		}
		return worker.NewClient(cc), cc.Close, nil
	}

	l, err := openLocal(ctx, cli.Store, hostOptions(nil)...)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Close, nil
}

// readURIVar reads a connection URI from a gocloud runtime variable.
func readURIVar(ctx context.Context, urlstr string) (string, error) {
	v, err := runtimevar.OpenVariable(ctx, urlstr)
	if err != nil {
		return "", err
	}
	defer v.Close()

	snap, err := v.Latest(ctx)
	if err != nil {
		return "", err
	}
	switch x := snap.Value.(type) {
	case string:
		return strings.TrimSpace(x), nil
	case []byte:
		return strings.TrimSpace(string(x)), nil
	default:
		return "", fmt.Errorf("runtime variable %s: unexpected type %T, use decoder=string", urlstr, x)
	}
}

func connect(ctx context.Context, cmds commands, flags ConnFlags) (*worker.Connected, error) {
	if flags.Saved != 0 {
		return cmds.ConnectSaved(ctx, flags.Saved)
	}
	uri := flags.URI
	if flags.URIVar != "" {
		var err error
		if uri, err = readURIVar(ctx, flags.URIVar); err != nil {
			return nil, err
		}
	}
	return cmds.Connect(ctx, uri, "")
}
