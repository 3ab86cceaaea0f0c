// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"mongolark.io/docvalue"
	"mongolark.io/errkind"
	"mongolark.io/store"
)

// Client calls the commands of a remote server.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]interface{}, opts ...grpc.CallOption) (*structpb.Value, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, errkind.New(errkind.InvalidArgument, method, err)
	}
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, statusError(err)
	}
	return out, nil
}

func connectedFromValue(v *structpb.Value) (*Connected, error) {
	fields := v.GetStructValue().GetFields()
	c := &Connected{ID: fields["id"].GetStringValue()}
	if c.ID == "" {
		return nil, fmt.Errorf("invalid connect response: %v", v)
	}
	for _, db := range fields["dbs"].GetListValue().GetValues() {
		c.DBs = append(c.DBs, db.GetStringValue())
	}
	return c, nil
}

func (c *Client) Connect(ctx context.Context, uri, saveName string) (*Connected, error) {
	out, err := c.invoke(ctx, "Connect", map[string]interface{}{
		"uri":       uri,
		"save_name": saveName,
	})
	if err != nil {
		return nil, err
	}
	return connectedFromValue(out)
}

func (c *Client) ConnectSaved(ctx context.Context, id int64) (*Connected, error) {
	out, err := c.invoke(ctx, "ConnectSaved", map[string]interface{}{
		"id": id,
	})
	if err != nil {
		return nil, err
	}
	return connectedFromValue(out)
}

func (c *Client) ListCollections(ctx context.Context, clientID, db string) ([]string, error) {
	out, err := c.invoke(ctx, "ListCollections", map[string]interface{}{
		"client_id": clientID,
		"db":        db,
	})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, v := range out.GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// RunScript runs script remotely. The value is decoded from relaxed
// Extended JSON.
func (c *Client) RunScript(ctx context.Context, clientID, db, script string) (*Result, error) {
	var trailer metadata.MD
	out, err := c.invoke(ctx, "RunScript", map[string]interface{}{
		"client_id": clientID,
		"db":        db,
		"script":    script,
	}, grpc.Trailer(&trailer))
	if err != nil {
		return nil, err
	}
	b, err := protojson.Marshal(out)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, "result", err)
	}
	v, err := docvalue.UnmarshalExtJSON(b, false)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, "result", err)
	}
	return &Result{
		Value:  v,
		Output: strings.Join(trailer.Get(outputKey), ""),
	}, nil
}

func (c *Client) ListSavedConnections(ctx context.Context) ([]*store.Connection, error) {
	out, err := c.invoke(ctx, "ListSavedConnections", nil)
	if err != nil {
		return nil, err
	}
	var cs []*store.Connection
	for _, v := range out.GetListValue().GetValues() {
		fields := v.GetStructValue().GetFields()
		cs = append(cs, &store.Connection{
			ID:        int64(fields["id"].GetNumberValue()),
			Name:      fields["name"].GetStringValue(),
			URI:       fields["uri"].GetStringValue(),
			CreatedAt: time.Unix(int64(fields["created_at"].GetNumberValue()), 0),
		})
	}
	return cs, nil
}

func (c *Client) Disconnect(ctx context.Context, clientID string) error {
	_, err := c.invoke(ctx, "Disconnect", map[string]interface{}{
		"client_id": clientID,
	})
	return err
}
