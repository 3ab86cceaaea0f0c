// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package worker

import (
	"context"
	"math"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"mongolark.io/docvalue"
	"mongolark.io/errkind"
)

// ServiceName is the gRPC service of the commands.
const ServiceName = "mongolark.v1.Commands"

// outputKey is the trailer carrying the print output of RunScript.
const outputKey = "mongolark-output-bin"

// commandsServer is the handler type of the service.
type commandsServer interface {
	RunScript(ctx context.Context, clientID, db, script string) (*Result, error)
}

type handlerFunc func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Value, error)

func method(name string, fn handlerFunc) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				out, err := fn(srv.(*Server), ctx, req.(*structpb.Struct))
				if err != nil {
					logr.FromContextOrDiscard(ctx).Info("command failed", "method", name, "kind", errkind.KindOf(err).String(), "err", err.Error())
					return nil, errorStatus(err).Err()
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var commandsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*commandsServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Connect", handleConnect),
		method("ConnectSaved", handleConnectSaved),
		method("ListCollections", handleListCollections),
		method("RunScript", handleRunScript),
		method("ListSavedConnections", handleListSavedConnections),
		method("Disconnect", handleDisconnect),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mongolark/v1/commands.proto",
}

// Register registers the commands service of s.
func Register(r grpc.ServiceRegistrar, s *Server) {
	r.RegisterService(&commandsServiceDesc, s)
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func intField(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, errkind.Errorf(errkind.InvalidArgument, "", "missing field %q", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, errkind.Errorf(errkind.InvalidArgument, "", "field %q must be an integer", name)
	}
	return int64(n.NumberValue), nil
}

func connectedValue(c *Connected) (*structpb.Value, error) {
	dbs := make([]interface{}, len(c.DBs))
	for i, db := range c.DBs {
		dbs[i] = db
	}
	return structpb.NewValue(map[string]interface{}{
		"id":  c.ID,
		"dbs": dbs,
	})
}

func handleConnect(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	c, err := s.Connect(ctx, stringField(req, "uri"), stringField(req, "save_name"))
	if err != nil {
		return nil, err
	}
	return connectedValue(c)
}

func handleConnectSaved(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	id, err := intField(req, "id")
	if err != nil {
		return nil, err
	}
	c, err := s.ConnectSaved(ctx, id)
	if err != nil {
		return nil, err
	}
	return connectedValue(c)
}

func handleListCollections(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	names, err := s.ListCollections(ctx, stringField(req, "client_id"), stringField(req, "db"))
	if err != nil {
		return nil, err
	}
	vs := make([]*structpb.Value, len(names))
	for i, name := range names {
		vs[i] = structpb.NewStringValue(name)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vs}), nil
}

func handleRunScript(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	res, err := s.RunScript(ctx,
		stringField(req, "client_id"),
		stringField(req, "db"),
		stringField(req, "script"),
	)
	if err != nil {
		return nil, err
	}
	b, err := docvalue.MarshalExtJSON(res.Value, false)
	if err != nil {
		return nil, errkind.New(errkind.ConversionError, "result", err)
	}
	out := new(structpb.Value)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, errkind.New(errkind.ConversionError, "result", err)
	}
	if res.Output != "" {
		if err := grpc.SetTrailer(ctx, metadata.Pairs(outputKey, res.Output)); err != nil {
			logr.FromContextOrDiscard(ctx).Error(err, "setting output trailer")
		}
	}
	return out, nil
}

func handleListSavedConnections(s *Server, ctx context.Context, _ *structpb.Struct) (*structpb.Value, error) {
	cs, err := s.ListSavedConnections(ctx)
	if err != nil {
		return nil, err
	}
	vs := make([]interface{}, len(cs))
	for i, c := range cs {
		vs[i] = map[string]interface{}{
			"id":         c.ID,
			"name":       c.Name,
			"uri":        c.URI,
			"created_at": c.CreatedAt.Unix(),
		}
	}
	return structpb.NewValue(vs)
}

func handleDisconnect(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	if err := s.Disconnect(ctx, stringField(req, "client_id")); err != nil {
		return nil, err
	}
	return structpb.NewNullValue(), nil
}

// NewUnaryContextLogr injects log into the context of every call.
func NewUnaryContextLogr(log logr.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx = logr.NewContext(ctx, log.WithValues("method", info.FullMethod))
		return handler(ctx, req)
	}
}
