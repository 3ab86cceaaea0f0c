// Copyright 2022 Edward McFarlane. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mongolark.io/worker"
)

// newMetricsHandler serves the collectors of reg.
func newMetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.InstrumentMetricHandler(
		reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}),
	)
}

func serve(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx)

	metrics := worker.NewMetrics()
	l, err := openLocal(ctx, cli.Store, hostOptions(metrics)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			log.Error(err, "closing")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics,
		l.registry,
	)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(worker.NewUnaryContextLogr(log)),
	)
	worker.Register(grpcServer, l.Server)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(worker.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cli.Serve.Addr)
	if err != nil {
		return err
	}
	defer lis.Close()

	debugLis, err := net.Listen("tcp", cli.Serve.DebugAddr)
	if err != nil {
		return err
	}
	defer debugLis.Close()

	mux := http.NewServeMux()
	mux.Handle("/debug/metrics", newMetricsHandler(reg))
	httpServer := &http.Server{Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "address", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("serving metrics", "address", debugLis.Addr().String())
		if err := httpServer.Serve(debugLis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(context.Background())
	})
	return g.Wait()
}
