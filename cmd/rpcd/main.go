// Command rpcd serves the echo method and its ping alias.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"rpccore/calls"
	"rpccore/config"
	"rpccore/middleware"
	"rpccore/registry"
	"rpccore/server"
	"rpccore/types"
)

var (
	fConfig = pflag.StringP("config", "c", "", "path to a YAML config file")
	fListen = pflag.StringP("listen", "l", "", "listen address, overrides the config file")
)

// peer is the metadata every call on a connection receives.
type peer struct {
	ConnID string
	Remote string
}

func main() {
	pflag.Parse()

	cfg := config.Default()
	if *fConfig != "" {
		var err error
		if cfg, err = config.Load(*fConfig); err != nil {
			fmt.Fprintf(os.Stderr, "rpcd: %v\n", err)
			os.Exit(1)
		}
	}
	if *fListen != "" {
		cfg.Listen = *fListen
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("rpcd stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	if err := zc.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return zc.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMaxAliasHops(cfg.MaxAliasHops),
	}

	if len(cfg.Etcd.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout, logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.AdvertiseAddr, cfg.Etcd.LeaseTTL))
	}

	svr := server.NewServer[peer](func(info server.ConnInfo) peer {
		return peer{ConnID: info.ID.String(), Remote: info.RemoteAddr.String()}
	}, opts...)

	svr.Use(middleware.Recover(logger))
	svr.Use(middleware.Logging(logger))
	if cfg.RequestTimeout > 0 {
		svr.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.RateLimit.Rate > 0 {
		svr.Use(middleware.RateLimit(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}

	if cfg.Metrics != "" {
		metrics, err := middleware.NewMetrics("rpcd", prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		svr.Use(metrics.Middleware())
		go serveMetrics(cfg.Metrics, logger)
	}

	svr.AddMethodSimple("echo", calls.SyncMethod(func(params types.Params) (types.Value, error) {
		return types.Value(params), nil
	}))
	svr.AddAlias("ping", "echo")
	svr.AddMethod("whoami", calls.SyncMethodWithMeta(func(_ types.Params, p peer) (types.Value, error) {
		return types.NewValue(p)
	}))
	svr.AddNotification("log", calls.NotificationFunc[peer](func(params types.Params, p peer) {
		logger.Info("client log", zap.String("conn", p.ConnID), zap.ByteString("params", params))
	}))

	listener, err := net.Listen(cfg.Network, cfg.Listen)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- svr.ServeListener(listener) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	if err := svr.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("unclean shutdown", zap.Error(err))
	}
	return <-served
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics endpoint stopped", zap.Error(err))
	}
}
