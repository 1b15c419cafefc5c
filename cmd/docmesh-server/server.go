package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"

	"github.com/yndnr/docmesh-go/internal/cluster/follower"
	"github.com/yndnr/docmesh-go/internal/cluster/leader"
	"github.com/yndnr/docmesh-go/internal/cluster/rpc"
	"github.com/yndnr/docmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/docmesh-go/internal/infra/confloader"
	"github.com/yndnr/docmesh-go/internal/infra/shutdown"
	"github.com/yndnr/docmesh-go/internal/server/config"
	"github.com/yndnr/docmesh-go/internal/storage/docstore"
	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
	"github.com/yndnr/docmesh-go/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	generated, err := config.EnsureNodeID(cfg)
	if err != nil {
		return err
	}

	lc := config.ToLoggerConfig(cfg)
	lc.Output = os.Stdout
	log, err := logger.New(lc)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)
	sl := log.With("node_id", cfg.Node.ID)
	if generated {
		sl.Warn("node.id not configured, generated one for this run")
	}
	sl.Info("starting docmesh-server",
		"version", buildinfo.Get().String(),
		"role", cfg.Node.Role,
		"config", configPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := metric.NewRegistry()
	store, err := docstore.Open(config.ToStoreConfig(cfg, sl))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store.RegisterMetrics(metrics.Registerer())

	h := shutdown.NewHandler(shutdownTimeout, sl)
	h.OnShutdown("store", func(context.Context) error { return store.Close() })

	interceptors := connect.WithInterceptors(rpc.DefaultInterceptors(sl)...)

	var handler rpc.Handler
	switch cfg.Node.Role {
	case config.RoleFollower:
		f := follower.New(store, config.ToFollowerConfig(cfg), sl, metrics)
		state, err := f.Recover(ctx)
		if err != nil {
			store.Close()
			return fmt.Errorf("recover follower state: %w", err)
		}
		sl.Info("follower ready", "mode", state.Mode.String())
		handler = f

	case config.RoleLeader:
		rep := leader.New(store, config.ToLeaderConfig(cfg), sl, metrics)
		if err := rep.Start(ctx, cfg.Node.Term); err != nil {
			store.Close()
			return fmt.Errorf("start leader: %w", err)
		}
		peers := connectPeers(ctx, cfg, sl, metrics, interceptors)
		h.OnShutdown("peers", func(context.Context) error {
			for _, p := range peers {
				p.Close()
			}
			return nil
		})
		targets := make([]leader.Peer, len(peers))
		for i, p := range peers {
			targets[i] = p
		}
		go func() {
			if err := rep.Run(ctx, targets, cfg.Replication.Interval); err != nil {
				sl.Error("replicator stopped", "error", err)
			}
		}()
		// A leader only answers pings.
		handler = rpc.HandlerFunc(func(context.Context, rpc.Request) rpc.Response { return rpc.Response{} })
	}

	srv := rpc.NewServer(cfg.Node.ID, handler, sl)
	mux := http.NewServeMux()
	mux.Handle(srv.Handler(interceptors))
	cluster := newHTTPServer(cfg.Cluster.Addr, mux)
	serve(h, sl, "cluster", cluster)
	h.OnShutdown("cluster server", cluster.Shutdown)

	if cfg.Metrics.Enabled {
		mm := http.NewServeMux()
		mm.Handle(cfg.Metrics.Path, metrics.Handler())
		ms := newHTTPServer(cfg.Metrics.Addr, mm)
		serve(h, sl, "metrics", ms)
		h.OnShutdown("metrics server", ms.Shutdown)
	}

	if configPath != "" {
		if err := watchConfig(ctx, configPath, sl); err != nil {
			sl.Warn("configuration reload disabled", "error", err)
		}
	}
	h.OnShutdown("background", func(context.Context) error {
		cancel()
		return nil
	})

	sl.Info("server started")
	if err := h.Wait(ctx); err != nil {
		return err
	}
	sl.Info("server stopped")
	return nil
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		Protocols:         &protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serve runs srv in the background and requests shutdown if it fails.
func serve(h *shutdown.Handler, l *slog.Logger, name string, srv *http.Server) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		l.Error("listen failed", "server", name, "addr", srv.Addr, "error", err)
		h.Trigger()
		return
	}
	l.Info("listening", "server", name, "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server failed", "server", name, "error", err)
			h.Trigger()
		}
	}()
}

// connectPeers starts one connection loop per configured follower.
func connectPeers(ctx context.Context, cfg *config.ServerConfig, l *slog.Logger, m *metric.Registry, opts ...connect.ClientOption) []*rpc.Peer {
	var protocols http.Protocols
	protocols.SetHTTP2(true)
	protocols.SetUnencryptedHTTP2(true)
	client := &http.Client{Transport: &http.Transport{Protocols: &protocols}}

	peers := make([]*rpc.Peer, 0, len(cfg.Cluster.Peers))
	for _, pc := range cfg.Cluster.Peers {
		p := rpc.NewPeer(pc.ID,
			rpc.WithQueueSize(cfg.Cluster.QueueSize),
			rpc.WithLogger(l),
			rpc.WithMetrics(m))
		url := pc.URL
		l.Info("connecting peer", "peer", pc.ID, "url", url)
		go p.Connect(ctx, func(ctx context.Context) (rpc.Wire, error) {
			return rpc.DialWire(ctx, client, url, opts...)
		}, cfg.Cluster.RedialBackoff)
		peers = append(peers, p)
	}
	return peers
}

// watchConfig applies log level changes of the configuration file.
func watchConfig(ctx context.Context, path string, l *slog.Logger) error {
	w, err := confloader.NewWatcher(path, confloader.WithWatcherLogger(l))
	if err != nil {
		return err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			l.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			l.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	go w.Run(ctx)
	return nil
}
