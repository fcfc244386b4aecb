// edge.httpd is the edge orchestrator daemon: it loads model and runtime
// configuration, wires the decision-engine components together, and
// serves the four device-facing operations over HTTP (or WebSocket, per
// communication.mode).
//
// Bootstrap follows ap.httpd.go's shape: flags, a zap logger selected by
// terminal detection, a gorilla/mux router wrapped in negroni with an
// apache-logformat access log, and signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"edgesplit/edge_common/bus"
	"edgesplit/edge_common/bus/httpbus"
	"edgesplit/edge_common/bus/wsbus"
	"edgesplit/edge_common/config"
	"edgesplit/edge_common/edgelog"
	"edgesplit/edge_common/metrics"
	"edgesplit/edge_common/model"
	"edgesplit/edge_common/ntpsync"
	"edgesplit/edge_common/reqhandler"
	"edgesplit/edge_common/registry"
	"edgesplit/edge_common/runtime"
	"edgesplit/edge_common/suffix"
	"edgesplit/edge_common/timingstore"
	"edgesplit/edge_common/variance"
	"edgesplit/edge_common/wpool"
)

var (
	configPath = flag.String("config", "edge.yaml", "path to the edge YAML configuration")
	modelName  = flag.String("model", "", "model name to serve (default: the sole entry in config's model map)")
	stateDir   = flag.String("state-dir", ".", "directory holding the persisted timing-vector JSON files")
	poolSize   = flag.Int("workers", 4, "suffix-execution worker pool size")
	queueSize  = flag.Int("queue-size", 64, "suffix-execution worker pool queue capacity")
)

func main() {
	flag.Parse()

	isTerm := edgelog.IsTerminal(os.Stderr)
	_, slog := edgelog.Setup(isTerm)
	defer slog.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Fatalw("loading configuration", "error", err)
	}
	env, err := config.LoadEnv()
	if err != nil {
		slog.Fatalw("loading environment overlay", "error", err)
	}

	name, spec, err := selectModel(cfg, *modelName)
	if err != nil {
		slog.Fatalw("selecting model", "error", err)
	}

	m, err := model.New(name, spec.LastOffloadingLayer)
	if err != nil {
		slog.Fatalw("building model", "error", err)
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	timings := timingstore.New(cfg.EWMA.Alpha, afero.NewOsFs(),
		*stateDir+"/device_times.json",
		*stateDir+"/edge_times.json",
		*stateDir+"/layer_sizes.json")
	if err := timings.Load(); err != nil {
		slog.Warnw("no prior timing state loaded", "error", err)
	}

	vdet := variance.New(cfg.Variance.WindowSize, cfg.Variance.Threshold)

	rt := runtime.NewCachedNativeRuntime(placeholderLoader, placeholderEvaluator, nil)
	executor := suffix.New(m, rt, timings, vdet)

	pool := wpool.New(*poolSize, *queueSize)
	defer pool.Stop()

	clients := registry.New(func(string) string { return name })

	handler := reqhandler.New(m, clients, timings, vdet, executor, pool, reqhandler.Config{
		DefaultOffloadingLayer:   spec.LastOffloadingLayer,
		RefresherEnabled:         cfg.LocalInferenceMode.Enabled,
		RefresherProbability:     cfg.LocalInferenceMode.Probability,
		RefresherSeed:            1,
		FallbackSpeedBytesPerSec: 1e6,
	})

	ntpCtx, cancelNTP := context.WithCancel(context.Background())
	defer cancelNTP()
	refresher := ntpsync.NewRefresher(ntpsync.StaticOffset(0), 10*time.Minute)
	go refresher.Run(ntpCtx, func(offset float64, err error) {
		if err != nil {
			slog.Warnw("ntp offset refresh failed", "error", err)
		}
	})

	b := bus.NewHandlerBus(handler)

	dims := httpbus.FrameDims{Height: spec.InputHeight, Width: spec.InputWidth}
	srv := startTransport(cfg.Communication.Mode, b, dims, reg, env)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	slog.Infow("shutting down", "signal", s.String())

	pool.Stop()
	if err := timings.Persist(); err != nil {
		slog.Errorw("persisting timing state on shutdown", "error", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func selectModel(cfg *config.Config, requested string) (string, config.ModelSpec, error) {
	if requested != "" {
		spec, ok := cfg.Models[requested]
		if !ok {
			return "", config.ModelSpec{}, fmt.Errorf("model %q not present in configuration", requested)
		}
		return requested, spec, nil
	}
	if len(cfg.Models) != 1 {
		return "", config.ModelSpec{}, fmt.Errorf("-model must be set explicitly when configuration defines more than one model")
	}
	for name, spec := range cfg.Models {
		return name, spec, nil
	}
	return "", config.ModelSpec{}, fmt.Errorf("no model.<name> entries in configuration")
}

// startTransport wires the configured communication.mode binding and
// starts serving in the background. websocket is served on the same
// address with an additional /ws route; mqtt fails startup immediately.
func startTransport(mode config.CommMode, b bus.Bus, dims httpbus.FrameDims, reg *prometheus.Registry, env *config.Env) *http.Server {
	if mode == config.CommMQTT {
		if _, err := bus.NewMQTTBus(); err != nil {
			fmt.Fprintf(os.Stderr, "mqtt transport requested but not available: %v\n", err)
			os.Exit(1)
		}
	}

	httpSrv := httpbus.New(b, httpbus.FrameDims(dims), reg, os.Stderr)
	addr := env.Host + ":" + env.Port
	if env.Port == "" {
		addr = ":8080"
	}

	mux := httpSrv.Handler
	if mode == config.CommWebsocket {
		ws := wsbus.New(b, wsbus.FrameDims{Height: dims.Height, Width: dims.Width})
		wrapped := http.NewServeMux()
		wrapped.Handle("/ws", ws)
		wrapped.Handle("/", mux)
		mux = wrapped
	}

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "listener on %s exited: %v\n", addr, err)
			os.Exit(1)
		}
	}()
	return server
}

// placeholderLoader/placeholderEvaluator stand in for the out-of-scope
// native NN runtime collaborator: a real deployment replaces these with
// bindings into its actual inference engine. The placeholder passes its
// input through unchanged so the orchestration logic around it is fully
// exercisable without that external dependency.
func placeholderLoader(layerIndex int) (runtime.Artefact, error) {
	return layerIndex, nil
}

func placeholderEvaluator(_ runtime.Artefact, _ int, input runtime.Tensor) (runtime.Tensor, error) {
	out := make(runtime.Tensor, len(input))
	copy(out, input)
	return out, nil
}
