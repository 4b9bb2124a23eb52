// Command loadbench drives configurable concurrent request traffic against
// a generative-inference HTTP endpoint, measures latency/throughput/TTFT,
// and streams those metrics to a browser dashboard over WebSocket while
// serving a bounded replay history to late-joining clients.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/basetenlabs/loadbench/internal/adapter"
	"github.com/basetenlabs/loadbench/internal/auth"
	"github.com/basetenlabs/loadbench/internal/config"
	"github.com/basetenlabs/loadbench/internal/dashboard"
	"github.com/basetenlabs/loadbench/internal/eventbus"
	"github.com/basetenlabs/loadbench/internal/executor"
	"github.com/basetenlabs/loadbench/internal/httpapi"
	"github.com/basetenlabs/loadbench/internal/metricscollector"
	"github.com/basetenlabs/loadbench/internal/model"
	"github.com/basetenlabs/loadbench/internal/sampler"
	"github.com/basetenlabs/loadbench/internal/scheduler"
	"github.com/basetenlabs/loadbench/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (built-in defaults are used if omitted)")
	metricsAddr := flag.String("metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
	initConfig := flag.String("init-config", "", "write a default config file to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.WriteDefault(*initConfig); err != nil {
			fmt.Fprintf(os.Stderr, "loadbench: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loadbench: wrote default config to %s\n", *initConfig)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadbench: config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := tracing.Initialize(tracing.Config{Enabled: false, ServiceName: "loadbench"}, logger); err != nil {
		logger.Warn("tracing init failed, continuing without spans", zap.Error(err))
	}

	if cfg.TargetURL == "" {
		logger.Fatal("loadbench: target_url is required (set it in the config file or LOADBENCH_TARGET_URL)")
	}

	authProvider := resolveAuthProvider(logger)

	httpClient := &http.Client{Timeout: 5 * time.Minute}
	builder := adapter.RequestBuilderFor(cfg.PlainText)

	exec := executor.New(executor.Config{
		BaseURL:          cfg.TargetURL,
		Auth:             authProvider,
		Builder:          builder,
		Client:           httpClient,
		DisableStreaming: cfg.DisableStreaming,
		PlainText:        cfg.PlainText,
		Tokenizer:        streamparserWhitespaceTokenizer,
		Logger:           logger,
	})

	collector := metricscollector.New()
	bus := eventbus.New(logger)
	dash := dashboard.New(bus, logger)

	samplerFactory := func(scenario string) sampler.Sampler {
		return sampler.Fixed{Request: referenceRequest(cfg, scenario)}
	}

	sched := scheduler.New(scheduler.Config{
		Scenarios:         cfg.TrafficScenario,
		ConcurrencyLevels: cfg.NumConcurrency,
		MaxRequestsPerRun: cfg.MaxRequestsPerRun,
		MaxDuration:       cfg.MaxTimePerRun,
		Sampler:           samplerFactory,
		Executor:          exec,
		Collector:         collector,
		Dashboard:         dash,
		Logger:            logger,
		FailureThreshold:  cfg.FailureThreshold,
	})

	server := httpapi.New(bus, sched, cfg.Host, cfg.Port, logger)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		promMux := http.NewServeMux()
		promMux.Handle("/metrics", promhttp.Handler())
		logger.Info("prometheus metrics listening", zap.String("addr", *metricsAddr))
		if err := http.ListenAndServe(*metricsAddr, promMux); err != nil && err != http.ErrServerClosed {
			logger.Error("prometheus metrics server failed", zap.Error(err))
		}
	}()

	if cfg.EnableStreaming {
		go func() {
			logger.Info("streaming server listening", zap.String("addr", cfg.Addr()))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("streaming server failed", zap.Error(err))
			}
		}()
	} else {
		logger.Info("streaming disabled by config, running headless")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	benchDone := make(chan error, 1)
	go func() {
		benchDone <- sched.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigCh:
		logger.Info("interrupt received, cancelling benchmark")
		cancelRun()
		<-benchDone
		exitCode = 1
	case err := <-benchDone:
		if err != nil {
			logger.Error("benchmark run failed", zap.Error(err))
			exitCode = 2
		}
	}

	// Graceful drain: Shutdown closes the listener, so no new WS clients are
	// accepted, then waits up to 2s for in-flight HTTP requests. Upgraded
	// WebSocket connections are not waited on.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("streaming server shutdown did not complete cleanly", zap.Error(err))
	}

	os.Exit(exitCode)
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// resolveAuthProvider loads ~/.trussrc when present; a missing or unreadable
// file just means no Authorization header is attached, never a fatal error.
func resolveAuthProvider(logger *zap.Logger) auth.Provider {
	path := auth.DefaultPath()
	rc, err := auth.LoadTrussrc(path)
	if err != nil {
		logger.Debug("no trussrc credentials available", zap.String("path", path), zap.Error(err))
		return nil
	}
	remote, ok := rc.Default()
	if !ok {
		logger.Debug("trussrc has no profiles", zap.String("path", path))
		return nil
	}
	if !remote.VerifyIntegrity() {
		logger.Warn("trussrc api_key does not match its key_fingerprint, using it anyway", zap.String("profile", remote.Name))
	}
	logger.Info("loaded credentials from trussrc", zap.String("profile", remote.Name))
	return remote
}

func referenceRequest(cfg config.Config, scenario string) model.UserRequest {
	return model.UserRequest{
		Kind:             model.RequestChat,
		Model:            cfg.Model,
		Prompt:           scenario,
		NumPrefillTokens: 0,
		MaxTokens:        256,
	}
}

// streamparserWhitespaceTokenizer is the reference token-count estimator for
// the plain-prompt parser variant: a whitespace-delimited word count,
// sufficient to drive the pipeline end-to-end without a real tokenizer
// integration.
func streamparserWhitespaceTokenizer(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}
