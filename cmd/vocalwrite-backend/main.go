package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"golang.org/x/sync/errgroup"

	"vocalwrite/internal/config"
	"vocalwrite/internal/logging"
	"vocalwrite/internal/polish"
	"vocalwrite/internal/providers/tencent"
	"vocalwrite/internal/server"
	"vocalwrite/internal/telemetry"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", os.Getenv("VOCALWRITE_CONFIG"), "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	printBanner()

	tel, err := telemetry.Setup("vocalwrite-backend", logging.Component(logger, "telemetry"))
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	if cfg.Server.MasterAPIKey == "" {
		logger.Warn("MASTER_API_KEY is not set; /api routes are unauthenticated")
	}

	signer := tencent.NewLocalSigner(tencent.SignerConfig{
		AppID:           cfg.Tencent.AppID,
		SecretID:        cfg.Tencent.SecretID,
		SecretKey:       cfg.Tencent.SecretKey,
		Host:            cfg.Tencent.Host,
		EngineModelType: cfg.Tencent.EngineModelType,
		TTL:             cfg.Tencent.URLTTL,
	})
	polisher := polish.NewChatPolisher(polish.ChatConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, nil, logging.Component(logger, "polish"))

	router := server.NewRouter(server.Config{
		MasterAPIKey: cfg.Server.MasterAPIKey,
		Metrics:      tel.Handler(),
		Observer:     tel,
	}, signer, polisher, logging.Component(logger, "server"))

	httpServer := &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("backend started", slog.String("addr", cfg.Server.Bind), slog.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})
	if bind := cfg.Telemetry.PrometheusBind; bind != "" {
		g.Go(func() error {
			return tel.Serve(gctx, bind)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func printBanner() {
	tpl := "{{ .Title \"VocalWrite\" \"\" 0 }}\nBackend version: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
