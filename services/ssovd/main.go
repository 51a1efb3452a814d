package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	vaultconfig "ssov/config"
	"ssov/observability/logging"
	ssovdconfig "ssov/services/ssovd/config"
	"ssov/services/ssovd/server"
	"ssov/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ssovd/config.yaml", "path to ssovd config")
	flag.Parse()

	cfg, err := ssovdconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("SSOV_ENV"))
	logger, closer := setupLogging(cfg.Log, env)
	if closer != nil {
		defer closer.Close()
	}

	vaultPath := cfg.VaultConfig
	if !filepath.IsAbs(vaultPath) {
		vaultPath = filepath.Join(filepath.Dir(cfgPath), vaultPath)
	}
	vcfg, err := vaultconfig.Load(vaultPath)
	if err != nil {
		log.Fatalf("load vault config: %v", err)
	}

	db, err := storage.NewLevelDB(vcfg.DataDir)
	if err != nil {
		log.Fatalf("open database %s: %v", vcfg.DataDir, err)
	}
	defer db.Close()

	vault, err := server.OpenVault(vcfg, db, logger)
	if err != nil {
		log.Fatalf("open vault: %v", err)
	}
	srv, err := server.New(server.Config{
		Vault: vault,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLS.Enabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		if err != nil {
			log.Fatalf("load tls keypair: %v", err)
		}
		httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		listener = tls.NewListener(listener, httpServer.TLSConfig)
	} else {
		logger.Warn("ssovd: serving without TLS", slog.String("listen", cfg.ListenAddress))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ssovd listening", slog.String("listen", cfg.ListenAddress), slog.String("vault", vcfg.Vault.Name))
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}

func setupLogging(cfg ssovdconfig.LogConfig, env string) (*slog.Logger, io.Closer) {
	if cfg.File == "" {
		return logging.SetupLevel("ssovd", env, cfg.Level), nil
	}
	return logging.SetupFile("ssovd", env, logging.FileOptions{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		Level:      cfg.Level,
	}, true)
}
