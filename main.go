package main

import (
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"schemadvisor/internal/advisor"
	"schemadvisor/internal/api"
	"schemadvisor/internal/history"
)

func main() {
	var listenAddr string
	var configPath string
	var historyPath string
	var collectTimeout time.Duration
	flag.StringVar(&listenAddr, "listen", "127.0.0.1:12310", "HTTP listen address")
	flag.StringVar(&configPath, "config", "", "advisor config file (YAML); defaults apply when empty")
	flag.StringVar(&historyPath, "history", "schemadvisor.db", "run history SQLite path; empty disables history")
	flag.DurationVar(&collectTimeout, "collect-timeout", 120*time.Second, "workload collection timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if collectTimeout <= 0 {
		collectTimeout = 120 * time.Second
	}
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		logger.Error("invalid --listen", "addr", listenAddr, "error", err)
		os.Exit(2)
	}
	ip := net.ParseIP(host)
	if ip == nil && strings.EqualFold(host, "localhost") {
		ip = net.IPv4(127, 0, 0, 1)
	}
	if ip == nil || !ip.IsLoopback() {
		logger.Error("--listen must bind to loopback only (127.0.0.1, [::1], or localhost)", "addr", listenAddr)
		os.Exit(2)
	}

	cfg := advisor.DefaultConfig()
	if configPath != "" {
		cfg, err = advisor.LoadConfig(configPath)
		if err != nil {
			logger.Error("loading config failed", "path", configPath, "error", err)
			os.Exit(2)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
		os.Exit(2)
	}

	var store *history.Store
	if historyPath != "" {
		store, err = history.Open(historyPath)
		if err != nil {
			logger.Error("opening run history failed", "path", historyPath, "error", err)
			os.Exit(2)
		}
		defer store.Close()
	}

	engine := advisor.NewEngine(cfg, nil, logger)
	handler := api.NewServer(engine.Run, nil, store, collectTimeout, logger)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      collectTimeout + 10*time.Second,
		IdleTimeout:       30 * time.Second,
	}

	logger.Info("schemadvisor listening", "url", "http://"+listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
