package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mohammedhrima/MediSimpleGPT/internal/agent"
	"github.com/mohammedhrima/MediSimpleGPT/internal/api"
	"github.com/mohammedhrima/MediSimpleGPT/internal/browser"
	"github.com/mohammedhrima/MediSimpleGPT/internal/config"
	"github.com/mohammedhrima/MediSimpleGPT/internal/history"
	"github.com/mohammedhrima/MediSimpleGPT/internal/ollama"
	"github.com/mohammedhrima/MediSimpleGPT/internal/plan"
	"github.com/mohammedhrima/MediSimpleGPT/internal/prompt"
	"github.com/mohammedhrima/MediSimpleGPT/internal/router"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFile)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("medisimple starting", "port", cfg.Port, "model", cfg.Model)

	// A broken prompt template fails every turn; refuse to start.
	if err := prompt.Check(); err != nil {
		slog.Error("prompt templates failed validation", "error", err)
		os.Exit(1)
	}

	store, err := history.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open history database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("history database ready", "path", cfg.DBPath)

	// The browser launches lazily on first use; nothing starts here.
	ctrl := browser.New(browser.Options{
		Headless:      cfg.Headless,
		NavTimeout:    cfg.NavTimeout,
		SettleTimeout: cfg.SettleTimeout,
		ActionTimeout: cfg.ActionTimeout,
	}, slog.Default())
	defer ctrl.Release()

	llm := ollama.NewClient(cfg.OllamaURL, cfg.Model)
	slog.Info("ollama client ready", "url", cfg.OllamaURL, "model", cfg.Model)

	retriever := agent.New(ctrl, cfg.ReferenceURL, slog.Default())
	planner := plan.NewPlanner(llm, slog.Default())
	executor := plan.NewExecutor(ctrl, slog.Default())
	turns := router.New(llm, store, retriever, router.Config{
		HistoryWindow: cfg.HistoryWindow,
		MaxQueryLen:   cfg.MaxQueryLen,
	}, slog.Default())

	srv := api.NewServer(api.Options{
		Port:       cfg.Port,
		CORSOrigin: cfg.CORSOrigin,
		Model:      cfg.Model,
	}, turns, store, ctrl, planner, executor, llm, slog.Default())

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("medisimple ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	slog.Info("medisimple stopped")
}

func setupLogging(level, logFile string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if logFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
