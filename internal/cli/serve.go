// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - HTTP API command for gemchat.
//
// Command: serve
//
// Runs the chat gateway (/api/chat), the backend proxy routes and /health
// until interrupted. The server shuts down gracefully on SIGINT or SIGTERM.
//
// Examples:
//
//	gemchat serve
//	gemchat serve --port 8080 --host 0.0.0.0
//	GEMINI_API_KEY=... gemchat serve -v
package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/gemchat/internal/backend"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/gateway"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/server"
)

// shutdownTimeout bounds the graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// HandleServe handles the "serve" command.
func HandleServe(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	p := NewArgParser(args.Raw)
	if host := p.Flag("host"); host != "" {
		cfg.Server.Host = host
	}
	if p.HasFlag("port") {
		port, err := ParseIntWithValidation(p.Flag("port"), "port")
		if err != nil || port > 65535 {
			return NewValidationError("port", p.Flag("port"), "must be between 1 and 65535")
		}
		cfg.Server.Port = port
	}

	srv := BuildServer(cfg)
	if !args.Quiet {
		printServeBanner(cfg, srv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return &CommandError{Command: "serve", Action: "listen", Reason: srv.Addr(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// BuildServer wires the gateway, backend proxy and middleware from cfg.
func BuildServer(cfg *config.Config) *server.Server {
	gem := gemini.NewClient(cfg.Gemini.APIKey).WithTimeout(cfg.GeminiTimeout())
	if cfg.Gemini.BaseURL != "" {
		gem = gem.WithBaseURL(cfg.Gemini.BaseURL)
	}
	gw := gateway.New(gem)
	if cfg.Gemini.DefaultModel != "" {
		gw = gw.WithDefaultModel(cfg.Gemini.DefaultModel)
	}

	srv := server.NewServer(cfg.Server.Host, cfg.Server.Port).
		WithGateway(gw).
		WithBackend(backend.NewClient(cfg.Backend.APIURL).WithTimeout(cfg.BackendTimeout())).
		WithCORS(server.NewCORSConfig(cfg.Server.AllowedOrigins))
	if cfg.Server.RateLimitPerSecond > 0 {
		srv = srv.WithRateLimiter(server.NewRateLimiter(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst))
	}

	log.Printf("SERVE_CONFIG | addr=%s gemini_configured=%v backend_configured=%v",
		srv.Addr(), gw.Configured(), cfg.Backend.APIURL != "")
	return srv
}

func printServeBanner(cfg *config.Config, srv *server.Server) {
	fmt.Println(TitleStyle.Render("gemchat serve " + Version))
	fmt.Println(RenderLabel("Listening:") + "http://" + srv.Addr())
	if cfg.Gemini.APIKey == "" {
		fmt.Println(RenderLabel("Gemini:") + WarningStyle.Render("GEMINI_API_KEY not set, /api/chat will fail"))
	} else {
		fmt.Println(RenderLabel("Gemini:") + SuccessStyle.Render("configured"))
	}
	if cfg.Backend.APIURL == "" {
		fmt.Println(RenderLabel("Backend:") + DimStyle.Render("not configured"))
	} else {
		fmt.Println(RenderLabel("Backend:") + cfg.Backend.APIURL)
	}
	fmt.Println(DimStyle.Render("Press Ctrl+C to stop."))
}
