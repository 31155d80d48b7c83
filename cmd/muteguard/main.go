// CLAUDE:SUMMARY CLI entry point for muteguard: guard Meet tabs from a YAML config or flags, or check a saved page.
// Command muteguard keeps Google Meet from muting the microphone on its own.
//
// Usage:
//
//	muteguard -config muteguard.yaml                        # guard pages from YAML config
//	muteguard -url https://meet.google.com/abc-defg-hij     # open one meeting and guard it
//	muteguard -remote localhost:9222 -attach https://meet.google.com/
//	                                                        # guard meetings already open in Chrome
//	muteguard -check page.html                              # run once over a saved page, print JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/horosmeet/muteguard"
	"github.com/hazyhaar/horosmeet/observability"
)

type options struct {
	configPath  string
	url         string
	attach      string
	remote      string
	check       string
	metricsAddr string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to muteguard.yaml config file")
	flag.StringVar(&o.url, "url", "", "open a meeting URL in a new tab and guard it")
	flag.StringVar(&o.attach, "attach", "", "guard existing tabs whose URL starts with this prefix")
	flag.StringVar(&o.remote, "remote", "", "DevTools ws:// URL or host:port of a running Chrome")
	flag.StringVar(&o.check, "check", "", "run once over a saved HTML page and print a JSON report")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: json, text")
	flag.Parse()

	logger := observability.NewLogger(os.Stderr, *logLevel, *logFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("muteguard: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	if o.check != "" {
		return runCheck(ctx, logger, o.check)
	}

	cfg, err := buildConfig(o)
	if err != nil {
		return err
	}
	return runGuard(ctx, logger, cfg)
}

func runCheck(ctx context.Context, logger *slog.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	defer f.Close()

	rep, err := muteguard.CheckHTML(ctx, f, logger)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// buildConfig loads the config file, if any, and lets flags override it.
func buildConfig(o options) (*muteguard.Config, error) {
	cfg := &muteguard.Config{}
	if o.configPath != "" {
		loaded, err := muteguard.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if o.url != "" {
		cfg.Pages = append(cfg.Pages, muteguard.PageConfig{URL: o.url})
	}
	if o.attach != "" {
		cfg.Pages = append(cfg.Pages, muteguard.PageConfig{Attach: o.attach})
	}
	if o.remote != "" {
		cfg.Browser.Remote = o.remote
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}

	if len(cfg.Pages) == 0 {
		return nil, errors.New("usage: muteguard -config <file> | -url <meeting> | -attach <prefix> | -check <file.html>")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runGuard(ctx context.Context, logger *slog.Logger, cfg *muteguard.Config) error {
	w := muteguard.New(cfg, logger)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	served := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		srv := observability.NewServer(cfg.Metrics.Addr, w.Sessions, logger)
		go func() {
			defer close(served)
			if err := srv.Serve(ctx); err != nil {
				logger.Error("muteguard: metrics server", "error", err)
			}
		}()
	} else {
		close(served)
	}

	<-ctx.Done()
	w.Stop()
	<-served
	return nil
}
