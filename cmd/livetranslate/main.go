// Package main provides the livetranslate CLI: the capture pipeline server and cache maintenance.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fntranslate/livetranslate/internal/cache"
	"github.com/fntranslate/livetranslate/internal/config"
	"github.com/fntranslate/livetranslate/internal/ocr"
	"github.com/fntranslate/livetranslate/internal/ocr/tesseract"
	"github.com/fntranslate/livetranslate/internal/orchestrator"
	"github.com/fntranslate/livetranslate/internal/orchestrator/layout"
	"github.com/fntranslate/livetranslate/internal/screen"
	"github.com/fntranslate/livetranslate/internal/server"
	"github.com/fntranslate/livetranslate/internal/translate"
	"github.com/fntranslate/livetranslate/internal/translate/deepseek"
	"github.com/fntranslate/livetranslate/internal/translate/gemini"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 5 * time.Second

var pruneOlderThanDays int

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "livetranslate",
		Short:        "Live on-screen text translation",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture, translate and serve overlays until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runPipelineCmd,
	}
}

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the translation cache",
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached translations older than a cutoff",
		Args:  cobra.NoArgs,
		RunE:  runCachePruneCmd,
	}
	pruneCmd.Flags().IntVar(&pruneOlderThanDays, "older-than-days", 0, "age cutoff in days (default: LT_CACHE_TTL_DAYS)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the number of cached translations",
		Args:  cobra.NoArgs,
		RunE:  runCacheStatsCmd,
	}

	cacheCmd.AddCommand(pruneCmd, statsCmd)
	return cacheCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	st, err := cache.Open(ctx, cache.Options{
		Backend: cfg.CacheBackend,
		DSN:     cfg.CacheDSN,
		TTL:     time.Duration(cfg.CacheTTLDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return st, nil
}

func newCapturer(cfg *config.Config) (screen.Capturer, error) {
	switch cfg.CaptureBackend {
	case "", "screenshot":
		return screen.NewScreenshotCapturer(cfg.Monitor)
	case "command":
		return screen.NewCommandCapturer()
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.CaptureBackend)
	}
}

// newTranslator returns the configured provider and a cleanup func.
func newTranslator(cfg *config.Config) (translate.Translator, func(), error) {
	switch cfg.Translator {
	case "", "deepseek":
		return deepseek.New(deepseek.Options{
			APIKey:  cfg.DeepSeekAPIKey,
			BaseURL: cfg.DeepSeekURL,
			Model:   cfg.DeepSeekModel,
			RPS:     cfg.TranslateRPS,
		}), func() {}, nil
	case "gemini":
		c := gemini.New(gemini.Options{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			RPS:    cfg.TranslateRPS,
		})
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown translator %q", cfg.Translator)
	}
}

func runPipelineCmd(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	capturer, err := newCapturer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create capturer: %w", err)
	}
	defer func() { _ = capturer.Close() }()

	tr, closeTranslator, err := newTranslator(cfg)
	if err != nil {
		return err
	}
	defer closeTranslator()

	st, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	layered, err := cache.NewLayered(st, cache.LayeredOptions{LRUSize: cfg.CacheLRU})
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer func() {
		if cerr := layered.Close(); cerr != nil {
			slog.Error("failed to close cache", "error", cerr)
		}
	}()

	hub := server.NewHub()
	deps := orchestrator.Deps{
		Capturer: capturer,
		OCR: ocr.NewAdapter(tesseract.New(), ocr.Options{
			Language:      cfg.OCRLang,
			MinConfidence: cfg.OCRMinConf,
			Workers:       cfg.OCRWorkers,
			Timeout:       cfg.OCRTimeout(),
		}),
		Translator: tr,
		Cache:      layered,
		Renderer:   hub,
	}
	if cfg.OCRMode != "frame" {
		deps.Extractor = layout.New(layout.Options{
			KernelW: cfg.LayoutKernelW,
			KernelH: cfg.LayoutKernelH,
			MinArea: cfg.LayoutMinArea,
			Pad:     cfg.LayoutPad,
		})
	}

	mgr, err := orchestrator.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	srv := server.New(mgr, hub, cfg)
	grpcSrv := server.NewGRPC(mgr)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	go srv.Run(ctx)
	go grpcSrv.Watch(ctx, mgr.Done())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr, "translator", cfg.Translator, "cache", cfg.CacheBackend)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		slog.Warn("grpc server disabled", "addr", cfg.GRPCAddr, "error", err)
	} else {
		go func() {
			slog.Info("grpc server starting", "addr", cfg.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("grpc server error", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-mgr.Done():
		slog.Warn("pipeline exited", "last_error", mgr.Status().LastError)
	}

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	grpcSrv.Stop()
	mgr.Stop()
	slog.Info("shutdown complete")
	return nil
}

func runCachePruneCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	days := pruneOlderThanDays
	if days <= 0 {
		days = cfg.CacheTTLDays
	}
	if days <= 0 {
		return errors.New("--older-than-days must be positive")
	}

	ctx := cmd.Context()
	st, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cutoff := time.Now().AddDate(0, 0, -days)
	n, err := st.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries older than %s\n", n, cutoff.Format(time.DateOnly))
	return nil
}

func runCacheStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	n, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count cache entries: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\nentries: %d\n", cfg.CacheBackend, n)
	return nil
}
