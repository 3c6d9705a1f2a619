package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arran4/chat2png"
	"github.com/arran4/chat2png/internal/cache"
	"github.com/arran4/chat2png/internal/config"
	"github.com/arran4/chat2png/internal/logging"
	"github.com/arran4/chat2png/internal/server"
)

func init() {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the render API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Optional YAML config file")
	rootCmd.AddCommand(cmd)
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Development())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	fonts, err := chat2png.LoadFonts(chat2png.FontConfig{
		RegularPath: cfg.Fonts.Regular,
		MediumPath:  cfg.Fonts.Medium,
		BoldPath:    cfg.Fonts.Bold,
		ItalicPath:  cfg.Fonts.Italic,
		MonoPath:    cfg.Fonts.Mono,
		EmojiPath:   cfg.Fonts.Emoji,
	})
	if err != nil {
		return err
	}
	renderer, err := chat2png.NewRenderer(chat2png.Config{
		Fonts: fonts,
		Fetch: chat2png.FetchConfig{
			Timeout:     cfg.FetchTimeout,
			Concurrency: cfg.Fetch.Concurrency,
			MaxBytes:    cfg.Fetch.MaxBytes,
			Retries:     uint64(max(cfg.Fetch.Retries, 0)),
		},
		Browser: chat2png.BrowserConfig{ExecPath: cfg.Browser.ExecPath, Timeout: cfg.BrowserTimeout},
		Logger:  log,
	})
	if err != nil {
		return err
	}

	c, err := cache.New(context.Background(), cache.Config{
		Enabled:       cfg.Cache.Enabled,
		Size:          cfg.Cache.Size,
		TTL:           cfg.CacheTTL,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		Prefix:        cfg.Cache.Prefix,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	srv := server.New(cfg, renderer, c, log)
	errc := make(chan error, 1)
	go func() { errc <- srv.Listen() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-quit:
		log.Info("shutdown requested", zap.Stringer("signal", sig))
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	log.Info("shutdown completed")
	return nil
}
