package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/Brownie44l1/damage-api/internal/artifact"
	"github.com/Brownie44l1/damage-api/internal/config"
	"github.com/Brownie44l1/damage-api/internal/handlers"
	"github.com/Brownie44l1/damage-api/internal/logger"
	"github.com/Brownie44l1/damage-api/internal/metrics"
	"github.com/Brownie44l1/damage-api/internal/model"
	"github.com/Brownie44l1/damage-api/internal/preprocess"
	"github.com/Brownie44l1/damage-api/internal/server"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"
)

// set at build time with -ldflags "-X main.version=..."
var version = "dev"

func info() string {
	return fmt.Sprintf("damage-api %s %s %s/%s", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(info())
		return
	}

	if err := run(); err != nil {
		log.Error().Err(err).Msg("damage-api exited")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	closer, err := logger.InitLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	log.Info().Str("version", info()).Msg("starting")

	m, err := metrics.New(cfg.StatsdAddr, metrics.GlobalTags(cfg.ServiceName, cfg.ServiceEnv))
	if err != nil {
		return err
	}
	defer m.Close()

	art, err := artifact.Load(artifact.Paths{
		Model:         cfg.ModelPath(),
		Preprocessing: cfg.PreprocessingPath(),
		ModelCard:     cfg.ModelCardPath(),
	}, model.Options{LibraryPath: cfg.OnnxRuntimeLib})
	if err != nil {
		return err
	}
	defer art.Close()

	event := log.Info().Str("model", art.ModelName)
	if art.TestAUC != nil {
		event = event.Float64("test_auc", *art.TestAUC)
	}
	event.Str("input", art.InputShape.String()).
		Strs("classes", art.Classes[:]).
		Float64("scale", art.Preprocessing.Scale).
		Msg("model loaded")

	pre, err := preprocess.New(art.Preprocessing.Resize[0], art.Preprocessing.Resize[1], art.Preprocessing.Scale, cfg.Interpolation,
		preprocess.WithMaxPixels(cfg.MaxImagePixels))
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, handlers.NewHandler(art, pre, m, cfg.MaxUploadBytes), m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
