package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/utafrali/catalogcore/internal/app"
	"github.com/utafrali/catalogcore/internal/config"
	"github.com/utafrali/catalogcore/internal/seed"
	"github.com/utafrali/catalogcore/pkg/logger"
)

func main() {
	opts := seed.DefaultOptions()

	cfg, err := config.Load(os.Args[1:], func(fs *pflag.FlagSet) {
		fs.IntVar(&opts.Products, "products", opts.Products, "number of products to create")
		fs.IntVar(&opts.ReviewsPerProduct, "reviews", opts.ReviewsPerProduct, "reviews posted per product")
		fs.IntVar(&opts.ImagesPerProduct, "images", opts.ImagesPerProduct, "images per product")
		fs.IntVar(&opts.Concurrency, "concurrency", opts.Concurrency, "products created in parallel")
		fs.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	})
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(2)
	}

	log := logger.New("catalog-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	_, err = seed.Run(ctx, application.Catalog(), application.Reviews(), opts, log)
	_ = application.Shutdown()
	if err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
