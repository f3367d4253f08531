package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/server"
	"github.com/chaos-io/cutout/spool"
	"github.com/chaos-io/cutout/util"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	input := flag.String("in", "", "单次处理的输入图片，为空时启动 HTTP 服务")
	output := flag.String("out", "output/camera-photo-no-bg.png", "单次处理的输出路径")
	flag.Parse()

	cfg, cfgErr := config.New(*configPath)

	if err := util.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	logger := util.Logger
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults",
			zap.String("path", *configPath), zap.Error(cfgErr))
	}
	pipeline := newPipeline(cfg, logger)

	if *input != "" {
		if err := runOnce(pipeline, *input, *output); err != nil {
			logger.Fatal("failed to process image", zap.Error(err))
		}
		return
	}

	logger.Info("starting cutout server",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.Bool("remote_enabled", pipeline.RemoteEnabled()))

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCacheNamespace(cfg.Fingerprint()),
	}

	if cfg.Redis.Enabled {
		cache := server.NewRedisCache(&cfg.Redis)
		if err := cache.Ping(context.Background()); err != nil {
			logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		} else {
			logger.Info("redis connected successfully")
			opts = append(opts, server.WithCache(cache))
		}
		defer func() {
			_ = cache.Close()
		}()
	}

	sp, err := spool.New(cfg.Spool.Dir, cfg.Spool.Retention, spool.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create spool", zap.Error(err))
	}
	sweeper, err := sp.Schedule(cfg.Spool.SweepSpec)
	if err != nil {
		logger.Fatal("failed to schedule spool sweep", zap.Error(err))
	}
	defer sweeper.Stop()
	opts = append(opts, server.WithSpool(sp))

	server.Version = Version
	gin.SetMode(cfg.Server.Mode)
	handler := server.NewHandler(cfg.Upload, pipeline, opts...)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      server.NewRouter(handler, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}

func newPipeline(cfg *config.Config, logger *zap.Logger) *rembg.Pipeline {
	remote := rembg.NewRemoteRemBG(cfg.RemBG.APIKey,
		rembg.WithEndpoint(cfg.RemBG.Endpoint),
		rembg.WithMaxUploadSide(cfg.RemBG.MaxUploadSide),
		rembg.WithMaxPixels(cfg.Upload.MaxPixels),
	)
	breaker := rembg.NewCircuitBreaker(
		rembg.WithBreakerThreshold(cfg.RemBG.BreakerThreshold),
		rembg.WithBreakerResetTimeout(cfg.RemBG.BreakerReset),
	)

	return rembg.NewPipeline(cfg.RemBG.APIKey,
		rembg.WithRemote(remote),
		rembg.WithLocal(rembg.NewLocalRemBG(cfg.Classifier.Params(), logger,
			rembg.WithLocalMaxPixels(cfg.Upload.MaxPixels))),
		rembg.WithBreaker(breaker),
		rembg.WithRemoteTimeout(cfg.RemBG.Timeout),
		rembg.WithNotifier(rembg.NewLogNotifier(logger)),
		rembg.WithLogger(logger),
	)
}

func runOnce(pipeline *rembg.Pipeline, input, output string) error {
	defer util.Trace("run once")()

	in, err := util.OpenAsset(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	out := pipeline.Process(context.Background(), in, nil)
	if out.Degraded() {
		output = degradedPath(output, out.Asset)
		util.Logger.Warn("background removal failed, writing the original image",
			zap.String("output", output))
	}
	if err := util.SaveAsset(output, out.Asset); err != nil {
		return fmt.Errorf("save output: %w", err)
	}

	util.Logger.Info("done",
		zap.String("output", output),
		zap.String("source", string(out.Source)))
	return nil
}

// degradedPath 原图不是 PNG 时，按原图格式改写输出扩展名
func degradedPath(output string, original *asset.Asset) string {
	ext := original.Extension()
	if ext == "" || strings.EqualFold(ext, filepath.Ext(output)) {
		return output
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + ext
}
