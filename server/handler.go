package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/config"
	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/spool"
	"github.com/chaos-io/cutout/util"
	nhttp "github.com/chaos-io/cutout/util/http"
)

const (
	SourceHeader   = "X-Removal-Source"
	ResultIDHeader = "X-Result-ID"
	sourceCache    = "cache"
)

var Version = "dev"

type Handler struct {
	upload     config.UploadConfig
	pipeline   *rembg.Pipeline
	cache      Cache
	namespace  string
	spool      *spool.Spool
	downloader nhttp.IClient
	logger     *zap.Logger
	inflight   atomic.Int64
}

type Option func(*Handler)

func WithCache(cache Cache) Option {
	return func(h *Handler) { h.cache = cache }
}

// WithCacheNamespace 缓存键前缀，配置变化后旧结果不再命中
func WithCacheNamespace(ns string) Option {
	return func(h *Handler) { h.namespace = ns }
}

func WithSpool(s *spool.Spool) Option {
	return func(h *Handler) { h.spool = s }
}

func WithDownloader(cli nhttp.IClient) Option {
	return func(h *Handler) { h.downloader = cli }
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(upload config.UploadConfig, pipeline *rembg.Pipeline, opts ...Option) *Handler {
	h := &Handler{
		upload:     upload,
		pipeline:   pipeline,
		downloader: nhttp.NewHTTPClient(),
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Inflight 正在处理的请求数，由加载状态回调维护
func (h *Handler) Inflight() int64 {
	return h.inflight.Load()
}

func (h *Handler) setLoading(loading bool) {
	if loading {
		h.inflight.Add(1)
	} else {
		h.inflight.Add(-1)
	}
}

// RemoveBackground 处理 multipart 上传
func (h *Handler) RemoveBackground(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.logger.Warn("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "please upload an image file",
			Error:   err.Error(),
		})
		return
	}

	if h.tooLarge(c, file.Size) {
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to open upload", Error: err.Error()})
		return
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to read upload", Error: err.Error()})
		return
	}

	in := asset.New(file.Filename, "", data)
	if !h.allowed(c, in) {
		return
	}
	h.process(c, in)
}

// RemoveBackgroundURL 下载图片后处理
func (h *Handler) RemoveBackgroundURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request", Error: err.Error()})
		return
	}

	in, err := util.DownloadAsset(c.Request.Context(), h.downloader, req.URL, h.upload.MaxSize)
	if errors.Is(err, nhttp.ErrBodyTooLarge) {
		h.logger.Warn("remote image too large", zap.String("url", req.URL), zap.Error(err))
		h.rejectTooLarge(c)
		return
	}
	if err != nil {
		h.logger.Warn("failed to download image", zap.String("url", req.URL), zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Message: "failed to download image", Error: err.Error()})
		return
	}

	if h.tooLarge(c, int64(in.Size())) || !h.allowed(c, in) {
		return
	}
	h.process(c, in)
}

// GetResult 读取落盘的结果
func (h *Handler) GetResult(c *gin.Context) {
	if h.spool == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "result storage disabled"})
		return
	}

	a, err := h.spool.Open(c.Param("id"))
	switch {
	case errors.Is(err, spool.ErrInvalidID):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid result id", Error: err.Error()})
	case errors.Is(err, spool.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "result not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to read result", Error: err.Error()})
	default:
		h.respond(c, a, "", "")
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		Inflight:      h.Inflight(),
		RemoteEnabled: h.pipeline.RemoteEnabled(),
	})
}

func (h *Handler) process(c *gin.Context, in *asset.Asset) {
	ctx := c.Request.Context()
	key := in.MD5()
	if h.namespace != "" {
		key = h.namespace + ":" + key
	}

	if h.cache != nil {
		cached, err := h.cache.Get(ctx, key)
		if err != nil {
			h.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		} else if cached != nil {
			h.respond(c, cached, sourceCache, "")
			return
		}
	}

	out := h.pipeline.Process(ctx, in, h.setLoading)

	var id string
	if !out.Degraded() {
		if h.cache != nil {
			if err := h.cache.Set(ctx, key, out.Asset); err != nil {
				h.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		if h.spool != nil {
			var err error
			if id, err = h.spool.Save(out.Asset); err != nil {
				h.logger.Warn("spool save failed", zap.Error(err))
			}
		}
	}

	h.respond(c, out.Asset, string(out.Source), id)
}

func (h *Handler) respond(c *gin.Context, a *asset.Asset, source, id string) {
	if source != "" {
		c.Header(SourceHeader, source)
	}
	if id != "" {
		c.Header(ResultIDHeader, id)
	}
	name := a.Name
	if name == "" {
		name = asset.ResultName
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, a.MIMEType, a.Data)
}

func (h *Handler) tooLarge(c *gin.Context, size int64) bool {
	if h.upload.MaxSize > 0 && size > h.upload.MaxSize {
		h.rejectTooLarge(c)
		return true
	}
	return false
}

func (h *Handler) rejectTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Message: fmt.Sprintf("file exceeds the %d MB limit", h.upload.MaxSize/(1024*1024)),
	})
}

func (h *Handler) allowed(c *gin.Context, in *asset.Asset) bool {
	if len(h.upload.AllowedTypes) == 0 {
		return true
	}
	for _, t := range h.upload.AllowedTypes {
		if strings.EqualFold(t, in.MIMEType) {
			return true
		}
	}
	c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{
		Message: "unsupported file type",
		Error:   in.MIMEType,
	})
	return false
}
