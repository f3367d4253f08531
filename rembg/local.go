package rembg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/pixel"
)

// LocalRemBG 本地像素分类：边框采样 -> 分类 -> PNG
type LocalRemBG struct {
	params    pixel.Params
	maxPixels int64
	logger    *zap.Logger
}

type LocalOption func(*LocalRemBG)

// WithLocalMaxPixels 超过该像素数的图片不解码，直接失败
func WithLocalMaxPixels(n int64) LocalOption {
	return func(l *LocalRemBG) {
		if n > 0 {
			l.maxPixels = n
		}
	}
}

func NewLocalRemBG(params pixel.Params, logger *zap.Logger, opts ...LocalOption) *LocalRemBG {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &LocalRemBG{params: params, maxPixels: asset.DefaultMaxPixels, logger: logger}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LocalRemBG) Remove(_ context.Context, in *asset.Asset) (*asset.Asset, error) {
	img, err := in.DecodeWithin(l.maxPixels)
	if err != nil {
		return nil, fmt.Errorf("local decode: %w", err)
	}

	out, cleared, err := pixel.RemoveBackground(img, l.params)
	if err != nil {
		return nil, fmt.Errorf("local classify: %w", err)
	}

	l.logger.Debug("local classification finished",
		zap.Int("width", out.Bounds().Dx()),
		zap.Int("height", out.Bounds().Dy()),
		zap.Int("cleared", cleared),
		zap.Bool("input_had_alpha", asset.HasUsefulAlpha(img)))

	res, err := asset.EncodePNG(out, asset.ResultName)
	if err != nil {
		return nil, fmt.Errorf("local encode: %w", err)
	}
	return res, nil
}
