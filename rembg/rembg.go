package rembg

import (
	"context"

	"go.uber.org/zap"

	"github.com/chaos-io/cutout/asset"
)

// Remover 去除背景，返回新的资产，不修改输入
type Remover interface {
	Remove(ctx context.Context, in *asset.Asset) (*asset.Asset, error)
}

// RemoverFunc 函数适配 Remover
type RemoverFunc func(ctx context.Context, in *asset.Asset) (*asset.Asset, error)

func (f RemoverFunc) Remove(ctx context.Context, in *asset.Asset) (*asset.Asset, error) {
	return f(ctx, in)
}

// LoadingFunc 加载状态回调
type LoadingFunc func(loading bool)

// Notifier 面向用户的提示（toast 之类），只在远程和本地都失败时调用
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type NotifierFunc func(ctx context.Context, message string)

func (f NotifierFunc) Notify(ctx context.Context, message string) {
	f(ctx, message)
}

// LogNotifier 把提示写到日志
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string) {
	n.logger.Warn("user notification", zap.String("message", message))
}
