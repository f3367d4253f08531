package rembg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/pixel"
)

const (
	DefaultRemoteTimeout = 30 * time.Second
	// FailureMessage 远程和本地都失败时给用户的提示
	FailureMessage = "Background removal failed, the original image was kept"
)

// Source 结果来源
type Source string

const (
	SourceRemote   Source = "remote"
	SourceLocal    Source = "local"
	SourceOriginal Source = "original"
)

type stage int

const (
	stageRemote stage = iota
	stageLocal
	stageOriginal
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageRemote:
		return "attempt_remote"
	case stageLocal:
		return "attempt_local"
	case stageOriginal:
		return "return_original"
	default:
		return "done"
	}
}

// Outcome 流水线结果，Asset 永不为 nil（输入为 nil 时除外）
type Outcome struct {
	Asset  *asset.Asset
	Source Source
}

// Degraded 是否退回了原图
func (o Outcome) Degraded() bool {
	return o.Source == SourceOriginal
}

// Pipeline 远程 -> 本地 -> 原图 的降级链，永远不向调用方返回错误
type Pipeline struct {
	apiKey   string
	remote   Remover
	local    Remover
	notifier Notifier
	breaker  *CircuitBreaker
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Pipeline)

// WithRemote 替换远程实现；是否调用仍由凭证决定
func WithRemote(r Remover) Option {
	return func(p *Pipeline) { p.remote = r }
}

func WithLocal(r Remover) Option {
	return func(p *Pipeline) { p.local = r }
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

func WithBreaker(cb *CircuitBreaker) Option {
	return func(p *Pipeline) { p.breaker = cb }
}

func WithRemoteTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline apiKey 为空时远程阶段直接跳过
func NewPipeline(apiKey string, opts ...Option) *Pipeline {
	p := &Pipeline{
		apiKey:  apiKey,
		timeout: DefaultRemoteTimeout,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.remote == nil && apiKey != "" {
		p.remote = NewRemoteRemBG(apiKey)
	}
	if p.local == nil {
		p.local = NewLocalRemBG(pixel.DefaultParams(), p.logger)
	}
	if p.notifier == nil {
		p.notifier = NewLogNotifier(p.logger)
	}
	return p
}

// Remove 只返回图片
func (p *Pipeline) Remove(ctx context.Context, in *asset.Asset, onLoading LoadingFunc) *asset.Asset {
	return p.Process(ctx, in, onLoading).Asset
}

// Process 运行状态机：
//
//	ATTEMPT_REMOTE -> DONE（远程成功）
//	ATTEMPT_REMOTE -> ATTEMPT_LOCAL -> DONE（本地成功）
//	ATTEMPT_LOCAL -> RETURN_ORIGINAL -> DONE（都失败，提示用户）
//
// onLoading 进入时收到 true，结束时无论哪个分支都收到 false。
func (p *Pipeline) Process(ctx context.Context, in *asset.Asset, onLoading LoadingFunc) Outcome {
	if onLoading != nil {
		onLoading(true)
		defer onLoading(false)
	}

	var out Outcome
	st := stageRemote
	for st != stageDone {
		switch st {
		case stageRemote:
			res, err := p.attemptRemote(ctx, in)
			if err != nil {
				p.transition(st, stageLocal, err)
				st = stageLocal
				continue
			}
			out = Outcome{Asset: res, Source: SourceRemote}
			st = stageDone

		case stageLocal:
			res, err := p.attemptLocal(ctx, in)
			if err != nil {
				p.transition(st, stageOriginal, err)
				st = stageOriginal
				continue
			}
			out = Outcome{Asset: res, Source: SourceLocal}
			st = stageDone

		case stageOriginal:
			p.notifier.Notify(ctx, FailureMessage)
			out = Outcome{Asset: in, Source: SourceOriginal}
			st = stageDone
		}
	}

	p.logger.Info("background removal finished",
		zap.String("source", string(out.Source)),
		zap.Int("bytes", out.Asset.Size()))
	return out
}

// RemoteEnabled 是否配置了远程凭证
func (p *Pipeline) RemoteEnabled() bool {
	return p.apiKey != "" && p.remote != nil
}

func (p *Pipeline) attemptRemote(ctx context.Context, in *asset.Asset) (*asset.Asset, error) {
	if !p.RemoteEnabled() {
		return nil, ErrNoCredential
	}
	if p.breaker != nil && !p.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.remote.Remove(callCtx, in)
	if err == nil && res == nil {
		err = errors.New("remote returned no image")
	}
	if p.breaker != nil {
		// 调用方主动取消（如客户端断开）不算远程服务的失败
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			p.breaker.Abandon()
		} else {
			p.breaker.Done(err)
		}
	}
	return res, err
}

func (p *Pipeline) attemptLocal(ctx context.Context, in *asset.Asset) (res *asset.Asset, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("local remover panicked: %v", r)
		}
	}()

	res, err = p.local.Remove(ctx, in)
	if err == nil && res == nil {
		err = errors.New("local returned no image")
	}
	return res, err
}

func (p *Pipeline) transition(from, to stage, err error) {
	if errors.Is(err, ErrNoCredential) {
		p.logger.Debug("remote credential absent, using local fallback")
		return
	}
	p.logger.Warn("falling back",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Error(err))
}
