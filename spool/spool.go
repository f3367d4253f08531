package spool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/asset"
)

const ext = ".png"

var (
	ErrInvalidID = errors.New("spool: invalid result id")
	ErrNotFound  = errors.New("spool: result not found")
)

// Spool 把处理结果落盘，按保留期定时清理
type Spool struct {
	dir       string
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Spool)

func WithClock(fn func() time.Time) Option {
	return func(s *Spool) { s.now = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Spool) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(dir string, retention time.Duration, opts ...Option) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	s := &Spool{
		dir:       dir,
		retention: retention,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Save 写入结果，返回 ksuid
func (s *Spool) Save(a *asset.Asset) (string, error) {
	id := ksuid.New().String()
	if err := os.WriteFile(s.path(id), a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return id, nil
}

// Open 读取结果，id 必须是合法 ksuid
func (s *Spool) Open(id string) (*asset.Asset, error) {
	if _, err := ksuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return &asset.Asset{Name: asset.ResultName, MIMEType: asset.PNGMIMEType, Data: data}, nil
}

// Sweep 删除超过保留期的结果，retention <= 0 时不清理
func (s *Spool) Sweep() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove expired result", zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Schedule 按 cron 表达式定时 Sweep，调用方负责 Stop
func (s *Spool) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		removed, err := s.Sweep()
		if err != nil {
			s.logger.Error("spool sweep failed", zap.Error(err))
			return
		}
		s.logger.Info("spool swept", zap.Int("removed", removed))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep spec %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}

func (s *Spool) path(id string) string {
	return filepath.Join(s.dir, id+ext)
}
