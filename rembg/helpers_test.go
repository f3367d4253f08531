package rembg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaos-io/cutout/asset"
)

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// withDimensions 只改写 PNG 头里的宽高
func withDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	require.Equal(t, "IHDR", string(out[12:16]))
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// countingRemover 记录调用次数
type countingRemover struct {
	calls atomic.Int32
	out   *asset.Asset
	err   error
}

func (c *countingRemover) Remove(_ context.Context, _ *asset.Asset) (*asset.Asset, error) {
	c.calls.Add(1)
	return c.out, c.err
}

func failing(msg string) *countingRemover {
	return &countingRemover{err: errors.New(msg)}
}

// loadingRecorder 记录加载状态回调
type loadingRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (l *loadingRecorder) record(loading bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, loading)
}

type notifyRecorder struct {
	messages []string
}

func (n *notifyRecorder) Notify(_ context.Context, message string) {
	n.messages = append(n.messages, message)
}
