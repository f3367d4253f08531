package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"

	"github.com/chaos-io/cutout/asset"
	nhttp "github.com/chaos-io/cutout/util/http"
)

const (
	DefaultEndpoint = "https://api.remove.bg/v1.0/removebg"
	APIKeyHeader    = "X-Api-Key"
	formField       = "image"
)

var (
	ErrRemoteRemoval = errors.New("remote removal failed")
	ErrNoCredential  = errors.New("remote credential not configured")
)

// RemoteRemBG 调用第三方抠图服务，不重试
type RemoteRemBG struct {
	endpoint string
	apiKey   string
	maxSide   int
	maxPixels int64
	cli       nhttp.IClient
}

type RemoteOption func(*RemoteRemBG)

func WithEndpoint(endpoint string) RemoteOption {
	return func(r *RemoteRemBG) {
		if endpoint != "" {
			r.endpoint = endpoint
		}
	}
}

func WithHTTPClient(cli nhttp.IClient) RemoteOption {
	return func(r *RemoteRemBG) { r.cli = cli }
}

// WithMaxUploadSide 上传前把最长边缩到 n 以内，0 表示原图上传
func WithMaxUploadSide(n int) RemoteOption {
	return func(r *RemoteRemBG) { r.maxSide = n }
}

// WithMaxPixels 缩放前解码允许的最大像素数
func WithMaxPixels(n int64) RemoteOption {
	return func(r *RemoteRemBG) {
		if n > 0 {
			r.maxPixels = n
		}
	}
}

func NewRemoteRemBG(apiKey string, opts ...RemoteOption) *RemoteRemBG {
	r := &RemoteRemBG{
		endpoint:  DefaultEndpoint,
		apiKey:    apiKey,
		maxPixels: asset.DefaultMaxPixels,
		cli:       nhttp.NewHTTPClient(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Remove 所有失败都归类为 ErrRemoteRemoval
func (r *RemoteRemBG) Remove(ctx context.Context, in *asset.Asset) (*asset.Asset, error) {
	out, err := r.remove(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteRemoval, err)
	}
	return out, nil
}

/*
	curl -X POST "$ENDPOINT" \
	  -H "X-Api-Key: $REMOVE_BG_API_KEY" \
	  -F "image=@photo.jpg" \
	  -o photo-no-bg.png
*/
func (r *RemoteRemBG) remove(ctx context.Context, in *asset.Asset) (*asset.Asset, error) {
	if r.apiKey == "" {
		return nil, ErrNoCredential
	}
	if in == nil || len(in.Data) == 0 {
		return nil, asset.ErrEmpty
	}

	name, payload, err := r.uploadPayload(in)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(formField, name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var data []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: r.endpoint,
		Method:     "POST",
		Header: map[string]string{
			"Content-Type": writer.FormDataContentType(),
			"Accept":       asset.PNGMIMEType,
			APIKeyHeader:   r.apiKey,
		},
		Body:     body,
		Response: &data,
	}
	if err := r.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if len(data) == 0 {
		return nil, errors.New("empty response body")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("response is not an image: %w", err)
	}

	return &asset.Asset{
		Name:     asset.ResultName,
		MIMEType: asset.PNGMIMEType,
		Data:     data,
	}, nil
}

// uploadPayload 超过 maxSide 时缩放后以 PNG 上传，否则原样上传
func (r *RemoteRemBG) uploadPayload(in *asset.Asset) (string, []byte, error) {
	name := in.Name
	if name == "" {
		name = formField
	}
	if r.maxSide <= 0 {
		return name, in.Data, nil
	}

	cfg, _, err := in.Config()
	if err != nil || max(cfg.Width, cfg.Height) <= r.maxSide {
		return name, in.Data, nil
	}

	img, err := in.DecodeWithin(r.maxPixels)
	if err != nil {
		return "", nil, err
	}
	resized := resizeWithinMax(img, r.maxSide)
	scaled, err := asset.EncodePNG(resized, name)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".png", scaled.Data, nil
}

// resizeWithinMax 缩放（最长边 <= maxSize）
func resizeWithinMax(img image.Image, maxSize int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	return resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
}
