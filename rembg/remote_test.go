package rembg

import (
	"context"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/cutout/asset"
	nhttp "github.com/chaos-io/cutout/util/http"
)

func TestRemoteRemBG_Remove(t *testing.T) {
	t.Parallel()

	input := solidPNG(t, 6, 4, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	result := solidPNG(t, 6, 4, color.NRGBA{R: 10, G: 200, B: 30, A: 0})

	tests := []struct {
		name       string
		apiKey     string
		handler    http.HandlerFunc
		wantErrMsg string
		wantStatus int
		wantResult bool
	}{
		{
			name:   "成功返回 PNG",
			apiKey: "secret",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "secret", r.Header.Get(APIKeyHeader))

				file, header, err := r.FormFile("image")
				require.NoError(t, err)
				defer func() {
					_ = file.Close()
				}()
				assert.Equal(t, "photo.png", header.Filename)
				got, err := io.ReadAll(file)
				require.NoError(t, err)
				assert.Equal(t, input, got)

				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write(result)
			},
			wantResult: true,
		},
		{
			name:   "服务端返回 402",
			apiKey: "secret",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				_, _ = w.Write([]byte(`{"errors":[{"title":"Insufficient credits"}]}`))
			},
			wantErrMsg: "Insufficient credits",
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:   "响应不是图片",
			apiKey: "secret",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok":true}`))
			},
			wantErrMsg: "response is not an image",
		},
		{
			name:   "空响应体",
			apiKey: "secret",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantErrMsg: "empty response body",
		},
		{
			name: "未配置凭证",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("remote must not be called without credential")
			},
			wantErrMsg: ErrNoCredential.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			r := NewRemoteRemBG(tt.apiKey, WithEndpoint(server.URL))
			got, err := r.Remove(context.Background(), asset.New("photo.png", "", input))

			if !tt.wantResult {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrRemoteRemoval)
				assert.Contains(t, err.Error(), tt.wantErrMsg)
				assert.Nil(t, got)
				if tt.wantStatus != 0 {
					var statusErr *nhttp.StatusError
					require.ErrorAs(t, err, &statusErr)
					assert.Equal(t, tt.wantStatus, statusErr.StatusCode)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, result, got.Data)
			assert.Equal(t, asset.PNGMIMEType, got.MIMEType)
			assert.Equal(t, asset.ResultName, got.Name)
		})
	}
}

func TestRemoteRemBG_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewRemoteRemBG("secret", WithEndpoint(server.URL))
	_, err := r.Remove(ctx, asset.New("photo.png", "", solidPNG(t, 2, 2, white)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRemoval)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemoteRemBG_EmptyInput(t *testing.T) {
	t.Parallel()

	r := NewRemoteRemBG("secret")
	_, err := r.Remove(context.Background(), &asset.Asset{Name: "empty.png"})
	assert.ErrorIs(t, err, ErrRemoteRemoval)
	assert.ErrorIs(t, err, asset.ErrEmpty)
}

func TestRemoteRemBG_DownscalesLargeUploads(t *testing.T) {
	t.Parallel()

	type upload struct {
		name string
		cfg  image.Config
	}
	result := solidPNG(t, 1, 1, white)
	uploads := make(chan upload, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer func() {
			_ = file.Close()
		}()
		cfg, _, err := image.DecodeConfig(file)
		require.NoError(t, err)
		uploads <- upload{name: header.Filename, cfg: cfg}
		_, _ = w.Write(result)
	}))
	defer server.Close()

	r := NewRemoteRemBG("secret",
		WithEndpoint(server.URL),
		WithMaxUploadSide(50),
		WithHTTPClient(nhttp.NewHTTPClient()),
	)
	_, err := r.Remove(context.Background(), asset.New("camera.jpg", "", solidPNG(t, 200, 100, white)))
	require.NoError(t, err)
	got := <-uploads
	assert.Equal(t, 50, got.cfg.Width)
	assert.Equal(t, 25, got.cfg.Height)
	assert.Equal(t, "camera.png", got.name)
}

func TestRemoteRemBG_SmallUploadsAreSentVerbatim(t *testing.T) {
	t.Parallel()

	input := solidPNG(t, 20, 10, white)
	uploads := make(chan []byte, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		_ = file.Close()
		uploads <- data
		_, _ = w.Write(input)
	}))
	defer server.Close()

	r := NewRemoteRemBG("secret", WithEndpoint(server.URL), WithMaxUploadSide(50))
	_, err := r.Remove(context.Background(), asset.New("", "", input))
	require.NoError(t, err)
	assert.Equal(t, input, <-uploads)
}

func TestRemoteRemBG_RejectsOversizedBeforeUpload(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	r := NewRemoteRemBG("secret", WithEndpoint(server.URL), WithMaxUploadSide(50), WithMaxPixels(100))
	_, err := r.Remove(context.Background(), asset.New("big.png", "", solidPNG(t, 200, 100, white)))
	assert.ErrorIs(t, err, ErrRemoteRemoval)
	assert.ErrorIs(t, err, asset.ErrTooLarge)
	assert.Zero(t, calls.Load())
}
