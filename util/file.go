package util

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/chaos-io/cutout/asset"
	nhttp "github.com/chaos-io/cutout/util/http"
)

// DownloadAsset 下载图片，maxSize > 0 时响应体超过它立即失败（nhttp.ErrBodyTooLarge）
func DownloadAsset(ctx context.Context, cli nhttp.IClient, rawURL string, maxSize int64) (*asset.Asset, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var data []byte
	err = cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI:  rawURL,
		Method:      "GET",
		Response:    &data,
		MaxBodySize: maxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download %s: %w", rawURL, asset.ErrEmpty)
	}

	return asset.New(path.Base(u.Path), "", data), nil
}

// OpenAsset 打开本地图片
func OpenAsset(name string) (*asset.Asset, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return asset.New(filepath.Base(name), "", data), nil
}

// SaveAsset 写出图片
func SaveAsset(name string, a *asset.Asset) error {
	if dir := filepath.Dir(name); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}
	return os.WriteFile(name, a.Data, 0o644)
}
