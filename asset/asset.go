package asset

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	PNGMIMEType = "image/png"
	// ResultName 抠图结果的固定文件名
	ResultName = "camera-photo-no-bg.png"
	// DefaultMaxPixels 解码前允许的最大像素数（约 40MP）
	DefaultMaxPixels = 40_000_000
)

var (
	ErrEmpty         = errors.New("asset: empty image data")
	ErrZeroDimension = errors.New("asset: image has zero width or height")
	ErrTooLarge      = errors.New("asset: image dimensions exceed the pixel limit")
)

// Asset 图片资产：原始字节 + MIME 类型 + 逻辑文件名
type Asset struct {
	Name     string
	MIMEType string
	Data     []byte
}

// New 创建资产，mimeType 为空时按内容嗅探
func New(name, mimeType string, data []byte) *Asset {
	if mimeType == "" {
		mimeType = Detect(data)
	}
	return &Asset{
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	}
}

// Detect 嗅探字节内容的 MIME 类型
func Detect(data []byte) string {
	return mimetype.Detect(data).String()
}

// Extension 按内容推断扩展名（带点），识别不了时用文件名的扩展名
func (a *Asset) Extension() string {
	if a == nil {
		return ""
	}
	if ext := mimetype.Detect(a.Data).Extension(); ext != "" {
		return ext
	}
	return filepath.Ext(a.Name)
}

func (a *Asset) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// Clone 深拷贝，流水线不会原地修改输入
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Asset{Name: a.Name, MIMEType: a.MIMEType, Data: data}
}

// MD5 内容摘要，用作缓存键
func (a *Asset) MD5() string {
	sum := md5.Sum(a.Data)
	return hex.EncodeToString(sum[:])
}

// Config 只解析图片头，得到宽高和格式
func (a *Asset) Config() (image.Config, string, error) {
	if a == nil || len(a.Data) == 0 {
		return image.Config{}, "", ErrEmpty
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	return cfg, format, nil
}

// Decode 解码为 NRGBA 栅格，原点归零，像素数上限为 DefaultMaxPixels
func (a *Asset) Decode() (*image.NRGBA, error) {
	return a.DecodeWithin(DefaultMaxPixels)
}

// DecodeWithin 先读图片头，宽×高超过 maxPixels 时不解码直接返回 ErrTooLarge。
// maxPixels <= 0 表示不限制
func (a *Asset) DecodeWithin(maxPixels int64) (*image.NRGBA, error) {
	if a == nil || len(a.Data) == 0 {
		return nil, ErrEmpty
	}
	if maxPixels > 0 {
		cfg, _, err := a.Config()
		if err != nil {
			return nil, err
		}
		if n := int64(cfg.Width) * int64(cfg.Height); n > maxPixels {
			return nil, fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
		}
	}
	img, _, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrZeroDimension
	}
	return ToNRGBA(img), nil
}

// EncodePNG 编码为 PNG 资产（保留 alpha 通道）
func EncodePNG(img image.Image, name string) (*Asset, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrZeroDimension
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &Asset{
		Name:     name,
		MIMEType: PNGMIMEType,
		Data:     buf.Bytes(),
	}, nil
}

// ToNRGBA 转为 NRGBA，方便按字节处理像素
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return nrgba
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// HasUsefulAlpha 检查 alpha 通道是否真的包含透明信息
func HasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}
