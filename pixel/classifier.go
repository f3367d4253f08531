package pixel

import (
	"errors"
	"fmt"
	"image"
)

var ErrInvalidThreshold = errors.New("pixel: threshold must be positive")

const (
	DefaultThreshold   = 80.0
	DefaultBrightAbove = 240.0
	DefaultDarkBelow   = 20.0
	DefaultShift       = 20
)

// Params 分类参数。
// 颜色距离规则与亮度规则是“或”的关系，任一满足即判为背景。
type Params struct {
	// Threshold RGB 欧氏距离阈值，小于它即为背景
	Threshold float64
	// BrightAbove 平均亮度高于它判为背景
	BrightAbove float64
	// DarkBelow 平均亮度低于它判为背景
	DarkBelow float64
	// Shift 合成变亮/变暗参考色的偏移量
	Shift int
}

func DefaultParams() Params {
	return Params{
		Threshold:   DefaultThreshold,
		BrightAbove: DefaultBrightAbove,
		DarkBelow:   DefaultDarkBelow,
		Shift:       DefaultShift,
	}
}

func (p Params) Validate() error {
	if p.Threshold <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, p.Threshold)
	}
	return nil
}

// IsBackground 判断单个像素是否属于背景
func (p Params) IsBackground(c Color, refs []Color) bool {
	brightness := (float64(c.R) + float64(c.G) + float64(c.B)) / 3
	if brightness > p.BrightAbove || brightness < p.DarkBelow {
		return true
	}

	limit := p.Threshold * p.Threshold
	for _, ref := range refs {
		if distanceSq(c, ref) < limit {
			return true
		}
	}
	return false
}

// Classify 返回新的缓冲区，背景像素 alpha 置 0，RGB 保持不变；
// 第二个返回值为被清除的像素数。src 不会被修改。
func Classify(src *image.NRGBA, refs []Color, p Params) (*image.NRGBA, int, error) {
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, ErrEmptyImage
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	cleared := 0
	for y := 0; y < h; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		copy(dstRow, srcRow)

		for i := 0; i < len(dstRow); i += 4 {
			c := Color{R: dstRow[i], G: dstRow[i+1], B: dstRow[i+2]}
			if p.IsBackground(c, refs) {
				dstRow[i+3] = 0
				cleared++
			}
		}
	}
	return dst, cleared, nil
}

// RemoveBackground 边框采样 + 像素分类
func RemoveBackground(src *image.NRGBA, p Params) (*image.NRGBA, int, error) {
	refs, err := Sample(src, p.Shift)
	if err != nil {
		return nil, 0, err
	}
	return Classify(src, refs, p)
}

func distanceSq(a, b Color) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return dr*dr + dg*dg + db*db
}
