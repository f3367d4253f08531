package pixel

import (
	"errors"
	"image"
)

var ErrEmptyImage = errors.New("pixel: image has zero width or height")

// Color 参考色 (r, g, b)
type Color struct {
	R, G, B uint8
}

// 常见背景色
var (
	White     = Color{255, 255, 255}
	Black     = Color{0, 0, 0}
	LightGray = Color{240, 240, 240}
	MidGray   = Color{128, 128, 128}
)

// BorderAverage 只遍历四条边（上、下、左、右）求平均色，O(w+h)。
// 角点在行和列里各计一次。
func BorderAverage(img *image.NRGBA) (Color, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return Color{}, ErrEmptyImage
	}

	var sumR, sumG, sumB, n int
	add := func(x, y int) {
		i := y*img.Stride + x*4
		sumR += int(img.Pix[i])
		sumG += int(img.Pix[i+1])
		sumB += int(img.Pix[i+2])
		n++
	}

	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 0; y < h; y++ {
		add(0, y)
		add(w-1, y)
	}

	return Color{
		R: uint8((sumR + n/2) / n),
		G: uint8((sumG + n/2) / n),
		B: uint8((sumB + n/2) / n),
	}, nil
}

// ReferenceColors 由边框平均色合成 7 个参考色：
// 平均色、变亮、变暗、白、黑、浅灰、中灰
func ReferenceColors(avg Color, shift int) []Color {
	return []Color{
		avg,
		avg.offset(shift),
		avg.offset(-shift),
		White,
		Black,
		LightGray,
		MidGray,
	}
}

// Sample 边框采样 + 合成参考色
func Sample(img *image.NRGBA, shift int) ([]Color, error) {
	avg, err := BorderAverage(img)
	if err != nil {
		return nil, err
	}
	return ReferenceColors(avg, shift), nil
}

func (c Color) offset(d int) Color {
	return Color{
		R: clamp(int(c.R) + d),
		G: clamp(int(c.G) + d),
		B: clamp(int(c.B) + d),
	}
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
