// Package imgx 负责海报图片的格式规范化。
package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // 注册 GIF 解码器
	"image/jpeg"
	_ "image/png" // 注册 PNG 解码器（CDN 偶尔返回 PNG）
)

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// NormalizeJPEG 保证输出是 JPEG（poster.jpg）。
//
// 约束：
// - 输入已经是 JPEG 时原样返回（不重新编码，避免二次有损压缩）
// - PNG/GIF 先铺白底去掉透明通道，再编码为 JPEG
// - 无法解码时返回错误，由调用方记为条目级失败
func NormalizeJPEG(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.New("图片为空")
	}
	if bytes.HasPrefix(src, jpegMagic) {
		return src, nil
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
