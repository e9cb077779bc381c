// Package avatar 负责头像上传的校验与缩放。
package avatar

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"regexp"

	"taskmanager/internal/apperr"

	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxBytes 上传文件大小上限（不含）。
	DefaultMaxBytes = 1000000
	// DefaultSize 输出头像边长（像素）。
	DefaultSize = 250
	// DefaultMaxPixels 解码前允许的最大像素数（宽×高）。
	DefaultMaxPixels = 40_000_000
)

var imageName = regexp.MustCompile(`\.(jpe?g|png)$`)

// Processor 校验上传文件并输出固定尺寸的 PNG。
type Processor struct {
	MaxBytes  int64
	Size      int
	MaxPixels int64
}

// NewProcessor 创建头像处理器，非正值使用默认配置。
func NewProcessor(maxBytes int64, size int) *Processor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Processor{MaxBytes: maxBytes, Size: size, MaxPixels: DefaultMaxPixels}
}

// Validate 在读取文件内容之前检查文件名与声明大小。
func (p *Processor) Validate(filename string, size int64) error {
	if !imageName.MatchString(filename) {
		return apperr.Validation("Upload an image.")
	}
	if size >= p.MaxBytes {
		return apperr.Validation("File too large")
	}
	return nil
}

// Transform 读取图片（最多 MaxBytes 字节），缩放裁剪为 Size×Size 并编码为 PNG。
func (p *Processor) Transform(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.MaxBytes))
	if err != nil {
		return nil, apperr.Internal("read upload", err)
	}
	if int64(len(data)) >= p.MaxBytes {
		return nil, apperr.Validation("File too large")
	}

	// 压缩率极高的小文件也可能声明巨大的尺寸，解码前先检查头部
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("Unsupported image: %v", err))
	}
	if p.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > p.MaxPixels {
		return nil, apperr.Validation("Image dimensions too large")
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("Unsupported image: %v", err))
	}
	resized := imaging.Fill(img, p.Size, p.Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, apperr.Internal("encode png", err)
	}
	return buf.Bytes(), nil
}
