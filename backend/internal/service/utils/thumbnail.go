package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decoded RGBA bytes allowed before we refuse to decode
const maxDecodedSize = 64 << 20

// MakeThumbnail scales an image to fit maxSize x maxSize and returns it as a
// data URL. JPEG input stays JPEG, everything else becomes PNG.
func MakeThumbnail(data []byte, mimeType string, maxSize int) (string, error) {
	// A crafted header can claim huge dimensions, check before decoding.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to read image dimensions: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height)*4 > maxDecodedSize {
		return "", fmt.Errorf("image too large: %dx%d pixels", cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	outMime := "image/png"
	if strings.EqualFold(mimeType, "image/jpeg") || strings.EqualFold(mimeType, "image/jpg") {
		outMime = "image/jpeg"
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	} else {
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:" + outMime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fitWithin keeps the aspect ratio, never upscales and never returns a zero side.
func fitWithin(w, h, maxSize int) (int, int) {
	if w <= maxSize && h <= maxSize {
		return w, h
	}
	if w >= h {
		nh := h * maxSize / w
		if nh < 1 {
			nh = 1
		}
		return maxSize, nh
	}
	nw := w * maxSize / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSize
}

// DecodeDataURL splits a base64 data URL into bytes and MIME type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data url")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("data url is not base64")
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode data url: %w", err)
	}
	return b, mimeType, nil
}
