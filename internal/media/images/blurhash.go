package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// BlurHash output barely changes above thumbnail resolution, so inputs are
// downscaled to this edge length before encoding.
const thumbEdge = 64

// ComputeBlurHash decodes raw image bytes and returns their BlurHash
// placeholder string. 4x4 components suit roughly square avatars.
func ComputeBlurHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	hash, err := blurhash.Encode(4, 4, thumbnail(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// thumbnail downscales an image to at most thumbEdge on its longer side,
// preserving aspect ratio. Small images pass through untouched.
func thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= thumbEdge && h <= thumbEdge {
		return img
	}

	tw, th := thumbEdge, thumbEdge
	if w > h {
		th = max(h*thumbEdge/w, 1)
	} else {
		tw = max(w*thumbEdge/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
