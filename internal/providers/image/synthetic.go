package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"strconv"
)

const (
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720
)

// SyntheticSynthesizer renders a deterministic PNG from the prompt. When the
// reference image decodes (PNG or JPEG) it is pasted into the left third.
type SyntheticSynthesizer struct{}

func NewSyntheticSynthesizer() *SyntheticSynthesizer { return &SyntheticSynthesizer{} }

func (s *SyntheticSynthesizer) Name() string { return ProviderSynthetic }

func (s *SyntheticSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := deterministicSeed(req.Prompt)
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, ThumbnailWidth, ThumbnailHeight))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &stdimage.Uniform{base}, stdimage.Point{}, draw.Src)

	stripeHeight := max(32, ThumbnailHeight/12)
	for y := 0; y < ThumbnailHeight; y += stripeHeight * 2 {
		stripe := stdimage.Rect(0, y, ThumbnailWidth, min(ThumbnailHeight, y+stripeHeight))
		draw.Draw(img, stripe, &stdimage.Uniform{accent}, stdimage.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < ThumbnailWidth; x += max(16, ThumbnailWidth/32) {
		for y := 0; y < ThumbnailHeight && x+y < ThumbnailWidth; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	if req.Reference != nil && len(req.Reference.Data) > 0 {
		if ref, _, err := stdimage.Decode(bytes.NewReader(req.Reference.Data)); err == nil {
			pasteScaled(img, ref, stdimage.Rect(0, 0, ThumbnailWidth/3, ThumbnailHeight))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode png: %w", err)
	}
	return &Image{Data: buf.Bytes(), MIME: "image/png"}, nil
}

// pasteScaled draws src into dst's rect with nearest-neighbour sampling.
func pasteScaled(dst draw.Image, src stdimage.Image, rect stdimage.Rectangle) {
	sb := src.Bounds()
	if sb.Empty() || rect.Empty() {
		return
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		sy := sb.Min.Y + (y-rect.Min.Y)*sb.Dy()/rect.Dy()
		for x := rect.Min.X; x < rect.Max.X; x++ {
			sx := sb.Min.X + (x-rect.Min.X)*sb.Dx()/rect.Dx()
			dst.Set(x, y, src.At(sx, sy))
		}
	}
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:18]
}

var _ Synthesizer = (*SyntheticSynthesizer)(nil)
