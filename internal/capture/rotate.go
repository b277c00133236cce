package capture

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/freemocap/skellycam/internal/config"
)

// rotate applies one of the four fixed orientations to img (spec §4.4:
// "apply rotation in-place on the decoded image before the SFB copy"). No
// retrieved pack dependency offers fixed-angle image rotation, so this is
// hand-rolled stdlib image/draw pixel transposition — see DESIGN.md.
func rotate(img image.Image, r config.Rotation) image.Image {
	if r == config.RotateNone {
		return toRGBA(img)
	}
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	switch r {
	case config.Rotate180:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, h-1-y, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case config.Rotate90CW:
		dst := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	case config.Rotate90CCW:
		dst := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(y, w-1-x, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return dst
	default:
		return src
	}
}

// rgbaToBytes packs an RGBA image into a dense h*w*channels byte slice
// (channels is typically 3, matching CameraConfig.ColorChannels — spec §3),
// dropping the alpha channel when channels == 3 and writing one luma byte
// per pixel when channels == 1.
func rgbaToBytes(img image.Image, channels int) []byte {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*channels)
	for y := 0; y < h; y++ {
		rowStart := rgba.PixOffset(b.Min.X, b.Min.Y+y)
		row := rgba.Pix[rowStart : rowStart+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+4]
			if channels == 1 {
				g := color.GrayModel.Convert(color.RGBA{px[0], px[1], px[2], px[3]}).(color.Gray)
				out = append(out, g.Y)
				continue
			}
			out = append(out, px[0], px[1], px[2])
			if channels == 4 {
				out = append(out, px[3])
			}
		}
	}
	return out
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
