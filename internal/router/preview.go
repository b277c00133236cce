package router

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/freemocap/skellycam/internal/ipc"
	"github.com/freemocap/skellycam/internal/payload"
)

// previewQuality is the JPEG quality used for downsampled preview frames —
// lower than a recording's own encode since this path only feeds a GUI
// thumbnail, not the archival file.
const previewQuality = 80

// publishPreview builds the per-camera downsampled JPEG preview document
// (spec §4.6 step 3, §6 Preview payload shape) and offers it on the
// drop-tolerant preview channel. A full channel silently drops this cycle's
// preview and moves on (spec: "if the channel is backed up, the current
// preview is discarded and the next one is attempted").
func (r *Router) publishPreview(p payload.MultiFramePayload) {
	images := make(map[int]string, len(p.Frames))
	lifespan := make(map[string]uint64, len(p.Frames)*2)

	for _, f := range p.Frames {
		c, ok := r.configs.Get(f.CameraID)
		if !ok {
			continue
		}
		jpegBytes, err := downsampleToJPEG(f.Image, c.Height, c.Width, c.ColorChannels, r.previewScale)
		if err != nil {
			log.Printf("router: preview encode camera %d: %v", f.CameraID, err)
			continue
		}
		images[f.CameraID] = base64.StdEncoding.EncodeToString(jpegBytes)
		lifespan[keyFor(f.CameraID, "pre_grab_ns")] = f.Meta.PreGrabNs
		lifespan[keyFor(f.CameraID, "post_retrieve_ns")] = f.Meta.PostRetrieveNs
	}
	if len(images) == 0 {
		return
	}

	doc := ipc.PreviewPayload{
		MultiFrameNumber:   p.MultiFrameNumber,
		LifespanTimestamps: lifespan,
		JPEGImages:         images,
	}
	data, err := doc.Marshal()
	if err != nil {
		log.Printf("router: preview marshal: %v", err)
		return
	}
	r.iec.PublishPreview(data)
}

func keyFor(cameraID int, field string) string {
	return field + ":" + strconv.Itoa(cameraID)
}

// downsampleToJPEG reconstructs an image.Image from raw packed
// height*width*channels bytes, scales it by factor using
// golang.org/x/image/draw's approximate bilinear scaler (spec §4.6
// "downsampled image ... default 0.25× scale"), and JPEG-encodes it.
func downsampleToJPEG(raw []byte, height, width, channels int, factor float64) ([]byte, error) {
	src := imageFromPacked(raw, height, width, channels)

	dstW := maxInt(1, int(float64(width)*factor))
	dstH := maxInt(1, int(float64(height)*factor))
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageFromPacked builds an *image.RGBA from the dense byte layout
// internal/capture.rgbaToBytes produces: channels 1 (grayscale replicated
// across RGB), 3 (RGB, alpha forced opaque), or 4 (RGBA).
func imageFromPacked(raw []byte, height, width, channels int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := (y*width + x) * channels
			if o+channels > len(raw) {
				continue
			}
			var c color.RGBA
			switch channels {
			case 1:
				c = color.RGBA{R: raw[o], G: raw[o], B: raw[o], A: 255}
			case 4:
				c = color.RGBA{R: raw[o], G: raw[o+1], B: raw[o+2], A: raw[o+3]}
			default: // 3: RGB
				c = color.RGBA{R: raw[o], G: raw[o+1], B: raw[o+2], A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
