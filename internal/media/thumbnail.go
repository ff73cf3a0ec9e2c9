package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/storage"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	ThumbnailWidth     = 300
	thumbnailMaxHeight = ThumbnailWidth * 2
	jpegQuality        = 80
	// ffmpeg -q:v scale, 2 (best) to 31.
	ffmpegJPEGQuality = 4
)

// Processor derives output for one leased capture and stores it.
type Processor interface {
	Process(ctx context.Context, capture *models.Capture, data []byte) (models.ProcessingOutput, error)
}

type ThumbnailProcessor struct {
	store  storage.ObjectStorage
	ffmpeg *FFmpeg
}

func NewThumbnailProcessor(store storage.ObjectStorage, ffmpeg *FFmpeg) *ThumbnailProcessor {
	return &ThumbnailProcessor{store: store, ffmpeg: ffmpeg}
}

func (p *ThumbnailProcessor) Process(ctx context.Context, capture *models.Capture, data []byte) (models.ProcessingOutput, error) {
	var thumb []byte
	var err error

	if isVideo(capture, data) {
		thumb, err = p.ffmpeg.VideoThumbnail(ctx, data, ThumbnailWidth, ffmpegJPEGQuality)
	} else {
		thumb, err = ImageThumbnail(data, ThumbnailWidth, thumbnailMaxHeight)
	}
	if err != nil {
		return models.ProcessingOutput{}, fmt.Errorf("generate thumbnail: %w", err)
	}

	key := ThumbnailPath(capture.StoragePath)
	if err := p.store.Put(ctx, key, thumb, "image/jpeg"); err != nil {
		return models.ProcessingOutput{}, fmt.Errorf("store thumbnail: %w", err)
	}

	slog.Info("thumbnail generated", "capture_id", capture.ID, "path", key, "bytes", len(thumb))
	return models.ProcessingOutput{ThumbnailPath: key}, nil
}

func isVideo(capture *models.Capture, data []byte) bool {
	switch capture.MediaType {
	case models.MediaTypeVideo:
		return true
	case models.MediaTypeImage:
		return false
	}
	return filetype.IsVideo(data)
}

// ImageThumbnail scales an image to fit within maxWidth x maxHeight, keeping
// the aspect ratio and never upscaling, and encodes it as JPEG.
func ImageThumbnail(data []byte, maxWidth, maxHeight int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxWidth, maxHeight)
	return encodeScaled(src, w, h)
}

func encodeScaled(src image.Image, width, height int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	scale := 1.0
	if sw := float64(maxWidth) / float64(width); sw < scale {
		scale = sw
	}
	if sh := float64(maxHeight) / float64(height); sh < scale {
		scale = sh
	}

	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	return max(w, 1), max(h, 1)
}
