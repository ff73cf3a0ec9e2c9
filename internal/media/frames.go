package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path"

	"github.com/corona10/goimagehash"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/storage"
)

const (
	FrameWidth  = 960
	FrameHeight = 540
	// Consecutive frames within this hamming distance are treated as the
	// same screen and only the first is kept.
	frameDistanceThreshold = 10
)

var ErrNoFrames = errors.New("no frames extracted")

type FrameEntry struct {
	Index         int     `json:"index"`
	Filename      string  `json:"filename"`
	TimestampSecs float64 `json:"timestamp_secs"`
	Hash          string  `json:"phash"`
}

type FrameManifest struct {
	CaptureID    int64        `json:"capture_id"`
	MediaType    string       `json:"media_type"`
	FrameCount   int          `json:"frame_count"`
	DurationSecs *float64     `json:"duration_secs"`
	Frames       []FrameEntry `json:"frames"`
}

type hashFunc func(image.Image) (*goimagehash.ImageHash, error)

// frameDeduper drops frames that look like the previously kept one.
type frameDeduper struct {
	hash      hashFunc
	threshold int
	last      *goimagehash.ImageHash
}

func newFrameDeduper() *frameDeduper {
	return &frameDeduper{hash: goimagehash.AverageHash, threshold: frameDistanceThreshold}
}

func (d *frameDeduper) keep(img image.Image) (*goimagehash.ImageHash, bool, error) {
	h, err := d.hash(img)
	if err != nil {
		return nil, false, err
	}
	if d.last != nil {
		dist, err := d.last.Distance(h)
		if err != nil {
			return nil, false, err
		}
		if dist <= d.threshold {
			return h, false, nil
		}
	}
	d.last = h
	return h, true, nil
}

type FrameProcessor struct {
	store  storage.ObjectStorage
	ffmpeg *FFmpeg
}

func NewFrameProcessor(store storage.ObjectStorage, ffmpeg *FFmpeg) *FrameProcessor {
	return &FrameProcessor{store: store, ffmpeg: ffmpeg}
}

func (p *FrameProcessor) Process(ctx context.Context, capture *models.Capture, data []byte) (models.ProcessingOutput, error) {
	dir := FramesDir(capture.StoragePath)

	var manifest *FrameManifest
	var err error
	if isVideo(capture, data) {
		manifest, err = p.videoFrames(ctx, dir, data)
	} else {
		manifest, err = p.imageFrame(ctx, dir, data)
	}
	if err != nil {
		return models.ProcessingOutput{}, err
	}
	if manifest.FrameCount == 0 {
		return models.ProcessingOutput{}, ErrNoFrames
	}
	manifest.CaptureID = capture.ID

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return models.ProcessingOutput{}, err
	}
	if err := p.store.Put(ctx, ManifestPath(dir), body, "application/json"); err != nil {
		return models.ProcessingOutput{}, fmt.Errorf("store manifest: %w", err)
	}

	slog.Info("frames extracted", "capture_id", capture.ID, "dir", dir, "frames", manifest.FrameCount)
	return models.ProcessingOutput{FrameCount: manifest.FrameCount}, nil
}

func (p *FrameProcessor) videoFrames(ctx context.Context, dir string, data []byte) (*FrameManifest, error) {
	files, duration, cleanup, err := p.ffmpeg.SampleFrames(ctx, data, FrameWidth, FrameHeight)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	manifest := &FrameManifest{MediaType: models.MediaTypeVideo, DurationSecs: duration}
	dedup := newFrameDeduper()

	// One frame in memory at a time.
	for i, file := range files {
		frame, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(frame))
		if err != nil {
			slog.Info("skipping undecodable frame", "index", i, "error", err)
			continue
		}

		h, kept, err := dedup.keep(img)
		if err != nil {
			return nil, fmt.Errorf("hash frame %d: %w", i, err)
		}
		if !kept {
			continue
		}

		name := FrameName(manifest.FrameCount)
		if err := p.store.Put(ctx, path.Join(dir, name), frame, "image/jpeg"); err != nil {
			return nil, fmt.Errorf("store frame %d: %w", i, err)
		}
		manifest.Frames = append(manifest.Frames, FrameEntry{
			Index:         manifest.FrameCount,
			Filename:      name,
			TimestampSecs: float64(i),
			Hash:          h.ToString(),
		})
		manifest.FrameCount++
	}
	return manifest, nil
}

func (p *FrameProcessor) imageFrame(ctx context.Context, dir string, data []byte) (*FrameManifest, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	frame, err := encodeScaled(src, FrameWidth, FrameHeight)
	if err != nil {
		return nil, err
	}
	scaled, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	h, err := goimagehash.AverageHash(scaled)
	if err != nil {
		return nil, fmt.Errorf("hash frame: %w", err)
	}

	name := FrameName(0)
	if err := p.store.Put(ctx, path.Join(dir, name), frame, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("store frame: %w", err)
	}

	return &FrameManifest{
		MediaType:  models.MediaTypeImage,
		FrameCount: 1,
		Frames: []FrameEntry{
			{Index: 0, Filename: name, TimestampSecs: 0, Hash: h.ToString()},
		},
	}, nil
}
