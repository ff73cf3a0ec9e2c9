package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FFmpeg shells out to the ffmpeg and ffprobe binaries. Inputs are written to
// a scratch directory because most capture containers are not seekable from
// a pipe.
type FFmpeg struct {
	Binary      string
	ProbeBinary string
	Threads     int
}

func NewFFmpeg(binary, probeBinary string, threads int) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if probeBinary == "" {
		probeBinary = "ffprobe"
	}
	if threads <= 0 {
		threads = 1
	}
	return &FFmpeg{Binary: binary, ProbeBinary: probeBinary, Threads: threads}
}

func (f *FFmpeg) baseArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-threads", strconv.Itoa(f.Threads),
	}
}

func (f *FFmpeg) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, f.Binary, append(f.baseArgs(), args...)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", op, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// scratch writes data into a fresh temp dir and returns the input path and a
// cleanup func.
func scratch(data []byte, inputName string) (string, string, func(), error) {
	dir, err := os.MkdirTemp("", "screenpost-media-")
	if err != nil {
		return "", "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	input := filepath.Join(dir, inputName)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		cleanup()
		return "", "", nil, fmt.Errorf("write scratch input: %w", err)
	}
	return dir, input, cleanup, nil
}

// VideoThumbnail grabs the frame at one second, falling back to the first
// frame for clips shorter than that.
func (f *FFmpeg) VideoThumbnail(ctx context.Context, data []byte, width, quality int) ([]byte, error) {
	dir, input, cleanup, err := scratch(data, "input")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	output := filepath.Join(dir, "thumb.jpg")
	frameArgs := []string{
		"-an", "-sn",
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", width),
		"-q:v", strconv.Itoa(quality),
		"-y", output,
	}

	seekErr := f.run(ctx, "thumbnail", append([]string{"-ss", "00:00:01", "-i", input}, frameArgs...)...)
	if seekErr != nil || !exists(output) {
		if err := f.run(ctx, "thumbnail", append([]string{"-i", input}, frameArgs...)...); err != nil {
			return nil, err
		}
	}

	return os.ReadFile(output)
}

// Duration reads the container duration in seconds.
func (f *FFmpeg) Duration(ctx context.Context, input string) (float64, bool) {
	cmd := exec.CommandContext(ctx, f.ProbeBinary, //nolint:gosec
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// SampleFrames writes one frame per second, scaled to width x height, and
// returns the frame files in timestamp order plus the container duration.
func (f *FFmpeg) SampleFrames(ctx context.Context, data []byte, width, height int) (files []string, duration *float64, cleanup func(), err error) {
	dir, input, cleanup, err := scratch(data, "input")
	if err != nil {
		return nil, nil, nil, err
	}

	if d, ok := f.Duration(ctx, input); ok {
		duration = &d
	}

	err = f.run(ctx, "sample frames",
		"-i", input,
		"-an", "-sn",
		"-vf", fmt.Sprintf("fps=1,scale=%d:%d", width, height),
		"-q:v", "4",
		"-y", filepath.Join(dir, "frame_%04d.jpg"),
	)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	files, err = filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	sort.Strings(files)
	return files, duration, cleanup, nil
}

// Cut re-encodes the [start, start+duration) window of a video as MP4. A zero
// duration keeps everything after start.
func (f *FFmpeg) Cut(ctx context.Context, data []byte, startSecs, durationSecs float64) ([]byte, error) {
	dir, input, cleanup, err := scratch(data, "input")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	output := filepath.Join(dir, "clip.mp4")
	args := []string{}
	if startSecs > 0 {
		args = append(args, "-ss", strconv.FormatFloat(startSecs, 'f', 3, 64))
	}
	args = append(args, "-i", input)
	if durationSecs > 0 {
		args = append(args, "-t", strconv.FormatFloat(durationSecs, 'f', 3, 64))
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y", output,
	)

	if err := f.run(ctx, "cut", args...); err != nil {
		return nil, err
	}
	return os.ReadFile(output)
}

func exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Size() > 0
}
