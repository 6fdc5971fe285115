package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strconv"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"filecrush/compressd/pkg/apperr"
	"filecrush/compressd/pkg/util"
)

// FFmpeg shells out to ffmpeg for image, video and audio work
type FFmpeg struct {
	Path         string
	ImageQuality int
	VideoCRF     int
	VideoPreset  string
	AudioBitrate string
}

func NewFFmpeg() (*FFmpeg, error) {
	p := viper.GetString("codec.ffmpeg_path")
	if p == "" {
		p = "ffmpeg"
	}

	resolved, err := exec.LookPath(p)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found at %q, %w", p, err)
	}

	return &FFmpeg{
		Path:         resolved,
		ImageQuality: viper.GetInt("codec.image_quality"),
		VideoCRF:     viper.GetInt("codec.video_crf"),
		VideoPreset:  viper.GetString("codec.video_preset"),
		AudioBitrate: viper.GetString("codec.audio_bitrate"),
	}, nil
}

func (f *FFmpeg) CompressImage(ctx context.Context, input string, enhance bool) (Result, error) {
	out := tempOut(".jpg")

	args := []string{"-i", input}
	if enhance {
		args = append(args, "-vf", "unsharp=5:5:0.8:5:5:0.4,eq=contrast=1.05:gamma=1.02")
	}
	args = append(args, "-q:v", strconv.Itoa(f.ImageQuality), out)

	return f.run(ctx, args, out)
}

func (f *FFmpeg) TranscodeVideo(ctx context.Context, input string) (Result, error) {
	out := tempOut(".mp4")

	args := []string{
		"-i", input,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(f.VideoCRF),
		"-preset", f.VideoPreset,
		"-c:a", "copy",
		"-movflags", "+faststart",
		out,
	}

	return f.run(ctx, args, out)
}

func (f *FFmpeg) TranscodeAudio(ctx context.Context, input string) (Result, error) {
	out := tempOut(".m4a")

	args := []string{
		"-i", input,
		"-vn",
		"-c:a", "aac",
		"-b:a", f.AudioBitrate,
		out,
	}

	return f.run(ctx, args, out)
}

func (f *FFmpeg) run(ctx context.Context, args []string, out string) (Result, error) {
	args = append([]string{"-y", "-loglevel", "error", "-nostats"}, args...)

	cmd := exec.CommandContext(ctx, f.Path, args...)

	zap.L().Debug("Running FFmpeg command", zap.String("cmd", cmd.String()))

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		os.Remove(out)

		zap.L().Error("FFmpeg failed", zap.Error(err), zap.String("stderr", stderr.String()))
		return Result{}, apperr.Codec("ffmpeg failed", fmt.Errorf("%w: %s", err, stderr.String()))
	}

	stat, err := os.Stat(out)
	if err != nil {
		return Result{}, apperr.Codec("ffmpeg produced no output", err)
	}

	return Result{Path: out, Size: stat.Size()}, nil
}

func tempOut(ext string) string {
	return path.Join(os.TempDir(), "compressd-"+util.RandStr(10)+ext)
}
