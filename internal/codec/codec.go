// Package codec wraps the external compression tools. The engine treats
// these as opaque, fallible and potentially slow; everything here works
// on temp files and it's the caller's job to remove outputs it doesn't keep.
package codec

import "context"

// Result points at a finished codec output on the local filesystem
type Result struct {
	Path string
	Size int64
}

// MediaCodec covers the single-pass media types
type MediaCodec interface {
	// CompressImage re-encodes an image at the configured quality.
	// With enhance set, a sharpen/contrast filter chain is applied first.
	CompressImage(ctx context.Context, input string, enhance bool) (Result, error)

	// TranscodeVideo runs a single CRF transcode
	TranscodeVideo(ctx context.Context, input string) (Result, error)

	// TranscodeAudio runs a single fixed-bitrate transcode
	TranscodeAudio(ctx context.Context, input string) (Result, error)
}

// PDFProfile selects how aggressively a re-save trades memory for density
type PDFProfile string

const (
	// PDFDefault is the ordinary structural re-save (pass 1)
	PDFDefault PDFProfile = "default"

	// PDFCompact re-saves with smaller internal batching (pass 2)
	PDFCompact PDFProfile = "compact"

	// PDFDense uses the alternate batching strategy (pass 3)
	PDFDense PDFProfile = "dense"

	// PDFConservative is the plain re-save used as the failure fallback
	PDFConservative PDFProfile = "conservative"
)

// PDFCodec re-serializes PDFs. Gains are unpredictable, which is why
// the engine drives it through multiple passes.
type PDFCodec interface {
	Resave(ctx context.Context, input string, profile PDFProfile) (Result, error)
}
