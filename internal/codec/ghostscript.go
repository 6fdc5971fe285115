package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"filecrush/compressd/pkg/apperr"
)

// Ghostscript re-serializes PDFs through the pdfwrite device. The
// profile controls the downsampling preset and the band buffer size,
// which is the knob that trades memory for stream density.
type Ghostscript struct {
	Path string
}

func NewGhostscript() (*Ghostscript, error) {
	p := viper.GetString("codec.ghostscript_path")
	if p == "" {
		p = "gs"
	}

	resolved, err := exec.LookPath(p)
	if err != nil {
		return nil, fmt.Errorf("ghostscript binary not found at %q, %w", p, err)
	}

	return &Ghostscript{Path: resolved}, nil
}

func (g *Ghostscript) Resave(ctx context.Context, input string, profile PDFProfile) (Result, error) {
	out := tempOut(".pdf")

	args := []string{
		"-q", "-dNOPAUSE", "-dBATCH", "-dSAFER",
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
	}

	switch profile {
	case PDFCompact:
		args = append(args, "-dPDFSETTINGS=/ebook", "-dBufferSpace=64000000")
	case PDFDense:
		args = append(args, "-dPDFSETTINGS=/screen", "-dBufferSpace=16000000", "-dNumRenderingThreads=1")
	case PDFConservative:
		// plain re-save, no preset
	default:
		args = append(args, "-dPDFSETTINGS=/printer")
	}

	args = append(args, "-sOutputFile="+out, input)

	cmd := exec.CommandContext(ctx, g.Path, args...)

	zap.L().Debug("Running Ghostscript command", zap.String("cmd", cmd.String()))

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		os.Remove(out)

		zap.L().Error("Ghostscript failed",
			zap.String("profile", string(profile)),
			zap.Error(err),
			zap.String("stderr", stderr.String()))
		return Result{}, apperr.Codec("pdf re-save failed", fmt.Errorf("%w: %s", err, stderr.String()))
	}

	stat, err := os.Stat(out)
	if err != nil {
		return Result{}, apperr.Codec("ghostscript produced no output", err)
	}

	return Result{Path: out, Size: stat.Size()}, nil
}
