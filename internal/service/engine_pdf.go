package service

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"filecrush/compressd/internal/codec"
)

// Pass thresholds. Generic PDF re-serialization yields unpredictable
// gains, so weak first passes earn additional attempts on inputs large
// enough to be worth the extra work.
const (
	pdfPass2MinSize = 500 << 10
	pdfPass3MinSize = 1 << 20

	pdfPass2MaxRatio = 0.15
	pdfPass3MaxRatio = 0.10
)

// processPDF runs the adaptive multi-pass re-save. Pass 1 always runs;
// passes 2 and 3 only when the gain so far is weak and the input is big
// enough, and both share a wall-clock budget. Running out of budget
// short-circuits to the best result so far, it is not a failure.
func (e *Engine) processPDF(ctx context.Context, id string, in Input) (codec.Result, error) {
	best, err := e.resave(ctx, id, in.Path, codec.PDFDefault)
	if err != nil {
		// pass 1 failed outright: one conservative attempt, then give up.
		// Nothing partial is ever persisted from here.
		zap.L().Warn("PDF pass 1 failed, trying conservative re-save", zap.String("id", id), zap.Error(err))

		best, err = e.resave(ctx, id, in.Path, codec.PDFConservative)
		if err != nil {
			return codec.Result{}, err
		}

		return best, nil
	}

	if !(reduction(in.Size, best.Size) < pdfPass2MaxRatio && in.Size > pdfPass2MinSize) {
		return best, nil
	}

	budget, cancel := context.WithTimeout(ctx, e.PDFBudget)
	defer cancel()

	res, err := e.resave(budget, id, in.Path, codec.PDFCompact)
	switch {
	case budgetExceeded(budget, err):
		zap.L().Info("PDF pass budget exceeded after pass 2, keeping best result", zap.String("id", id))
		return best, nil
	case err != nil:
		// recovered locally: the earlier successful pass stands
		zap.L().Warn("PDF pass 2 failed, keeping pass 1 result", zap.String("id", id), zap.Error(err))
	default:
		best = keepSmallerPDF(best, res)
	}

	if !(reduction(in.Size, best.Size) < pdfPass3MaxRatio && in.Size > pdfPass3MinSize) {
		return best, nil
	}

	res, err = e.resave(budget, id, in.Path, codec.PDFDense)
	switch {
	case budgetExceeded(budget, err):
		zap.L().Info("PDF pass budget exceeded after pass 3, keeping best result", zap.String("id", id))
	case err != nil:
		zap.L().Warn("PDF pass 3 failed, keeping best result so far", zap.String("id", id), zap.Error(err))
	default:
		best = keepSmallerPDF(best, res)
	}

	return best, nil
}

func (e *Engine) resave(ctx context.Context, id, input string, profile codec.PDFProfile) (codec.Result, error) {
	return e.runCodec(ctx, id, func(ctx context.Context) (codec.Result, error) {
		return e.PDF.Resave(ctx, input, profile)
	})
}

// reduction is the fraction of bytes removed relative to the original
func reduction(orig, compressed int64) float64 {
	if orig <= 0 {
		return 0
	}

	return float64(orig-compressed) / float64(orig)
}

// budgetExceeded distinguishes "the shared pass budget ran out" from a
// genuine codec failure. The caller's own context expiring still counts
// as a real error.
func budgetExceeded(budget context.Context, err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(budget.Err(), context.DeadlineExceeded)
}

// keepSmallerPDF keeps the smaller of two pass outputs. Ties keep the
// earlier pass: same bytes for more work is not a win.
func keepSmallerPDF(a, b codec.Result) codec.Result {
	if b.Size < a.Size {
		os.Remove(a.Path)
		return b
	}

	os.Remove(b.Path)
	return a
}
