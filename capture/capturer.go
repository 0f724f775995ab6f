package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/pkg/metrics"
)

// Result is the explicit outcome of processing one frame.
type Result struct {
	Evaluation
	Receipt *Receipt `json:"receipt,omitempty"`
	Err     error    `json:"-"`
}

// Capturer runs frames through the gate and submits accepted ones. Frames
// arriving while a submission is in flight are skipped as busy.
type Capturer struct {
	gate      *Gate
	submitter Submitter
	busy      atomic.Bool
}

func NewCapturer(gate *Gate, submitter Submitter) *Capturer {
	return &Capturer{gate: gate, submitter: submitter}
}

func (c *Capturer) Process(ctx context.Context, f *Frame) Result {
	if err := f.Validate(); err != nil {
		return Result{Err: err}
	}
	if !c.busy.CompareAndSwap(false, true) {
		metrics.CaptureDecisions.WithLabelValues(string(DecisionBusy)).Inc()
		return Result{Evaluation: Evaluation{Decision: DecisionBusy}}
	}
	defer c.busy.Store(false)

	ev := c.gate.Evaluate(f)
	metrics.CaptureDecisions.WithLabelValues(string(ev.Decision)).Inc()
	if ev.Decision != DecisionCapture {
		logger.Debug(ctx, "frame skipped", "decision", ev.Decision, "sharpness", ev.Sharpness, "text_density", ev.TextDensity)
		return Result{Evaluation: ev}
	}

	image, err := f.DataURI()
	if err != nil {
		return Result{Evaluation: ev, Err: err}
	}

	receipt, err := c.submitter.Submit(ctx, Submission{
		Image:     image,
		Timestamp: time.Now().UTC(),
		FrameHash: FormatHash(ev.Hash),
	})
	if err != nil {
		logger.Warn(ctx, "ticket submission failed", "error", err, "frame_hash", ev.Hash)
		return Result{Evaluation: ev, Receipt: receipt, Err: err}
	}
	logger.Info(ctx, "ticket submitted", "record_id", receipt.RecordID, "frame_hash", ev.Hash)
	return Result{Evaluation: ev, Receipt: receipt}
}
