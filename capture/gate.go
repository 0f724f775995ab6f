// Package capture decides which camera frames of a pallet ticket are worth
// sending to OCR, and hands accepted frames to the ingestion service.
package capture

import (
	"errors"
	"sync"
	"time"
)

var errInvalidFrame = errors.New("frame buffer does not match its dimensions")

// Frame is an RGBA pixel buffer, four bytes per pixel, row-major.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

func (f *Frame) gray(x, y int) float64 {
	i := (y*f.Width + x) * 4
	return (float64(f.Pix[i]) + float64(f.Pix[i+1]) + float64(f.Pix[i+2])) / 3
}

// Sharpness is the variance of the absolute horizontal Laplacian sampled on
// a 10 pixel grid. Blurry or featureless frames score near zero.
func Sharpness(f *Frame) float64 {
	var laps []float64
	for y := 1; y < f.Height-1; y += 10 {
		for x := 1; x < f.Width-1; x += 10 {
			lap := f.gray(x+1, y) + f.gray(x-1, y) - 2*f.gray(x, y)
			if lap < 0 {
				lap = -lap
			}
			laps = append(laps, lap)
		}
	}
	if len(laps) == 0 {
		return 0
	}

	var mean float64
	for _, l := range laps {
		mean += l
	}
	mean /= float64(len(laps))

	var variance float64
	for _, l := range laps {
		variance += (l - mean) * (l - mean)
	}
	return variance / float64(len(laps))
}

// TextDensity is the fraction of points on a 5 pixel grid whose gray level
// differs from the next column by more than delta.
func TextDensity(f *Frame, delta float64) float64 {
	var edges, total int
	for y := 2; y < f.Height-2; y += 5 {
		for x := 2; x < f.Width-2; x += 5 {
			d := f.gray(x, y) - f.gray(x+1, y)
			if d > delta || -d > delta {
				edges++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(edges) / float64(total)
}

// Hash is a cheap fingerprint over every 40th byte of the buffer.
func Hash(f *Frame) int32 {
	var h int32
	for i := 0; i < len(f.Pix); i += 40 {
		h = h*31 + int32(f.Pix[i])
	}
	return h
}

// Decision is the outcome of evaluating a frame.
type Decision string

const (
	DecisionCapture   Decision = "capture"
	DecisionBlurry    Decision = "blurry"
	DecisionNoText    Decision = "no-text"
	DecisionDuplicate Decision = "duplicate"
	DecisionCooldown  Decision = "cooldown"
	DecisionBusy      Decision = "busy"
)

// GateConfig holds the acceptance thresholds.
type GateConfig struct {
	SharpnessThreshold float64
	TextDensityMin     float64
	EdgeDelta          float64
	Cooldown           time.Duration
}

// DefaultGateConfig returns the thresholds used on the operator capture page.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SharpnessThreshold: 50,
		TextDensityMin:     0.1,
		EdgeDelta:          30,
		Cooldown:           30 * time.Second,
	}
}

// Evaluation reports the scores behind a decision.
type Evaluation struct {
	Decision    Decision `json:"decision"`
	Sharpness   float64  `json:"sharpness"`
	TextDensity float64  `json:"textDensity"`
	Hash        int32    `json:"hash"`
}

// Gate applies sharpness, text density, duplicate and cooldown checks in
// that order, stopping at the first failure. Only accepted frames move the
// last-hash and last-accepted markers.
type Gate struct {
	config GateConfig
	now    func() time.Time

	mu           sync.Mutex
	lastHash     int32
	hasLast      bool
	lastAccepted time.Time
}

func NewGate(cfg GateConfig) *Gate {
	return &Gate{config: cfg, now: time.Now}
}

func (g *Gate) Evaluate(f *Frame) Evaluation {
	ev := Evaluation{Sharpness: Sharpness(f)}
	if ev.Sharpness < g.config.SharpnessThreshold {
		ev.Decision = DecisionBlurry
		return ev
	}

	ev.TextDensity = TextDensity(f, g.config.EdgeDelta)
	if ev.TextDensity < g.config.TextDensityMin {
		ev.Decision = DecisionNoText
		return ev
	}

	ev.Hash = Hash(f)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasLast && ev.Hash == g.lastHash {
		ev.Decision = DecisionDuplicate
		return ev
	}
	now := g.now()
	if !g.lastAccepted.IsZero() && now.Sub(g.lastAccepted) < g.config.Cooldown {
		ev.Decision = DecisionCooldown
		return ev
	}

	g.lastHash = ev.Hash
	g.hasLast = true
	g.lastAccepted = now
	ev.Decision = DecisionCapture
	return ev
}

// Reset forgets the last accepted frame.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hasLast = false
	g.lastHash = 0
	g.lastAccepted = time.Time{}
}

// Validate checks the buffer holds Width*Height RGBA pixels.
func (f *Frame) Validate() error {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return errInvalidFrame
	}
	if len(f.Pix) < f.Width*f.Height*4 {
		return errInvalidFrame
	}
	return nil
}
