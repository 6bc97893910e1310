package bpdecoder

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
)

var errFactory = errors.New()

// Decoder turns per-frame glyph lists from the blood pressure monitor's
// display into one smoothed reading. Process may be called from the capture
// goroutine while Status is polled from others.
type Decoder struct {
	opts Options

	mu          sync.Mutex
	history     *history
	previous    int
	trend       Trend
	stableCount int
	status      Reading
	lastLogged  string
	onChange    func(Reading)
}

func NewDecoder(opts Options) *Decoder {
	defaults := DefaultOptions()
	if opts.RowSpreadThreshold <= 0 {
		opts.RowSpreadThreshold = defaults.RowSpreadThreshold
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaults.HistorySize
	}
	if opts.StableFrames <= 0 {
		opts.StableFrames = defaults.StableFrames
	}
	if opts.DeadBand < 0 {
		opts.DeadBand = 0
	}

	return &Decoder{
		opts:    opts,
		history: newHistory(opts.HistorySize),
	}
}

// OnChange registers fn to be called whenever the decoded reading changes.
// fn runs outside the decoder lock.
func (d *Decoder) OnChange(fn func(Reading)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Process decodes one frame. Frames that carry nothing usable return
// ErrParseIgnored and frames below the noise floor ErrNoiseRejected; in
// both cases the status is left as it was.
func (d *Decoder) Process(glyphs []Glyph) (Reading, error) {
	d.mu.Lock()
	next, err := d.decodeLocked(glyphs, time.Now())
	if err != nil {
		current := d.status
		d.mu.Unlock()
		return current, err
	}

	d.status = next
	formatted := next.String()
	changed := formatted != d.lastLogged
	if changed {
		d.lastLogged = formatted
	}
	onChange := d.onChange
	d.mu.Unlock()

	if changed {
		logger.Debug().
			Str("systolic", next.Systolic).
			Str("diastolic", next.Diastolic).
			Str("trend", next.Trend.String()).
			Msg("Blood pressure reading changed")
		if onChange != nil {
			onChange(next)
		}
	}
	return next, nil
}

// Status returns a copy of the latest reading.
func (d *Decoder) Status() Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// History returns the current smoothing window, oldest first.
func (d *Decoder) History() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.snapshot()
}

// Reset forgets all frames. Used between patients.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history.clear()
	d.previous = 0
	d.trend = TrendStable
	d.stableCount = 0
	d.status = Reading{}
	d.lastLogged = ""
}

// Run decodes frames until ctx ends or frames is closed.
func (d *Decoder) Run(ctx context.Context, frames <-chan []Glyph) {
	for {
		select {
		case <-ctx.Done():
			return
		case glyphs, ok := <-frames:
			if !ok {
				return
			}
			if _, err := d.Process(glyphs); err != nil {
				logger.Debug().Err(err).Int("glyphs", len(glyphs)).Msg("Frame skipped")
			}
		}
	}
}

func (d *Decoder) decodeLocked(glyphs []Glyph, now time.Time) (Reading, error) {
	for _, g := range glyphs {
		if strings.EqualFold(g.Value, GlyphError) {
			return Reading{
				Systolic:  "--",
				Diastolic: "--",
				Trend:     TrendError,
				Error:     true,
				UpdatedAt: now,
			}, nil
		}
	}

	digits := make([]Glyph, 0, len(glyphs))
	for _, g := range glyphs {
		if isDigit(g.Value) {
			digits = append(digits, g)
		}
	}
	if len(digits) == 0 {
		return Reading{}, errFactory.WithData(errors.ErrParseIgnored, "frame has no digits")
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, g := range digits {
		minY = math.Min(minY, g.CenterY)
		maxY = math.Max(maxY, g.CenterY)
	}

	if maxY-minY >= d.opts.RowSpreadThreshold {
		return d.decodePair(digits, (minY+maxY)/2, now), nil
	}
	return d.decodeRunning(digits, now)
}

// decodePair reads the final result the monitor shows as two stacked rows.
func (d *Decoder) decodePair(digits []Glyph, midY float64, now time.Time) Reading {
	var top, bottom []Glyph
	for _, g := range digits {
		if g.CenterY < midY {
			top = append(top, g)
		} else {
			bottom = append(bottom, g)
		}
	}

	return Reading{
		Systolic:  concatDigits(top),
		Diastolic: concatDigits(bottom),
		Trend:     TrendDeflating,
		UpdatedAt: now,
	}
}

// decodeRunning reads the single pressure number shown while the cuff
// inflates or deflates.
func (d *Decoder) decodeRunning(digits []Glyph, now time.Time) (Reading, error) {
	text := concatDigits(digits)
	candidate, err := strconv.Atoi(text)
	if err != nil {
		return Reading{}, errFactory.Wrap(errors.ErrParseIgnored, err).WithData(text)
	}

	smoothed := d.history.medianWith(candidate)

	if smoothed < d.opts.LeadingDigitFloor && d.previous > d.opts.LeadingDigitFloor {
		smoothed = d.previous
	}
	// A rejected frame leaves the window untouched
	if smoothed < d.opts.NoiseFloor {
		return Reading{}, errFactory.WithData(errors.ErrNoiseRejected, smoothed)
	}
	d.history.push(candidate)

	switch delta := smoothed - d.previous; {
	case delta > d.opts.DeadBand:
		d.trend = TrendInflating
		d.stableCount = 0
	case delta < -d.opts.DeadBand:
		d.trend = TrendDeflating
		d.stableCount = 0
	default:
		d.stableCount++
		if d.stableCount >= d.opts.StableFrames {
			d.trend = TrendStable
		}
	}
	d.previous = smoothed

	return Reading{
		Systolic:  strconv.Itoa(smoothed),
		Trend:     d.trend,
		UpdatedAt: now,
	}, nil
}

func concatDigits(glyphs []Glyph) string {
	sorted := append([]Glyph(nil), glyphs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CenterX < sorted[j].CenterX
	})

	var b strings.Builder
	for _, g := range sorted {
		b.WriteString(g.Value)
	}
	return b.String()
}

func isDigit(value string) bool {
	return len(value) == 1 && value[0] >= '0' && value[0] <= '9'
}
