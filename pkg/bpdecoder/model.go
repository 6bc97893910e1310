package bpdecoder

import (
	"fmt"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/config"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
)

// GlyphError is the label the detector gives an error indicator on the
// monitor display.
const GlyphError = "error"

// Glyph is one detected symbol in a video frame.
type Glyph struct {
	Value   string  `json:"value"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
}

type Trend int

const (
	TrendStable Trend = iota
	TrendInflating
	TrendDeflating
	TrendError
)

func (t Trend) String() string {
	switch t {
	case TrendInflating:
		return "Inflating"
	case TrendDeflating:
		return "Deflating"
	case TrendError:
		return "Error"
	default:
		return "Stable"
	}
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trend) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Stable":
		*t = TrendStable
	case "Inflating":
		*t = TrendInflating
	case "Deflating":
		*t = TrendDeflating
	case "Error":
		*t = TrendError
	default:
		return errFactory.WithData(errors.ErrInvalidArgument, "unknown trend "+string(text))
	}
	return nil
}

// Reading is the decoded monitor display. Diastolic is empty while the cuff
// is still moving and only one number is shown.
type Reading struct {
	Systolic  string    `json:"systolic"`
	Diastolic string    `json:"diastolic"`
	Trend     Trend     `json:"trend"`
	Error     bool      `json:"error"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Paired reports whether the reading is a final systolic/diastolic pair.
func (r Reading) Paired() bool {
	return r.Systolic != "" && r.Diastolic != "" && !r.Error
}

func (r Reading) String() string {
	return fmt.Sprintf("%s/%s %s", r.Systolic, r.Diastolic, r.Trend)
}

type Options struct {
	// Vertical pixel spread at which glyphs are treated as two rows
	RowSpreadThreshold float64
	HistorySize        int
	// Smoothed values below this are detector noise
	NoiseFloor int
	// A value below this right after one above it lost its leading digit
	LeadingDigitFloor int
	StableFrames      int
	DeadBand          int
}

func DefaultOptions() Options {
	return Options{
		RowSpreadThreshold: 50,
		HistorySize:        5,
		NoiseFloor:         5,
		LeadingDigitFloor:  10,
		StableFrames:       4,
		DeadBand:           1,
	}
}

func OptionsFromConfig(cfg config.BPConfig) Options {
	return Options{
		RowSpreadThreshold: cfg.RowSpreadThreshold,
		HistorySize:        cfg.HistorySize,
		NoiseFloor:         cfg.NoiseFloor,
		LeadingDigitFloor:  cfg.LeadingDigitFloor,
		StableFrames:       cfg.StableFrames,
		DeadBand:           cfg.DeadBand,
	}
}
