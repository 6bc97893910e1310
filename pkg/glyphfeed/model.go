package glyphfeed

import (
	"encoding/json"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
)

// Frame is one message from the vision process: every glyph detected in a
// single video frame.
type Frame struct {
	Glyphs []bpdecoder.Glyph `json:"glyphs"`
}

func FrameFromJsonBytes(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, errors.New().Wrap(errors.ErrParseIgnored, err)
	}
	return &frame, nil
}

func (f *Frame) ToJsonBytes() []byte {
	data, _ := json.Marshal(f)
	return data
}

type Options struct {
	// host:port of the vision process
	Host           string
	Path           string
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// Frames arrive many times a second; silence this long means the
	// connection is dead
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

func DefaultOptions(host string) Options {
	return Options{
		Host:           host,
		Path:           "/ws",
		MaxRetries:     10,
		BaseRetryDelay: 2 * time.Second,
		MaxRetryDelay:  60 * time.Second,
		ReadTimeout:    10 * time.Second,
		PingInterval:   30 * time.Second,
	}
}
