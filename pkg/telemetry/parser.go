package telemetry

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
)

const (
	prefixStatus    = "STATUS:"
	prefixDebug     = "DEBUG:"
	prefixResult    = "RESULT:"
	prefixLiveData  = "MAX30102_LIVE_DATA:"
	prefixIRValue   = "MAX30102_IR_VALUE:"
	fingerDetected  = "FINGER_DETECTED"
	fingerRemoved   = "FINGER_REMOVED"
	debugReadingSep = "reading:"
)

// Live block keys that carry text rather than numbers.
var textLiveKeys = map[string]bool{
	"QUALITY": true,
}

var statusSuffixes = []struct {
	suffix string
	event  Event
}{
	{"_MEASUREMENT_COMPLETE", EventMeasurementComplete},
	{"_MEASUREMENT_STARTED", EventMeasurementStarted},
	{"_POWERED_DOWN", EventPoweredDown},
	{"_POWERED_UP", EventPoweredUp},
}

var debugReadingPattern = regexp.MustCompile(`^(.+?)\s+reading:\s*(\S+)`)

// Parse classifies one trimmed line. Lines whose numeric payload does not
// parse yield an ErrParseIgnored error; callers drop them.
func Parse(line string, receivedAt time.Time) (Message, error) {
	msg := Message{Raw: line, ReceivedAt: receivedAt}

	switch {
	case strings.HasPrefix(line, prefixStatus):
		msg.Kind = KindStatus
		msg.Status = parseStatus(strings.TrimSpace(line[len(prefixStatus):]))
		return msg, nil

	case strings.HasPrefix(line, prefixDebug):
		body := strings.TrimSpace(line[len(prefixDebug):])
		if !strings.Contains(body, debugReadingSep) {
			msg.Kind = KindDebugText
			return msg, nil
		}
		match := debugReadingPattern.FindStringSubmatch(body)
		if match == nil {
			return msg, parseIgnored(line)
		}
		value, err := parseNumber(match[2])
		if err != nil {
			return msg, parseIgnored(line)
		}
		msg.Kind = KindDebug
		msg.Debug = &Debug{Label: strings.TrimSpace(match[1]), Value: value}
		return msg, nil

	case strings.HasPrefix(line, prefixResult):
		tag, payload, ok := strings.Cut(line[len(prefixResult):], ":")
		if !ok {
			return msg, parseIgnored(line)
		}
		value, err := parseNumber(strings.TrimSpace(payload))
		if err != nil {
			return msg, parseIgnored(line)
		}
		msg.Kind = KindResult
		msg.Result = &Result{Tag: strings.ToUpper(strings.TrimSpace(tag)), Value: value}
		return msg, nil

	case strings.HasPrefix(line, prefixLiveData):
		block, ok := parseLiveBlock(line[len(prefixLiveData):])
		if !ok {
			return msg, parseIgnored(line)
		}
		msg.Kind = KindLiveBlock
		msg.LiveBlock = block
		return msg, nil

	case strings.HasPrefix(line, prefixIRValue):
		value, err := strconv.ParseInt(strings.TrimSpace(line[len(prefixIRValue):]), 10, 64)
		if err != nil {
			return msg, parseIgnored(line)
		}
		msg.Kind = KindIRValue
		msg.IRValue = value
		return msg, nil

	case strings.HasPrefix(line, fingerDetected):
		msg.Kind = KindPresence
		msg.FingerPresent = true
		return msg, nil

	case strings.HasPrefix(line, fingerRemoved):
		msg.Kind = KindPresence
		msg.FingerPresent = false
		return msg, nil
	}

	msg.Kind = KindUnknown
	return msg, nil
}

func parseStatus(name string) *Status {
	status := &Status{Name: name, Subject: name, Event: EventOther}
	for _, s := range statusSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			status.Subject = strings.TrimSuffix(name, s.suffix)
			status.Event = s.event
			break
		}
	}
	return status
}

// parseLiveBlock parses "HR=72,SPO2=98,QUALITY=GOOD". Any numeric key that
// fails to parse rejects the whole block.
func parseLiveBlock(body string) (*LiveBlock, bool) {
	block := &LiveBlock{
		Values: make(map[string]float64),
		Text:   make(map[string]string),
	}
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, false
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if textLiveKeys[key] {
			block.Text[key] = value
			continue
		}
		number, err := parseNumber(value)
		if err != nil {
			return nil, false
		}
		block.Values[key] = number
	}
	if len(block.Values) == 0 && len(block.Text) == 0 {
		return nil, false
	}
	return block, true
}

// parseNumber rejects the "nan"/"inf" Arduino prints for failed sensor reads.
func parseNumber(s string) (float64, error) {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}

func parseIgnored(line string) error {
	return errors.New().WithData(errors.ErrParseIgnored, line)
}
