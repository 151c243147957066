package session

import (
	"strings"
	"time"

	"interview-monitor/pkg/errors"
)

// Mode selects the judgment cadence of a session.
type Mode string

const (
	ModeDemo         Mode = "demo"
	ModeNormal       Mode = "normal"
	ModeConservative Mode = "conservative"
)

var modeIntervals = map[Mode]time.Duration{
	ModeDemo:         500 * time.Millisecond,
	ModeNormal:       10 * time.Second,
	ModeConservative: 20 * time.Second,
}

// Interval returns the judgment tick period for the mode. Unknown modes use normal.
func (m Mode) Interval() time.Duration {
	if d, ok := modeIntervals[m]; ok {
		return d
	}
	return modeIntervals[ModeNormal]
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	_, ok := modeIntervals[m]
	return ok
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a case-insensitive name to a Mode.
func ParseMode(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	if !m.Valid() {
		return "", errors.NewInvalidInput("unknown analysis mode", map[string]interface{}{
			"mode":    name,
			"allowed": []string{string(ModeDemo), string(ModeNormal), string(ModeConservative)},
		})
	}
	return m, nil
}
