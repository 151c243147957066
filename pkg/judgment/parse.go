package judgment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"interview-monitor/pkg/errors"
)

// Observation is one event reported by the judgment service
type Observation struct {
	// Timestamp is whatever the model wrote. It is kept for reference only;
	// timeline labels come from the session clock.
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	Dangerous   bool   `json:"isDangerous"`
}

type reply struct {
	Events []Observation `json:"events"`
}

// ParseError is returned when a reply contains no extractable JSON object
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", errors.ErrResponseParse.Error(), e.Err)
	}
	return errors.ErrResponseParse.Error()
}

func (e *ParseError) Unwrap() error {
	return errors.ErrResponseParse
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// ParseResponse extracts observations from free-form model output. It tries
// fenced code blocks first, then the first object embedded in the prose.
func ParseResponse(text string) ([]Observation, error) {
	var lastErr error

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		events, err := decode(m[1])
		if err == nil {
			return events, nil
		}
		lastErr = err
	}

	if start := strings.Index(text, "{"); start >= 0 {
		events, err := decodeLeading(text[start:])
		if err == nil {
			return events, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON object found")
	}
	return nil, &ParseError{Raw: text, Err: lastErr}
}

func decode(candidate string) ([]Observation, error) {
	candidate = strings.TrimSpace(candidate)
	if !strings.HasPrefix(candidate, "{") {
		return nil, fmt.Errorf("not a JSON object")
	}

	var r reply
	if err := json.Unmarshal([]byte(candidate), &r); err != nil {
		return nil, err
	}
	if r.Events == nil {
		return []Observation{}, nil
	}
	return r.Events, nil
}

// decodeLeading reads the object at the head of text and ignores whatever follows it
func decodeLeading(text string) ([]Observation, error) {
	var r reply
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&r); err != nil {
		return nil, err
	}
	if r.Events == nil {
		return []Observation{}, nil
	}
	return r.Events, nil
}
