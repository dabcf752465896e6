package gocoax

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed marks a device answer that does not have the expected shape.
	ErrMalformed = errors.New("malformed device response")

	// ErrNoCSRFToken is returned when devStatus.html did not hand out a csrf_token cookie.
	ErrNoCSRFToken = errors.New("failed to retrieve CSRF token from GoCoax device")
)

// Words is the "data" array the /ms endpoints answer with. The firmware sends
// 32-bit hex strings ("0x0000001a"); bare JSON numbers are accepted too.
type Words []string

func (w *Words) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("data array: %v: %w", err, ErrMalformed)
	}

	out := make(Words, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n uint64
		if err := json.Unmarshal(r, &n); err != nil {
			return fmt.Errorf("data word %s: %w", r, ErrMalformed)
		}
		out = append(out, fmt.Sprintf("0x%08x", n))
	}
	*w = out
	return nil
}

// Uint parses word idx as hex. name only feeds the error message.
func (w Words) Uint(name string, idx int) (uint64, error) {
	if idx < 0 || idx >= len(w) {
		return 0, fmt.Errorf("%s[%d]: only %d words: %w", name, idx, len(w), ErrMalformed)
	}
	v, err := parseHex(w[idx])
	if err != nil {
		return 0, fmt.Errorf("%s[%d]=%q: %w", name, idx, w[idx], ErrMalformed)
	}
	return v, nil
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// wordReader keeps the first decode error so field mapping reads top to bottom.
type wordReader struct {
	err error
}

func (r *wordReader) uint(name string, w Words, idx int) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := w.Uint(name, idx)
	if err != nil {
		r.err = err
	}
	return v
}
