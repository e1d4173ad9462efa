package saml

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that uses the xsd:duration format for
// text marshalling and unmarshalling.
type Duration time.Duration

// MarshalText implements the encoding.TextMarshaler interface.
func (d Duration) MarshalText() ([]byte, error) {
	if d == 0 {
		return nil, nil
	}

	out := "PT"
	if d < 0 {
		d = -d
		out = "-" + out
	}

	h := time.Duration(d) / time.Hour
	m := time.Duration(d) % time.Hour / time.Minute
	s := time.Duration(d) % time.Minute / time.Second
	ns := time.Duration(d) % time.Second
	if h > 0 {
		out += fmt.Sprintf("%dH", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dM", m)
	}
	if s > 0 || ns > 0 {
		out += strconv.FormatInt(int64(s), 10)
		if ns > 0 {
			out += strconv.FormatFloat(float64(ns)/1e9, 'f', -1, 64)[1:]
		}
		out += "S"
	}

	return []byte(out), nil
}

const (
	day   = 24 * time.Hour
	month = 30 * day  // Approximated
	year  = 365 * day // Approximated
)

type durationUnit struct {
	designator byte
	of         time.Duration
}

var durationDateUnits = []durationUnit{{'Y', year}, {'M', month}, {'D', day}}
var durationTimeUnits = []durationUnit{{'H', time.Hour}, {'M', time.Minute}, {'S', time.Second}}

// UnmarshalText implements the encoding.TextUnmarshaler interface. It
// accepts the xsd:duration lexical form with the year, month, day,
// hour, minute and second components in their mandated order, a
// fraction permitted only on seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	if text == nil {
		*d = 0
		return nil
	}
	invalid := fmt.Errorf("invalid duration (%s)", text)

	s := string(text)
	var sign time.Duration = 1
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return invalid
	}
	s = s[1:]
	if s == "" {
		return invalid
	}

	datePart := s
	timePart := ""
	if i := strings.IndexByte(s, 'T'); i != -1 {
		datePart, timePart = s[:i], s[i+1:]
		if timePart == "" {
			return invalid
		}
	}

	var out time.Duration
	for _, part := range []struct {
		s     string
		units []durationUnit
	}{{datePart, durationDateUnits}, {timePart, durationTimeUnits}} {
		rest := part.s
		for _, u := range part.units {
			if rest == "" {
				break
			}
			v, frac, n, ok := leadingNumber(rest, u.designator == 'S')
			if !ok {
				return invalid
			}
			if n == len(rest) || rest[n] != u.designator {
				continue
			}
			if n == 0 {
				// a designator with no digits, e.g. "P1YMD"
				return invalid
			}
			out += time.Duration(v) * u.of
			if u.designator == 'S' {
				out += frac
			}
			rest = rest[n+1:]
		}
		if rest != "" {
			return invalid
		}
	}

	*d = Duration(sign * out)
	return nil
}

// leadingNumber consumes the digits (and, when allowFraction is set, a
// decimal fraction) at the start of s. It returns the integer value,
// the fraction truncated to nanoseconds, and the number of bytes
// consumed. ok is false for a malformed fraction.
func leadingNumber(s string, allowFraction bool) (v int64, frac time.Duration, n int, ok bool) {
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n > 0 {
		var err error
		v, err = strconv.ParseInt(s[:n], 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}
	}
	if allowFraction && n > 0 && n < len(s) && s[n] == '.' {
		fracStart := n + 1
		n++
		for n < len(s) && s[n] >= '0' && s[n] <= '9' {
			n++
		}
		digits := s[fracStart:n]
		if digits == "" {
			return 0, 0, 0, false
		}
		if len(digits) > 9 {
			digits = digits[:9]
		}
		f, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}
		for i := len(digits); i < 9; i++ {
			f *= 10
		}
		frac = time.Duration(f)
	}
	return v, frac, n, true
}
