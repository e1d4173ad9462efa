package saml

import "time"

// RelaxedTime is a version of time.Time that accepts the timestamp
// formats that SAML implementations emit in the wild, which are not
// always valid RFC 3339.
type RelaxedTime time.Time

const timeFormat = "2006-01-02T15:04:05.999Z07:00"

// Time returns the value as a time.Time.
func (m RelaxedTime) Time() time.Time { return time.Time(m) }

func (m RelaxedTime) String() string {
	return time.Time(m).Round(time.Millisecond).UTC().Format(timeFormat)
}

// MarshalText formats the time in UTC truncated to milliseconds.
// Per section 1.3.3 of the SAML core spec, time values must be in UTC
// and implementations should not rely on resolution finer than
// milliseconds.
func (m RelaxedTime) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *RelaxedTime) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*m = RelaxedTime(time.Time{})
		return nil
	}
	t, err1 := time.Parse(time.RFC3339, string(text))
	if err1 == nil {
		*m = RelaxedTime(t.Round(time.Millisecond))
		return nil
	}

	// Some identity providers omit the timezone.
	t, err2 := time.Parse("2006-01-02T15:04:05.999999999", string(text))
	if err2 == nil {
		*m = RelaxedTime(t.Round(time.Millisecond))
		return nil
	}
	return err1
}
