package saml

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelaxedTimeFormat(t *testing.T) {
	rt := time.Date(2015, 7, 8, 9, 10, 11, 17, time.UTC)
	assert.Equal(t, "2015-07-08T09:10:11Z", RelaxedTime(rt).String())

	buf, err := RelaxedTime(rt).MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "2015-07-08T09:10:11Z", string(buf))

	// non-UTC values are emitted in UTC
	loc, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)
	rt = time.Date(2015, 7, 8, 5, 10, 11, 17, loc)

	assert.Equal(t, "2015-07-08T09:10:11Z", RelaxedTime(rt).String())
	buf, err = RelaxedTime(rt).MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "2015-07-08T09:10:11Z", string(buf))
}

func TestRelaxedTimeParse(t *testing.T) {
	var rt RelaxedTime
	err := rt.UnmarshalText([]byte("2015-07-08T09:10:11Z"))
	assert.NoError(t, err)
	assert.Equal(t, RelaxedTime(time.Date(2015, 7, 8, 9, 10, 11, 0, time.UTC)), rt)

	// sub-millisecond precision rounds away
	err = rt.UnmarshalText([]byte("2015-07-08T09:10:11.123456789Z"))
	assert.NoError(t, err)
	assert.Equal(t, RelaxedTime(time.Date(2015, 7, 8, 9, 10, 11, 123000000, time.UTC)), rt)

	err = rt.UnmarshalText([]byte("2015-07-08T09:10:11.8888Z"))
	assert.NoError(t, err)
	assert.Equal(t, RelaxedTime(time.Date(2015, 7, 8, 9, 10, 11, 889000000, time.UTC)), rt)

	// identity providers that omit the timezone
	err = rt.UnmarshalText([]byte("2015-07-08T09:10:11.5"))
	assert.NoError(t, err)
	assert.Equal(t, RelaxedTime(time.Date(2015, 7, 8, 9, 10, 11, 500000000, time.UTC)), rt)

	err = rt.UnmarshalText([]byte("2015-07-08T09:10:11Z04:00"))
	assert.EqualError(t, err,
		"parsing time \"2015-07-08T09:10:11Z04:00\": extra text: \"04:00\"")
}
