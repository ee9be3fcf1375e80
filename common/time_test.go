package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnixMills(t *testing.T) {
	ts := time.Date(2026, time.March, 15, 10, 30, 45, 0, time.Local)
	millis := UnixMills(ts)
	assert.EqualValues(t, ts.Unix()*1000, millis)
	assert.True(t, ts.Equal(UnixMillsTime(millis)))

	withMillis := ts.Add(123 * time.Millisecond)
	assert.EqualValues(t, millis+123, UnixMills(withMillis))
	assert.True(t, withMillis.Equal(UnixMillsTime(millis+123)))
}
