package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	c := NewManual(start)

	assert.Equal(t, time.UTC, c.Now().Location())
	assert.True(t, c.Now().Equal(start))

	c.Advance(90 * time.Minute)
	assert.True(t, c.Now().Equal(start.Add(90*time.Minute)))

	c.Set(start)
	assert.True(t, c.Now().Equal(start))
}

func TestSystemIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, System().Now().Location())
}
