package service_test

import (
	"testing"
	"time"

	"opsboard/internal/service"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicClock_NeverRepeatsOrGoesBack(t *testing.T) {
	wall := time.Date(2024, 5, 6, 8, 0, 0, 123456789, time.UTC)
	readings := []time.Time{wall, wall, wall.Add(-time.Hour), wall.Add(time.Second)}
	i := 0
	clock := service.NewMonotonicClock(func() time.Time {
		t := readings[i]
		i++
		return t
	})

	first := clock.Now()
	assert.Equal(t, wall.Truncate(time.Microsecond), first)

	second := clock.Now()
	assert.Equal(t, first.Add(time.Microsecond), second)

	third := clock.Now()
	assert.Equal(t, second.Add(time.Microsecond), third)

	fourth := clock.Now()
	assert.Equal(t, wall.Add(time.Second).Truncate(time.Microsecond), fourth)
}
