package timeparse

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var buenosAires = mustLoad("America/Argentina/Buenos_Aires")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("ART", -3*60*60)
	}
	return loc
}

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, buenosAires)
}

func TestParse_RelativeMinutes(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0).Add(17 * time.Second)
	for _, n := range []int{1, 2, 5, 30, 59, 60, 90, 1440, 10000} {
		got, err := Parse("recordame algo en "+strconv.Itoa(n)+" minutos", now)
		require.NoError(t, err, "n=%d", n)
		assert.True(t, got.Equal(now.Add(time.Duration(n)*time.Minute)), "n=%d got %v", n, got)
	}
}

func TestParse_RelativeMinutesSingular(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("en 1 minuto", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), got)
}

func TestParse_RelativeHours(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("avisame en 3 horas que salga", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(3*time.Hour), got)
}

func TestParse_ZeroIsInvalid(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	_, err := Parse("en 0 minutos", now)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTime)
}

func TestParse_TomorrowAt(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)

	got, err := Parse("mañana a las 9", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 2, 9, 0), got)

	got, err = Parse("MAÑANA A LAS 21:45", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 2, 21, 45), got)
}

func TestParse_TomorrowCrossesMonthAndYear(t *testing.T) {
	now := at(2023, time.December, 31, 22, 0)
	got, err := Parse("mañana a las 7:05", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 1, 7, 5), got)
}

func TestParse_BareClockRollsForward(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("a las 08:00", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 2, 8, 0), got)
}

func TestParse_BareClockLaterToday(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("a las 23:00", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 1, 23, 0), got)
}

func TestParse_BareClockExactlyNowRollsForward(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("a las 10:00", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 2, 10, 0), got)
}

func TestParse_ExplicitDate(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)

	got, err := Parse("el 5 de marzo a las 10", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 5, 10, 0), got)

	got, err = Parse("el 5 de marzo a las 10:30", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 5, 10, 30), got, "explicit date must win over the bare clock pattern")
}

func TestParse_ExplicitDateRollsToNextYear(t *testing.T) {
	now := at(2024, time.June, 10, 10, 0)
	got, err := Parse("el 1 de enero a las 0", now)
	require.NoError(t, err)
	assert.Equal(t, at(2025, time.January, 1, 0, 0), got)
}

func TestParse_Setiembre(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("el 21 de setiembre a las 8", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.September, 21, 8, 0), got)
}

func TestParse_LeapDayRollsToNextLeapYear(t *testing.T) {
	now := at(2025, time.January, 1, 10, 0)
	got, err := Parse("el 29 de febrero a las 12", now)
	require.NoError(t, err)
	assert.Equal(t, at(2028, time.February, 29, 12, 0), got)
}

func TestParse_InvalidDates(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	for _, text := range []string{
		"el 31 de febrero a las 10",
		"el 31 de abril a las 10",
		"el 0 de mayo a las 10",
		"el 3 de brumario a las 10",
	} {
		_, err := Parse(text, now)
		var perr *ParseError
		require.True(t, errors.As(err, &perr), "%q: want *ParseError, got %v", text, err)
		assert.ErrorIs(t, err, ErrInvalidTime, text)
	}
}

func TestParse_InvalidClock(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	for _, text := range []string{"a las 24:00", "a las 10:61", "mañana a las 25"} {
		_, err := Parse(text, now)
		assert.ErrorIs(t, err, ErrInvalidTime, text)
	}
}

func TestParse_Unrecognized(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	for _, text := range []string{"", "comprar pan", "la semana que viene", "a las 9"} {
		_, err := Parse(text, now)
		var perr *ParseError
		require.True(t, errors.As(err, &perr), "%q", text)
		assert.ErrorIs(t, err, ErrUnrecognized, text)
	}
}

func TestParse_Precedence(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	got, err := Parse("mañana a las 9 o en 2 horas", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), got, "relative hours outrank tomorrow")

	got, err = Parse("pagar el 2 de los impuestos a las 18:30", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.January, 1, 18, 30), got, "no month word, clock time applies")

	got, err = Parse("el 5 de marzo a las 18:30", now)
	require.NoError(t, err)
	assert.Equal(t, at(2024, time.March, 5, 18, 30), got, "explicit date owns its clock time")
}

func TestParse_AlwaysFuture(t *testing.T) {
	now := at(2024, time.January, 1, 23, 59)
	for _, text := range []string{
		"en 1 minutos", "en 1 horas", "mañana a las 0", "a las 00:00",
		"a las 23:59", "el 1 de enero a las 23:59", "el 2 de enero a las 0",
	} {
		got, err := Parse(text, now)
		require.NoError(t, err, text)
		assert.True(t, got.After(now), "%q -> %v not after %v", text, got, now)
	}
}

func TestFind_Span(t *testing.T) {
	now := at(2024, time.January, 1, 10, 0)
	text := "comprar pan en 1 minutos"
	m, err := Find(text, now)
	require.NoError(t, err)
	assert.Equal(t, "en 1 minutos", text[m.Start:m.End])
}
