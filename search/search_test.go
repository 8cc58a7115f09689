package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindForwardWrapAround(t *testing.T) {
	buf := "foo bar foo"

	m, err := Find(buf, 4, "foo", true, Forward)
	require.NoError(t, err)
	require.Equal(t, Match{Start: 8, End: 11}, m)

	m, err = Find(buf, 9, "foo", true, Forward)
	require.NoError(t, err)
	require.Equal(t, Match{Start: 0, End: 3}, m)
}

func TestFindBackwardWrapAround(t *testing.T) {
	buf := "foo bar foo"

	m, err := Find(buf, 7, "foo", true, Backward)
	require.NoError(t, err)
	require.Equal(t, Match{Start: 0, End: 3}, m)

	// Nothing ends at or before offset 2, so the search wraps to the end
	m, err = Find(buf, 2, "foo", true, Backward)
	require.NoError(t, err)
	require.Equal(t, Match{Start: 8, End: 11}, m)
}

func TestFindCaseSensitivity(t *testing.T) {
	buf := "Error: ERROR error"

	m, err := Find(buf, 1, "error", true, Forward)
	require.NoError(t, err)
	require.Equal(t, 13, m.Start)

	m, err = Find(buf, 1, "error", false, Forward)
	require.NoError(t, err)
	require.Equal(t, Match{Start: 7, End: 12}, m)

	_, err = Find("abc", 0, "ABC", true, Forward)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindUnicodeFold(t *testing.T) {
	// KELVIN SIGN folds to k but is three bytes long
	buf := "temp 300\u212A ok"

	m, err := Find(buf, 0, "300k", false, Forward)
	require.NoError(t, err)
	require.Equal(t, 5, m.Start)
	require.Equal(t, "300\u212A", buf[m.Start:m.End])

	buf = "\u00c4RGER \u00e4rger"
	m, err = Find(buf, len(buf), "\u00e4rger", false, Backward)
	require.NoError(t, err)
	require.Equal(t, 7, m.Start)
	m, err = Find(buf, m.Start, "\u00e4rger", false, Backward)
	require.NoError(t, err)
	require.Equal(t, Match{Start: 0, End: 6}, m)
}

func TestFindErrors(t *testing.T) {
	_, err := Find("anything", 0, "", false, Forward)
	require.ErrorIs(t, err, ErrEmptyQuery)

	_, err = Find("", 0, "x", false, Forward)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Find("abc", 0, "zzz", false, Backward)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindClampsCursor(t *testing.T) {
	m, err := Find("abc abc", 100, "abc", true, Forward)
	require.NoError(t, err)
	require.Equal(t, 0, m.Start)

	m, err = Find("abc abc", -5, "abc", true, Backward)
	require.NoError(t, err)
	require.Equal(t, 4, m.Start)
}

func TestCursorStepsThroughMatches(t *testing.T) {
	buf := "foo bar foo baz foo"
	var c Cursor

	var starts []int
	for i := 0; i < 4; i++ {
		m, err := c.Next(buf, "foo", true, Forward)
		require.NoError(t, err)
		starts = append(starts, m.Start)
	}
	require.Equal(t, []int{0, 8, 16, 0}, starts)

	// Turning around at the end of a match finds that match first
	m, err := c.Next(buf, "foo", true, Backward)
	require.NoError(t, err)
	require.Equal(t, 0, m.Start)
	m, err = c.Next(buf, "foo", true, Backward)
	require.NoError(t, err)
	require.Equal(t, 16, m.Start)
	m, err = c.Next(buf, "foo", true, Backward)
	require.NoError(t, err)
	require.Equal(t, 8, m.Start)
	require.Equal(t, 8, c.Pos)
	require.Equal(t, Backward, c.Direction)
}

func TestCursorResetsOnQueryChange(t *testing.T) {
	buf := "foo bar foo bar"
	var c Cursor

	_, err := c.Next(buf, "foo", true, Forward)
	require.NoError(t, err)
	_, err = c.Next(buf, "foo", true, Forward)
	require.NoError(t, err)
	require.Equal(t, 11, c.Pos)

	m, err := c.Next(buf, "bar", true, Forward)
	require.NoError(t, err)
	require.Equal(t, 4, m.Start)

	m, err = c.Next(buf, "bar", false, Forward)
	require.NoError(t, err)
	require.Equal(t, 4, m.Start)
}

func TestCursorReopen(t *testing.T) {
	buf := "x foo foo"
	c := Cursor{}

	_, err := c.Next(buf, "foo", true, Forward)
	require.NoError(t, err)
	c.Reopen(true)
	m, err := c.Next(buf, "foo", true, Forward)
	require.NoError(t, err)
	require.Equal(t, 6, m.Start)

	c.Reopen(false)
	m, err = c.Next(buf, "foo", true, Forward)
	require.NoError(t, err)
	require.Equal(t, 2, m.Start)

	c.Reset()
	require.Equal(t, Cursor{}, c)
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"":         Forward,
		"down":     Forward,
		"Forward":  Forward,
		"up":       Backward,
		"backward": Backward,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseDirection("sideways")
	require.Error(t, err)
	require.Equal(t, "up", Backward.String())
	require.Equal(t, "down", Forward.String())
}
