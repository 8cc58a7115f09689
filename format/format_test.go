package format

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLineFormatterCarriesPartialLine(t *testing.T) {
	f := NewLineFormatter(FixedStamper{Stamp: "[T]", On: false})

	require.Equal(t, "", f.Format("AB"))
	require.Equal(t, "AB", f.Carry())
	require.Equal(t, "ABCD\n", f.Format("CD\n"))
	require.Equal(t, "", f.Carry())
}

func TestLineFormatterTimestampPlacement(t *testing.T) {
	f := NewLineFormatter(FixedStamper{Stamp: "[T]", On: true})

	require.Equal(t, "[T] hello\n[T] world\n", f.Format("hello\nworld\n"))
}

func TestLineFormatterEmptyLinesAreNotStamped(t *testing.T) {
	f := NewLineFormatter(FixedStamper{Stamp: "[T]", On: true})

	require.Equal(t, "\n\n", f.Format("\n\n"))
	require.Equal(t, "[T] a\n\n[T] b\n", f.Format("a\n\nb\n"))
}

func TestLineFormatterStampsOnlyCompleteLines(t *testing.T) {
	f := NewLineFormatter(FixedStamper{Stamp: "[T]", On: true})

	require.Equal(t, "", f.Format("par"))
	require.Equal(t, "[T] partial\n", f.Format("tial\nnext"))
	require.Equal(t, "next", f.Carry())
}

type toggleStamper struct {
	on    bool
	calls int
}

func (s *toggleStamper) Enabled() bool { return s.on }
func (s *toggleStamper) Timestamp() string {
	s.calls++
	return "[T]"
}

func TestLineFormatterToggleIsNotRetroactive(t *testing.T) {
	s := &toggleStamper{}
	f := NewLineFormatter(s)

	require.Equal(t, "one\n", f.Format("one\ntw"))
	s.on = true
	require.Equal(t, "[T] two\n", f.Format("o\n"))
	s.on = false
	require.Equal(t, "three\n", f.Format("three\n"))
	require.Equal(t, 1, s.calls)
}

func TestLineFormatterNilStamper(t *testing.T) {
	f := NewLineFormatter(nil)
	require.Equal(t, "x\n", f.Format("x\n"))
	require.Equal(t, "", f.Format(""))
}

func TestDecoderNormalizesLineEndings(t *testing.T) {
	var d Decoder
	out := d.Decode([]byte("a\r\nb\rc\n"))
	require.Equal(t, "a\nb\nc\n", out)
}

func TestDecoderStripsNUL(t *testing.T) {
	var d Decoder
	require.Equal(t, "abc\n", d.Decode([]byte("a\x00b\x00c\x00\n")))
	require.Equal(t, "x\n", d.Decode([]byte("x\r\x00\n")))
}

func TestDecoderSplitCRLF(t *testing.T) {
	var d Decoder
	got := d.Decode([]byte("line\r"))
	got += d.Decode([]byte("\nnext"))
	require.Equal(t, "line\nnext", got)
}

func TestDecoderFlushTrailingCR(t *testing.T) {
	var d Decoder
	require.Equal(t, "a", d.Decode([]byte("a\r")))
	require.Equal(t, "\n", d.Flush())
	require.Equal(t, "", d.Flush())

	require.Equal(t, "\n", d.Decode([]byte("\r\r")))
	require.Equal(t, "\n", d.Flush())
}

func TestDecoderReplacesInvalidBytes(t *testing.T) {
	var d Decoder
	out := d.Decode([]byte{'a', 0xFF, 'b', 0xC0, 0x20})
	require.Equal(t, "a�b� ", out)
}

func TestDecoderSplitRune(t *testing.T) {
	var d Decoder
	euro := []byte("€")
	require.Len(t, euro, 3)

	got := d.Decode(append([]byte("x"), euro[:1]...))
	require.Equal(t, "x", got)
	got = d.Decode(euro[1:2])
	require.Equal(t, "", got)
	got = d.Decode(append(euro[2:], 'y'))
	require.Equal(t, "€y", got)
}

func TestDecoderFlushIncompleteRune(t *testing.T) {
	var d Decoder
	require.Equal(t, "", d.Decode([]byte{0xE2, 0x82}))
	require.Equal(t, "�", d.Flush())
}

func TestDecoderThenFormatter(t *testing.T) {
	var d Decoder
	f := NewLineFormatter(FixedStamper{Stamp: "[T]", On: true})

	var out strings.Builder
	for _, chunk := range []string{"boot\r", "\nok\r\n\r", "\nready"} {
		out.WriteString(f.Format(d.Decode([]byte(chunk))))
	}
	require.Equal(t, "[T] boot\n[T] ok\n\n", out.String())
	require.Equal(t, "ready", f.Carry())
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 8, 9, 45*int(time.Millisecond)+999, time.UTC)
	require.Equal(t, "[05-03-2024 07:08:09:045]", FormatTimestamp(ts))
}

func TestClockTimezone(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 7, 8, 9, 45*int(time.Millisecond), time.UTC)
	c := NewClock(true)
	c.SetNowFunc(func() time.Time { return fixed })

	require.True(t, c.Enabled())
	require.Equal(t, "Local", c.Timezone())

	require.NoError(t, c.SetTimezone("UTC"))
	require.Equal(t, "[05-03-2024 07:08:09:045]", c.Timestamp())

	require.NoError(t, c.SetTimezone("Asia/Tokyo"))
	require.Equal(t, "Asia/Tokyo", c.Timezone())
	require.Equal(t, "[05-03-2024 16:08:09:045]", c.Timestamp())

	err := c.SetTimezone("Mars/Olympus_Mons")
	require.Error(t, err)
	require.Equal(t, "Local", c.Timezone())
	require.Equal(t, FormatTimestamp(fixed.In(time.Local)), c.Timestamp())

	c.SetEnabled(false)
	require.False(t, c.Enabled())
}
