package lines

import (
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, text string) Counts {
	t.Helper()
	c, err := Build(strings.NewReader(text), UTF8, 0)
	require.NoError(t, err)
	return c
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Counts
	}{
		{name: "empty", text: "", want: Counts{}},
		{name: "duplicates", text: "a\nb\na\n", want: Counts{"a": 2, "b": 1}},
		{name: "unterminated last line", text: "a\nb", want: Counts{"a": 1, "b": 1}},
		{name: "crlf", text: "a\r\nb\r\n", want: Counts{"a": 1, "b": 1}},
		{name: "lone cr", text: "a\rb\r", want: Counts{"a": 1, "b": 1}},
		{name: "blank lines count", text: "\n\nx\n", want: Counts{"": 2, "x": 1}},
		{name: "trailing cr at eof", text: "a\r", want: Counts{"a": 1}},
		{name: "unicode", text: "привет\nмир\nпривет", want: Counts{"привет": 2, "мир": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, build(t, tt.text))
		})
	}
}

func TestBuildSplitsAcrossReads(t *testing.T) {
	text := "alpha\r\nbeta\rgamma\nalpha"
	c, err := Build(iotest.OneByteReader(strings.NewReader(text)), UTF8, 0)
	require.NoError(t, err)
	assert.Equal(t, Counts{"alpha": 2, "beta": 1, "gamma": 1}, c)
}

func TestBuildOrderInsensitive(t *testing.T) {
	src := []string{"one", "two", "two", "three", "", "one", "four"}
	want := build(t, strings.Join(src, "\n"))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]string(nil), src...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, build(t, strings.Join(shuffled, "\n")))
	}
	assert.Equal(t, FromSlice(src), want)
}

func TestBuildInvalidUTF8(t *testing.T) {
	_, err := Build(strings.NewReader("ok\n\xff\xfe\n"), UTF8, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.Contains(t, err.Error(), "line 2")
}

func TestBuildLineTooLong(t *testing.T) {
	_, err := Build(strings.NewReader(strings.Repeat("x", 100)+"\n"), UTF8, 16)
	assert.ErrorIs(t, err, ErrDecode)

	c, err := Build(strings.NewReader(strings.Repeat("x", 16)+"\n"), UTF8, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Total())
}

func TestBuildReadError(t *testing.T) {
	_, err := Build(io.MultiReader(strings.NewReader("a\n"), iotest.ErrReader(io.ErrUnexpectedEOF)), UTF8, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrDecode)
}

func TestBuildWithLegacyEncoding(t *testing.T) {
	enc, err := LookupEncoding("windows-1251")
	require.NoError(t, err)
	assert.Equal(t, "windows-1251", enc.Name)

	// "да" in cp1251.
	c, err := Build(strings.NewReader("\xe4\xe0\n\xe4\xe0\n"), enc, 0)
	require.NoError(t, err)
	assert.Equal(t, Counts{"да": 2}, c)
}

func TestLookupEncoding(t *testing.T) {
	enc, err := LookupEncoding("")
	require.NoError(t, err)
	assert.Equal(t, UTF8, enc)

	enc, err = LookupEncoding("UTF8")
	require.NoError(t, err)
	assert.Equal(t, "utf-8", enc.String())

	_, err = LookupEncoding("klingon")
	assert.Error(t, err)
}

func TestSorted(t *testing.T) {
	c := Counts{"b": 1, "a": 3, "c": 2}
	assert.Equal(t, []Entry{{"a", 3}, {"b", 1}, {"c", 2}}, c.Sorted())
	assert.Equal(t, 6, c.Total())
}
