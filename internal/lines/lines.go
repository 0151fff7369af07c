// Package lines turns text into line multisets and computes the multiset
// delta between two of them.
package lines

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// DefaultMaxLineBytes bounds the length of a single line.
const DefaultMaxLineBytes = 1 << 20

// ErrDecode is returned when content cannot be decoded as text in the
// configured encoding.
var ErrDecode = errors.New("content is not decodable text")

// Counts maps a line's text to the number of times it occurs.
type Counts map[string]int

// Entry is one line of a Counts in sorted form.
type Entry struct {
	Line  string
	Count int
}

// FromSlice builds Counts from already split lines.
func FromSlice(lines []string) Counts {
	c := make(Counts, len(lines))
	for _, l := range lines {
		c[l]++
	}
	return c
}

// Total returns the number of lines, counting duplicates.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Sorted returns the entries ordered by line text.
func (c Counts) Sorted() []Entry {
	out := make([]Entry, 0, len(c))
	for line, n := range c {
		out = append(out, Entry{Line: line, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Build reads r to EOF and counts its lines. Lines end at "\n", "\r\n" or
// a lone "\r"; a final line without terminator still counts, and a trailing
// terminator does not produce an empty extra line. Lines longer than
// maxLineBytes fail with ErrDecode.
func Build(r io.Reader, enc Encoding, maxLineBytes int) (Counts, error) {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}

	if enc.enc == nil {
		enc = UTF8
	}

	src := r
	if !enc.strict {
		src = transform.NewReader(r, enc.decoder())
	}

	sc := bufio.NewScanner(src)
	// One extra byte lets a "\r" at the limit see its "\n".
	sc.Buffer(make([]byte, 0, min(4096, maxLineBytes+2)), maxLineBytes+2)
	sc.Split(scanLines)

	counts := make(Counts)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		b := sc.Bytes()
		if len(b) > maxLineBytes {
			return nil, fmt.Errorf("%w: line %d exceeds %d bytes", ErrDecode, lineNo, maxLineBytes)
		}
		if enc.strict && !utf8.Valid(b) {
			return nil, fmt.Errorf("%w: line %d is not valid %s", ErrDecode, lineNo, enc.Name)
		}
		counts[string(b)]++
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: line %d exceeds %d bytes", ErrDecode, lineNo+1, maxLineBytes)
		}
		return nil, fmt.Errorf("failed to read lines: %w", err)
	}
	return counts, nil
}

// scanLines is bufio.ScanLines extended to treat a lone '\r' as a line end.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		// Need the next byte to tell "\r" from "\r\n".
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
