package lines

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Encoding is the fixed text encoding used to decode watched files.
type Encoding struct {
	// Name is the canonical WHATWG name, e.g. "utf-8" or "windows-1251".
	Name string

	enc encoding.Encoding
	// strict marks UTF-8, which is validated byte-for-byte instead of
	// being passed through a replacing decoder.
	strict bool
}

// UTF8 is the default encoding.
var UTF8 = Encoding{Name: "utf-8", enc: unicode.UTF8, strict: true}

// LookupEncoding resolves a WHATWG encoding label. An empty label means UTF-8.
func LookupEncoding(label string) (Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return UTF8, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return Encoding{}, fmt.Errorf("unknown text encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return Encoding{}, fmt.Errorf("unsupported text encoding %q: %w", label, err)
	}
	if name == UTF8.Name {
		return UTF8, nil
	}
	return Encoding{Name: name, enc: enc}, nil
}

func (e Encoding) decoder() *encoding.Decoder {
	if e.enc == nil {
		return unicode.UTF8.NewDecoder()
	}
	return e.enc.NewDecoder()
}

// String returns the encoding name.
func (e Encoding) String() string {
	if e.Name == "" {
		return UTF8.Name
	}
	return e.Name
}
