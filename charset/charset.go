// Package charset converts text between named encodings. It is used to
// re-encode the UTF-32BE metadata payloads into the local system encoding.
package charset

import (
	"encoding/binary"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// System names the encoding of the local system, taken from the locale
// environment each time it is used.
const System = ""

var (
	ErrUnknown     = errors.New("charset: unknown encoding")
	ErrInvalidText = errors.New("charset: invalid source text")
	ErrShortBuffer = errors.New("charset: destination too small")
)

// A Recoder converts text from one encoding to another.
type Recoder interface {
	// ByteSize returns the number of bytes src occupies once converted.
	ByteSize(src []byte, from, to string) (int, error)
	// Convert converts src into dst and returns the number of bytes written.
	Convert(dst, src []byte, from, to string) (int, error)
}

type recoder struct{}

// Default converts with golang.org/x/text.
var Default Recoder = recoder{}

func (recoder) ByteSize(src []byte, from, to string) (int, error) { return ByteSize(src, from, to) }
func (recoder) Convert(dst, src []byte, from, to string) (int, error) {
	return Convert(dst, src, from, to)
}

// ByteSize returns the number of bytes src occupies once converted from the
// encoding from to the encoding to. Empty text has size zero.
func ByteSize(src []byte, from, to string) (int, error) {
	out, err := convert(src, from, to)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

// Convert converts src from the encoding from to the encoding to, writing
// the result to dst. It fails if dst cannot hold the whole result.
func Convert(dst, src []byte, from, to string) (int, error) {
	out, err := convert(src, from, to)
	if err != nil {
		return 0, err
	}
	if len(out) > len(dst) {
		return 0, errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", len(out), len(dst))
	}
	return copy(dst, out), nil
}

func convert(src []byte, from, to string) ([]byte, error) {
	fromName, dec, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	toName, enc, err := Lookup(to)
	if err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, nil
	}
	if fromName == "UTF-32BE" {
		if err := validUTF32BE(src); err != nil {
			return nil, err
		}
	}

	utf8, err := dec.NewDecoder().Bytes(src)
	if err != nil {
		return nil, errors.Wrapf(err, "charset: decode %s", fromName)
	}
	if toName == "UTF-8" {
		return utf8, nil
	}
	// fails on characters the target cannot represent
	out, err := enc.NewEncoder().Bytes(utf8)
	if err != nil {
		return nil, errors.Wrapf(err, "charset: encode %s", toName)
	}
	return out, nil
}

// validUTF32BE rejects text that is not a whole number of code units or that
// holds surrogates or values beyond U+10FFFF.
func validUTF32BE(b []byte) error {
	if len(b)%4 != 0 {
		return errors.Wrapf(ErrInvalidText, "length %d", len(b))
	}
	for i := 0; i < len(b); i += 4 {
		r := binary.BigEndian.Uint32(b[i:])
		if r > 0x10FFFF || (r >= 0xD800 && r <= 0xDFFF) {
			return errors.Wrapf(ErrInvalidText, "code point %#x at %d", r, i)
		}
	}
	return nil
}

// Lookup resolves an encoding name, with System standing for the locale's
// encoding. Besides IANA names it accepts the spellings found in locale
// names (ISO8859-1, eucJP, koi8r, ...) and WHATWG labels. It returns the
// canonical name alongside the encoding.
func Lookup(name string) (string, encoding.Encoding, error) {
	if name == System {
		name = Locale()
	}
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return "UTF-8", unicode.UTF8, nil
	case "utf-32be", "utf32be":
		return "UTF-32BE", utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	}

	for _, n := range []string{name, localeAlias(name)} {
		if n == "" {
			continue
		}
		if enc, err := ianaindex.IANA.Encoding(n); err == nil && enc != nil {
			canonical, err := ianaindex.IANA.Name(enc)
			if err != nil {
				canonical = n
			}
			return canonical, enc, nil
		}
	}
	if enc, err := htmlindex.Get(name); err == nil {
		canonical, err := htmlindex.Name(enc)
		if err != nil {
			canonical = name
		}
		return canonical, enc, nil
	}
	return "", nil, errors.Wrapf(ErrUnknown, "%q", name)
}

// localeAliases maps normalised codeset names to IANA names.
var localeAliases = map[string]string{
	"eucjp":       "EUC-JP",
	"ujis":        "EUC-JP",
	"euckr":       "EUC-KR",
	"euccn":       "GBK",
	"gb2312":      "GBK",
	"sjis":        "Shift_JIS",
	"shiftjis":    "Shift_JIS",
	"pck":         "Shift_JIS",
	"big5":        "Big5",
	"big5hkscs":   "Big5",
	"koi8r":       "KOI8-R",
	"koi8u":       "KOI8-U",
	"tis620":      "TIS-620",
	"ascii":       "US-ASCII",
	"usascii":     "US-ASCII",
	"ansix341968": "US-ASCII",
}

// localeAlias normalises a codeset the way the C library does, lowercased
// with punctuation dropped, and maps it to an IANA name. It returns "" if
// there is no alias.
func localeAlias(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	norm := b.String()
	switch {
	case strings.HasPrefix(norm, "iso8859") && len(norm) > len("iso8859"):
		return "ISO-8859-" + norm[len("iso8859"):]
	case len(norm) == len("cp1252") && strings.HasPrefix(norm, "cp125"),
		len(norm) == len("windows1252") && strings.HasPrefix(norm, "windows125"):
		return "windows-125" + norm[len(norm)-1:]
	}
	return localeAliases[norm]
}

// Locale returns the charset of the current locale as found in LC_ALL,
// LC_CTYPE or LANG, in that order. The C and POSIX locales and locales that
// name no charset are treated as UTF-8.
func Locale() string {
	for _, v := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		loc := os.Getenv(v)
		if loc == "" {
			continue
		}
		if i := strings.IndexByte(loc, '@'); i >= 0 {
			loc = loc[:i]
		}
		i := strings.IndexByte(loc, '.')
		if i < 0 || i == len(loc)-1 {
			return "UTF-8"
		}
		return loc[i+1:]
	}
	return "UTF-8"
}
