package mmtags

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrFormat    = errors.New("mmtags: unknown format")
	ErrMediaType = errors.New("mmtags: media type not accepted")
)

// MediaType classifies the content of a registered format.
type MediaType int

const (
	MediaAny MediaType = iota
	MediaSound
	MediaVideo
)

func (m MediaType) String() string {
	switch m {
	case MediaSound:
		return "sound"
	case MediaVideo:
		return "video"
	}
	return "any"
}

// Accepts reports whether content of type t passes the filter m.
func (m MediaType) Accepts(t MediaType) bool {
	return m == MediaAny || m == t
}

var formats []format

type format struct {
	name       string
	magic      string
	media      MediaType
	classify   func(io.Reader) (MediaType, error)
	decodeTags func(io.Reader) (Tags, error)
	decodeMeta func(io.Reader, int64) (Metadata, error)
}

// RegisterFormat lets the package know how to decode a sound file format
// identified by a magic number. Each decode function is provided with
// the input as an io.Reader. In addition, the decodeMeta function
// will get the filesize as an additional parameter to aid in calculating
// duration, if the filesize can be calculated.
//
// Formats are tried in registration order; the first magic that matches wins.
func RegisterFormat(name, magic string, media MediaType,
	decodeTags func(io.Reader) (Tags, error),
	decodeMeta func(io.Reader, int64) (Metadata, error)) {
	formats = append(formats, format{
		name:       name,
		magic:      magic,
		media:      media,
		decodeTags: decodeTags,
		decodeMeta: decodeMeta,
	})
}

// RegisterContainer is like RegisterFormat for containers that may carry
// either sound or video. Classify is given the input from its start and
// reports which one it holds.
func RegisterContainer(name, magic string,
	classify func(io.Reader) (MediaType, error),
	decodeTags func(io.Reader) (Tags, error),
	decodeMeta func(io.Reader, int64) (Metadata, error)) {
	formats = append(formats, format{
		name:       name,
		magic:      magic,
		media:      MediaAny,
		classify:   classify,
		decodeTags: decodeTags,
		decodeMeta: decodeMeta,
	})
}

// DecodeMeta sniffs r and decodes its technical metadata. It returns the name
// of the detected format.
func DecodeMeta(r io.Reader) (Metadata, string, error) {
	rr := bufio.NewReader(r)

	f := sniff(rr)
	if f.decodeMeta == nil {
		return nil, "", ErrFormat
	}
	var n int64
	if seeker, ok := r.(io.Seeker); ok {
		var err error
		n, err = seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, f.name, errors.Wrap(err, "mmtags: size")
		}
		if _, err = seeker.Seek(0, io.SeekStart); err != nil {
			return nil, f.name, errors.Wrap(err, "mmtags: rewind")
		}
		rr.Reset(r)
	}

	m, err := f.decodeMeta(rr, n)
	return m, f.name, err
}

// DecodeTags sniffs r and decodes its tags. A nil Tags with a nil error means
// the format was recognised but carries no tags.
func DecodeTags(r io.Reader) (Tags, string, error) {
	rr := bufio.NewReader(r)
	f := sniff(rr)
	if f.decodeTags == nil {
		return nil, "", ErrFormat
	}
	t, err := f.decodeTags(rr)
	return t, f.name, err
}

// Match reports whether magic matches b. Magic may contain "?" wildcards.
func match(magic string, b []byte) bool {
	if len(magic) != len(b) {
		return false
	}
	for i, c := range b {
		if magic[i] != c && magic[i] != '?' {
			return false
		}
	}
	return true
}

// Sniff determines the format of r's data.
func sniff(r *bufio.Reader) format {
	for _, f := range formats {
		b, err := r.Peek(len(f.magic))
		if err == nil && match(f.magic, b) {
			return f
		}
	}
	return format{}
}
