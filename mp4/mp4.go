// Package mp4 reads iTunes-style tags and basic stream properties out of
// MPEG-4 files. The audio brands (M4A, M4B, M4P, F4A, F4B) are registered as
// sound. Any other brand is sound unless one of its tracks is video.
package mp4

import (
	"bufio"
	"encoding/binary"
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
)

var (
	ErrInvalidFormat = errors.New("mp4: invalid format")
	ErrNoMovie       = errors.New("mp4: no moov atom")
)

// AudioBrands are the ftyp major brands of audio-only files.
var AudioBrands = []string{"M4A ", "M4B ", "M4P ", "F4A ", "F4B "}

func init() {
	for _, brand := range AudioBrands {
		mmtags.RegisterFormat("MPEG-4 Audio ("+brand[:3]+")", "????ftyp"+brand, mmtags.MediaSound, DecodeTags, DecodeMeta)
	}
	mmtags.RegisterContainer("MPEG-4", "????ftyp", Media, DecodeTags, DecodeMeta)
}

const (
	atomHeaderSize = 8

	// maxMovieSize bounds the moov atom, which is read into memory.
	maxMovieSize = 64 << 20
)

type AtomHeader struct {
	Size uint32
	Name [4]byte
}

type Atom struct {
	Name     string
	Content  []byte
	Parent   *Atom
	Children map[string][]*Atom
}

// Get follows path down the tree, taking the first child of each name.
func (a *Atom) Get(path ...string) *Atom {
	if a == nil || len(a.Children) == 0 || len(path) == 0 {
		return nil
	}

	current := a

	for _, name := range path {
		children := current.Children[name]
		if len(children) == 0 {
			return nil
		}

		current = children[0]
	}

	return current
}

// childOffset reports whether the atom a holds child atoms and how many bytes
// of its content precede them.
func childOffset(a *Atom) (int, bool) {
	switch a.Name {
	case "moov", "trak", "mdia", "minf", "stbl", "udta", "ilst":
		return 0, true
	case "meta":
		// ISO meta is a full box; QuickTime meta starts directly with hdlr
		if len(a.Content) >= 8 && string(a.Content[4:8]) == "hdlr" {
			return 0, true
		}
		return 4, true
	case "stsd":
		return 8, true
	}
	if a.Parent != nil && a.Parent.Name == "ilst" {
		// every metadata item holds data atoms
		return 0, true
	}
	return 0, false
}

func parseChildren(parent *Atom, b []byte) error {
	for len(b) >= atomHeaderSize {
		size := uint64(binary.BigEndian.Uint32(b))
		name := string(b[4:8])
		hdr := uint64(atomHeaderSize)

		switch size {
		case 0:
			size = uint64(len(b))
		case 1:
			if len(b) < 16 {
				return errors.Wrapf(ErrInvalidFormat, "truncated %q", name)
			}
			size = binary.BigEndian.Uint64(b[8:])
			hdr = 16
		}
		if size < hdr || size > uint64(len(b)) {
			return errors.Wrapf(ErrInvalidFormat, "atom %q size %d", name, size)
		}

		a := &Atom{Name: name, Content: b[hdr:size], Parent: parent}
		if off, ok := childOffset(a); ok && off <= len(a.Content) {
			a.Children = make(map[string][]*Atom)
			if err := parseChildren(a, a.Content[off:]); err != nil {
				return err
			}
		}
		parent.Children[name] = append(parent.Children[name], a)
		b = b[size:]
	}
	return nil
}

type Reader struct {
	Brand string
	r     *bufio.Reader
}

func NewReader(r io.Reader) (*Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	peek, err := br.Peek(atomHeaderSize + 4)
	if err != nil {
		return nil, errors.Wrap(err, "mp4")
	}

	// look for ftyp atom
	if string(peek[4:8]) != "ftyp" {
		return nil, ErrInvalidFormat
	}

	return &Reader{Brand: string(peek[8:12]), r: br}, nil
}

// ReadAtom reads the next top level atom. Only the content of moov is kept
// (and parsed into children); everything else is skipped.
func (r *Reader) ReadAtom() (*Atom, error) {
	var h AtomHeader
	err := binary.Read(r.r, binary.BigEndian, &h)
	if err != nil {
		return nil, err
	}

	var (
		name = string(h.Name[:])
		size = int64(h.Size) - atomHeaderSize
	)
	switch h.Size {
	case 0:
		// extends to the end of the file
		size = -1
	case 1:
		var large uint64
		if err := binary.Read(r.r, binary.BigEndian, &large); err != nil {
			return nil, errors.Wrap(err, "mp4: large size")
		}
		size = int64(large) - 16
	}
	if h.Size != 0 && size < 0 {
		return nil, errors.Wrapf(ErrInvalidFormat, "atom %q size %d", name, h.Size)
	}

	a := &Atom{Name: name}
	if name != "moov" {
		if size < 0 {
			_, err = io.Copy(ioutil.Discard, r.r)
		} else {
			_, err = io.CopyN(ioutil.Discard, r.r, size)
		}
		return a, errors.Wrapf(err, "mp4: skip %q", name)
	}

	var content []byte
	if size < 0 {
		content, err = ioutil.ReadAll(io.LimitReader(r.r, maxMovieSize+1))
	} else if size <= maxMovieSize {
		content = make([]byte, size)
		_, err = io.ReadFull(r.r, content)
	}
	if err != nil {
		return nil, errors.Wrap(err, "mp4: read moov")
	}
	if len(content) > maxMovieSize || size > maxMovieSize {
		return nil, errors.Errorf("mp4: moov atom larger than %d bytes", maxMovieSize)
	}

	a.Content = content
	a.Children = make(map[string][]*Atom)
	if err := parseChildren(a, content); err != nil {
		return nil, err
	}
	return a, nil
}

// Movie reads top level atoms until it finds moov.
func (r *Reader) Movie() (*Atom, error) {
	for {
		a, err := r.ReadAtom()
		if err != nil {
			if errors.Cause(err) == io.EOF {
				return nil, ErrNoMovie
			}
			return nil, err
		}
		if a.Name == "moov" {
			return a, nil
		}
	}
}

// DecodeTags returns the iTunes item list of an MPEG-4 file, or nil Tags if
// the file has none.
func DecodeTags(r io.Reader) (mmtags.Tags, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	moov, err := rd.Movie()
	if err != nil {
		return nil, err
	}
	ilst := itemList(moov)
	if ilst == nil {
		return nil, nil
	}
	return &Tags{ilst}, nil
}

func itemList(moov *Atom) *Atom {
	if ilst := moov.Get("udta", "meta", "ilst"); ilst != nil {
		return ilst
	}
	return moov.Get("meta", "ilst")
}

// Media classifies an MPEG-4 file by the handlers of its tracks: a file with
// a video track is video, anything else is sound.
func Media(r io.Reader) (mmtags.MediaType, error) {
	rd, err := NewReader(r)
	if err != nil {
		return mmtags.MediaAny, err
	}
	moov, err := rd.Movie()
	if err != nil {
		return mmtags.MediaAny, err
	}
	for _, trak := range moov.Children["trak"] {
		if handlerType(trak) == "vide" {
			return mmtags.MediaVideo, nil
		}
	}
	return mmtags.MediaSound, nil
}

// handlerType returns the handler type of a track (soun, vide, text, ...).
func handlerType(trak *Atom) string {
	hdlr := trak.Get("mdia", "hdlr")
	if hdlr == nil || len(hdlr.Content) < 12 {
		return ""
	}
	return string(hdlr.Content[8:12])
}

type meta struct {
	duration   time.Duration
	channels   int
	bitrate    int
	samplerate int
}

func (m *meta) Duration() time.Duration { return m.duration }
func (m *meta) NumChannels() int        { return m.channels }
func (m *meta) BitRate() int            { return m.bitrate }
func (m *meta) SampleRate() int         { return m.samplerate }

// DecodeMeta takes the duration from mvhd and the channel count and sample
// rate from the first sound track's sample description. The bitrate is the
// average over the whole file.
func DecodeMeta(r io.Reader, fsize int64) (mmtags.Metadata, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	moov, err := rd.Movie()
	if err != nil {
		return nil, err
	}

	m := new(meta)
	if mvhd := moov.Get("mvhd"); mvhd != nil {
		m.duration = movieDuration(mvhd.Content)
	}
	if entry := soundSampleEntry(moov); entry != nil {
		m.channels = int(binary.BigEndian.Uint16(entry[16:18]))
		m.samplerate = int(binary.BigEndian.Uint32(entry[24:28]) >> 16)
	}
	if secs := m.duration.Seconds(); secs > 0 {
		m.bitrate = int(float64(fsize*8) / secs)
	}
	return m, nil
}

func movieDuration(b []byte) time.Duration {
	var timescale, duration uint64
	switch {
	case len(b) >= 32 && b[0] == 1:
		timescale = uint64(binary.BigEndian.Uint32(b[20:24]))
		duration = binary.BigEndian.Uint64(b[24:32])
	case len(b) >= 20 && b[0] == 0:
		timescale = uint64(binary.BigEndian.Uint32(b[12:16]))
		duration = uint64(binary.BigEndian.Uint32(b[16:20]))
	}
	if timescale == 0 {
		return 0
	}
	return time.Duration(float64(duration) / float64(timescale) * float64(time.Second))
}

// soundSampleEntry returns the content of the audio sample entry (mp4a,
// alac, ...) of the first track whose handler is "soun".
func soundSampleEntry(moov *Atom) []byte {
	for _, trak := range moov.Children["trak"] {
		if handlerType(trak) != "soun" {
			continue
		}
		stsd := trak.Get("mdia", "minf", "stbl", "stsd")
		if stsd == nil {
			continue
		}
		for _, entries := range stsd.Children {
			for _, e := range entries {
				if len(e.Content) >= 28 {
					return e.Content
				}
			}
		}
	}
	return nil
}
