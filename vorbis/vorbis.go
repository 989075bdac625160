// Package vorbis decodes the identification and comment headers of Ogg
// Vorbis streams. The comment format is shared with FLAC.
package vorbis

import (
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
	"ktkr.us/pkg/mmtags/ogg"
)

func init() {
	mmtags.RegisterFormat("Ogg Vorbis", "OggS????????????????????????\x01vorbis", mmtags.MediaSound, DecodeTags, DecodeMeta)
}

const (
	idPreamble      = "\x01vorbis"
	commentPreamble = "\x03vorbis"
	setupPreamble   = "\x05vorbis"
)

// maxStringLen bounds a single vendor or comment string.
const maxStringLen = 1 << 24

var (
	ErrMissingFramingBit = errors.New("vorbis: missing framing bit")
	ErrBadPreamble       = errors.New("vorbis: malformed packet preamble")
	ErrBadComment        = errors.New("vorbis: malformed comment vector")
)

/*
Vorbis I Spec §4.2.2
1) [vorbis_version]    = read 32 bits as unsigned integer
2) [audio_channels]    = read 8 bit integer as unsigned
3) [audio_sample_rate] = read 32 bits as unsigned integer
4) [bitrate_maximum]   = read 32 bits as signed integer
5) [bitrate_nominal]   = read 32 bits as signed integer
6) [bitrate_minimum]   = read 32 bits as signed integer
7) [blocksize_0]       = 2 exponent (read 4 bits as unsigned integer)
8) [blocksize_1]       = 2 exponent (read 4 bits as unsigned integer)
9) [framing_flag]      = read one bit
*/
type header struct {
	VorbisVersion   uint32
	AudioChannels   uint8
	AudioSampleRate uint32
	BitrateMaximum  int32
	BitrateNominal  int32
	BitrateMinimum  int32
	BlockSizes      uint8
	FramingBit      uint8
}

type meta struct {
	header
	numSamples int64
	Comment
}

func (m *meta) Duration() time.Duration {
	if m.AudioSampleRate == 0 {
		return 0
	}
	// Avoid overflowing int64 to get milliseconds if we have a really really
	// long track
	return time.Millisecond * time.Duration(1e3*float64(m.numSamples)/float64(m.AudioSampleRate))
}

func (m *meta) NumChannels() int {
	return int(m.AudioChannels)
}

func (m *meta) BitRate() int {
	if m.BitrateNominal <= 0 {
		return 0
	}
	return int(m.BitrateNominal)
}

func (m *meta) SampleRate() int {
	return int(m.AudioSampleRate)
}

// readHeaders reads the identification header and positions r at the start
// of the comment header body.
func readHeaders(r io.Reader) (header, error) {
	var h header
	if err := readPacketPreamble(r, idPreamble); err != nil {
		return h, err
	}

	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, errors.Wrap(err, "vorbis: identification header")
	}

	if h.FramingBit&1 != 1 {
		return h, ErrMissingFramingBit
	}

	if err := readPacketPreamble(r, commentPreamble); err != nil {
		return h, errors.Wrap(err, "vorbis: comment header")
	}
	return h, nil
}

func DecodeTags(rr io.Reader) (mmtags.Tags, error) {
	r := ogg.NewReader(rr)
	if _, err := readHeaders(r); err != nil {
		return nil, err
	}
	_, comment, err := ReadComment(r)
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func DecodeMeta(rr io.Reader, fsize int64) (mmtags.Metadata, error) {
	r := ogg.NewReader(rr)
	h, err := readHeaders(r)
	if err != nil {
		return nil, err
	}
	_, comment, err := ReadComment(r)
	if err != nil {
		return nil, err
	}

	// the granule position of the last page is the total sample count
	var granule int64
	for {
		page, err := r.NextPage()
		if err != nil {
			return nil, errors.Wrap(err, "vorbis: scan pages")
		}
		if page == nil {
			break
		}
		granule = page.GranulePos
	}

	return &meta{h, granule, comment}, nil
}

func ReadComment(r io.Reader) (string, Comment, error) {
	vendor, err := readString(r)
	if err != nil {
		return "", nil, err
	}

	var numComments uint32
	err = binary.Read(r, binary.LittleEndian, &numComments)
	if err != nil {
		return "", nil, err
	}

	if numComments > maxStringLen {
		return "", nil, ErrBadComment
	}
	c := make(Comment)

	for i := uint32(0); i < numComments; i++ {
		comment, err := readString(r)
		if err != nil {
			return "", nil, err
		}

		parts := strings.SplitN(comment, "=", 2)
		if len(parts) < 2 {
			return "", nil, ErrBadComment
		}
		key := strings.ToUpper(parts[0])

		// again, we're gonna skip album art for now
		if key == "METADATA_BLOCK_PICTURE" {
			continue
		}
		val := parts[1]

		c[key] = append(c[key], val)
	}

	return vendor, c, nil
}

func readPacketPreamble(r io.Reader, preamble string) error {
	buf := make([]byte, len(preamble))
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, "vorbis: packet preamble")
	}
	if string(buf) != preamble {
		return errors.Wrapf(ErrBadPreamble, "%q", buf)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var length uint32
	err := binary.Read(r, binary.LittleEndian, &length)
	if err != nil {
		return "", err
	}

	if length > maxStringLen {
		return "", errors.Errorf("vorbis: %d byte comment string", length)
	}

	s := make([]byte, length)
	_, err = io.ReadFull(r, s)
	if err != nil {
		return "", err
	}

	return string(s), nil
}

type Comment map[string][]string

func (c Comment) Get(key string) string {
	if val := c[key]; len(val) > 0 {
		return val[0]
	}
	return ""
}

func (c Comment) GetAll(key string) string {
	val, ok := c[key]
	if ok {
		return strings.Join(val, ", ")
	}
	return ""
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01",
	"2006",
}

func (c Comment) Title() string       { return c.GetAll("TITLE") }
func (c Comment) AlbumArtist() string { return c.GetAll("ALBUMARTIST") }
func (c Comment) Artist() string      { return c.GetAll("ARTIST") }
func (c Comment) Album() string       { return c.GetAll("ALBUM") }
func (c Comment) Genre() string       { return c.GetAll("GENRE") }
func (c Comment) Composer() string    { return c.GetAll("COMPOSER") }
func (c Comment) Notes() string       { return c.Get("DESCRIPTION") }

func (c Comment) Disc() int  { return leadingNumber(c.Get("DISCNUMBER")) }
func (c Comment) Track() int { return leadingNumber(c.Get("TRACKNUMBER")) }

// leadingNumber parses the n of "n" or "n/total".
func leadingNumber(s string) int {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	n, _ := strconv.Atoi(s)
	return n
}

func (c Comment) Date() time.Time {
	s := c.Get("DATE")
	for _, dateFormat := range dateFormats {
		t, err := time.Parse(dateFormat, s)
		if err != nil {
			continue
		}
		return t
	}
	return time.Time{}
}
