// Package id3v2 provides facilities for reading ID3v2 tags. Supported versions
// are 2.2, 2.3, and 2.4.
package id3v2

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"io/ioutil"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
)

// Tags is an ID3v2 tag set.
type Tags struct {
	*Header
	Frames map[string]string

	disc  int
	track int
	date  time.Time

	TotalTracks int
	TotalDiscs  int
}

func (t *Tags) Title() string       { return t.Frames["TIT2"] }
func (t *Tags) AlbumArtist() string { return t.Frames["TPE2"] }
func (t *Tags) Artist() string      { return t.Frames["TPE1"] }
func (t *Tags) Album() string       { return t.Frames["TALB"] }
func (t *Tags) Genre() string       { return t.Frames["TCON"] }
func (t *Tags) Disc() int           { return t.disc }
func (t *Tags) Track() int          { return t.track }
func (t *Tags) Date() time.Time     { return t.date }
func (t *Tags) Composer() string    { return t.Frames["TCOM"] }
func (t *Tags) Notes() string       { return t.Frames["COMM"] }

type Header struct {
	Magic [3]byte
	Major uint8
	Minor uint8
	Flags uint8
	Size  uint32
}

func synchsafe32(n uint32) uint32 {
	m := n & 0x7f
	m |= ((n & 0x7f00) >> 1)
	m |= ((n & 0x7f0000) >> 2)
	m |= ((n & 0x7f000000) >> 3)
	return m
}

type extHeader23 struct {
	Size    uint32
	Flags   uint16
	PadSize uint32
}
type extHeader24 struct {
	Size      uint32
	FlagBytes uint8
	Flags     byte
}

type frameHeader struct {
	Size  uint32
	Flags uint16
}

const Magic = "ID3"

// HeaderSize is the size of the fixed tag header.
const HeaderSize = 10

const (
	// header flags
	flagUnsynchronisation = 1 << 7
	flagExtendedHeader    = 1 << 6
	flagExperimental      = 1 << 5
	flagFooterPresent     = 1 << 4

	// frame format flags (2.4 layout; 2.3 uses the high byte, see frameFlags)
	frameGroupingIdentity    = 1 << 6
	frameCompressed          = 1 << 3
	frameEncrypted           = 1 << 2
	frameUnsynchronisation   = 1 << 1
	frameDataLengthIndicator = 1 << 0

	footerSize = 10
)

var (
	ErrBadHeader   = errors.New("id3v2: bad magic")
	ErrUnknownFlag = errors.New("id3v2: unknown header flag")
	ErrEncryption  = errors.New("id3v2: frame encryption not supported")
)

// Decode decodes an ID3v2 header out of an MP3 stream. It only reads as many
// bytes as it needs to, no more and no less.
//
// The underlying type of the mmtags.Tags returned will be (*Tags).
func Decode(r io.Reader) (mmtags.Tags, error) {
	h, padding, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	// calls from mp3 package should always be bufio.Reader
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	if h.Flags&flagFooterPresent != 0 {
		// we're not using the footer (which is used only to aid in searching
		// for the ID3 tags backwards from EOF), so discard it
		padding += footerSize
	}

	// Operate on entire tag in memory. Simplest way we can reliably limit
	// bytes read from *bufio.Reader (wrapping with limited reader will take
	// chunks at a time and not be accurate).
	tag := make([]byte, h.Size)
	if _, err := io.ReadFull(br, tag); err != nil {
		return nil, errors.Wrap(err, "id3v2: read tag")
	}

	frames, err := readFrames(bytes.NewReader(tag), h)
	if err != nil {
		return nil, errors.Wrap(err, "id3v2: read frames")
	}

	if padding > 0 {
		_, err = io.CopyN(ioutil.Discard, br, int64(padding))
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "id3v2: discard padding")
		}
	}

	return makeTags(h, frames), nil
}

// readHeader reads the tag header and any extended header. The returned
// header's Size covers the frames only; the second result is the number of
// bytes following the frames that belong to the tag.
func readHeader(r io.Reader) (*Header, uint32, error) {
	var (
		esize   uint32
		h       Header
		padding uint32
	)

	err := binary.Read(r, binary.BigEndian, &h)
	if err != nil {
		return nil, 0, errors.Wrap(err, "id3v2: read header")
	}
	if string(h.Magic[:]) != Magic {
		return nil, 0, ErrBadHeader
	}
	h.Size = synchsafe32(h.Size)

	if (h.Flags & flagExtendedHeader) != 0 {
		switch h.Major {
		case 2:
			// in 2.2 this bit means compression, which nobody defined
			return nil, 0, ErrUnknownFlag

		case 3:
			var hh extHeader23
			err = binary.Read(r, binary.BigEndian, &hh)
			if err != nil {
				return nil, 0, errors.Wrap(err, "id3v2: read extended header")
			}
			if hh.Size > 6 {
				// discard CRC if present
				_, err = io.CopyN(ioutil.Discard, r, int64(hh.Size-6))
				if err != nil {
					return nil, 0, errors.Wrap(err, "id3v2: read extended header")
				}
			}
			// header size field in id3v2.3 doesn't include itself
			esize = hh.Size + 4
			if hh.PadSize <= h.Size-esize {
				h.Size -= hh.PadSize
				padding = hh.PadSize
			}

		case 4:
			var hh extHeader24
			err = binary.Read(r, binary.BigEndian, &hh)
			if err != nil {
				return nil, 0, errors.Wrap(err, "id3v2: read extended header")
			}
			hh.Size = synchsafe32(hh.Size)
			if hh.Size < 6 {
				return nil, 0, errors.New("id3v2: extended header too small")
			}

			// for now we're just gonna skip it
			// (the fixed header size is 6)
			_, err = io.CopyN(ioutil.Discard, r, int64(hh.Size-6))
			if err != nil {
				return nil, 0, errors.Wrap(err, "id3v2: read extended header")
			}

			esize = hh.Size
		}
	}

	if esize > h.Size {
		return nil, 0, errors.New("id3v2: extended header larger than tag")
	}
	h.Size -= esize

	return &h, padding, nil
}

var validFramePat = regexp.MustCompile(`^[A-Z0-9]+\x00*$`)

// apparently less than 4 (for ≥2.3) is ok if the end is zero padded
func validFrameName(name []byte) bool {
	return validFramePat.Match(name)
}

// frameFlags maps 2.3 frame flags onto the 2.4 layout.
func frameFlags(major uint8, flags uint16) uint16 {
	if major != 3 {
		return flags
	}
	var f uint16
	if flags&(1<<7) != 0 {
		f |= frameCompressed | frameDataLengthIndicator
	}
	if flags&(1<<6) != 0 {
		f |= frameEncrypted
	}
	if flags&(1<<5) != 0 {
		f |= frameGroupingIdentity
	}
	return f
}

func readFrames(rr *bytes.Reader, h *Header) (map[string]string, error) {
	var (
		frames     = make(map[string]string)
		txxx       = make(map[string]string)
		fh         frameHeader
		frameID    []byte
		headerSize uint32
		pos        = uint32(0)

		// needed to decode 3-byte size descriptor in id3v2.2
		sizeBuf    = make([]byte, 4)
		frameSize  uint32
		allUnsynch = h.Flags&flagUnsynchronisation != 0
	)

	if h.Major == 2 {
		headerSize = 6
		frameID = make([]byte, 3)
	} else {
		headerSize = 10
		frameID = make([]byte, 4)
	}

frameloop:
	for ; pos+headerSize <= h.Size; pos += frameSize + headerSize {
		_, err := io.ReadFull(rr, frameID)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}

		// padding runs to the end of the tag
		if frameID[0] == 0 {
			break
		}

		// seek through any garbage that wasn't reported anywhere
		for !validFrameName(frameID) && pos < h.Size {
			b, err := rr.ReadByte()
			if err != nil {
				if err == io.EOF {
					break frameloop
				}
				return nil, err
			}

			copy(frameID[:len(frameID)-1], frameID[1:])
			frameID[len(frameID)-1] = b
			pos++
		}

		if pos >= h.Size {
			break
		}

		var (
			frameUnsynch = allUnsynch
			compressed   = false
			s            string
			frameIDStr   = string(frameID)
		)

		if h.Major == 2 {
			_, err = io.ReadFull(rr, sizeBuf[1:])
			if err != nil {
				return nil, err
			}

			frameSize = binary.BigEndian.Uint32(sizeBuf)
		} else {
			err = binary.Read(rr, binary.BigEndian, &fh)
			if err != nil {
				return nil, err
			}
			if h.Major >= 4 {
				frameSize = synchsafe32(fh.Size)
			} else {
				frameSize = fh.Size
			}
			flags := frameFlags(h.Major, fh.Flags)

			if flags&frameEncrypted != 0 {
				return nil, ErrEncryption
			}

			frameUnsynch = frameUnsynch || flags&frameUnsynchronisation != 0
			compressed = flags&frameCompressed != 0

			if flags&frameGroupingIdentity != 0 && frameSize > 0 {
				rr.ReadByte()
				frameSize--
			}

			if flags&frameDataLengthIndicator != 0 {
				if frameSize < 4 {
					return nil, errors.Errorf("frame %s too small for data length indicator", frameIDStr)
				}
				_, err = io.ReadFull(rr, sizeBuf)
				if err != nil {
					if err == io.EOF {
						return nil, errors.New("unexpected eof in frame header")
					}
					return nil, err
				}

				frameSize -= 4
			}
		}

		if int64(frameSize) > int64(rr.Len()) {
			return nil, errors.Errorf("frame %s overruns tag (%d bytes)", frameIDStr, frameSize)
		}

		buf := make([]byte, frameSize)
		if _, err = io.ReadFull(rr, buf); err != nil {
			return nil, err
		}
		if compressed {
			buf, err = inflate(buf)
			if err != nil {
				return nil, errors.Wrapf(err, "inflate %s", frameIDStr)
			}
		}

		if len(frameID) == 3 {
			if newID, ok := v22Equiv[frameIDStr]; ok {
				frameIDStr = newID
			}
		}

		switch {
		case frameIDStr == "TXXX":
			if err := decodeTXXX(txxx, buf, frameUnsynch); err != nil {
				log.Print(errors.Wrap(err, "decode TXXX"))
			}
			continue

		case frameIDStr[0] == 'T':
			if len(buf) == 0 {
				continue
			}
			s, err = decodeTextFrame(buf[0], buf[1:], frameUnsynch)
			if err != nil {
				return nil, errors.Wrapf(err, "decode %s", frameIDStr)
			}

			// multiple values are NUL separated in 2.4; keep the first
			if j := strings.IndexByte(s, '\x00'); j > -1 {
				s = s[:j]
			}

		case frameIDStr == "COMM":
			if len(buf) < 4 {
				continue
			}
			enc := buf[0]
			b := bytes.NewBuffer(buf[4:]) // skip encoding and lang code
			if _, err := readTerminatedString(enc, b, frameUnsynch); err != nil {
				log.Print(errors.Wrap(err, "decode COMM description"))
				continue
			}
			s, err = decodeTextFrame(enc, b.Bytes(), frameUnsynch)
			if err != nil {
				return nil, errors.Wrap(err, "decode COMM")
			}

		default:
			// pictures, private data and the rest are not text
			continue
		}

		frames[frameIDStr] = s
	}

	translateTXXXFrames(frames, txxx)

	return frames, nil
}

func inflate(buf []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ioutil.ReadAll(zr)
}

func makeTags(h *Header, frames map[string]string) *Tags {
	t := Tags{
		Header: h,
		Frames: frames,
	}
	var err error

	if TPOS := t.Frames["TPOS"]; TPOS != "" {
		t.disc, t.TotalDiscs, err = parseMultiNumber(TPOS)
		if err != nil {
			log.Print(errors.Wrapf(err, "id3v2: TPOS %q", TPOS))
		}
	}

	if TRCK := t.Frames["TRCK"]; TRCK != "" {
		t.track, t.TotalTracks, err = parseMultiNumber(TRCK)
		if err != nil {
			log.Print(errors.Wrapf(err, "id3v2: TRCK %q", TRCK))
		}
	}

	t.date = parseDate(t.Frames)

	return &t
}
