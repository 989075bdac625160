package mp3

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrShortVBR    = errors.New("mp3: truncated VBR header")
	ErrVBRIVersion = errors.New("mp3: unsupported VBRI version")
)

// Xing is the header written by Xing and LAME into the first frame, tagged
// "Xing" for VBR streams and "Info" for CBR ones. Fields whose flag is not
// set are left zero.
type Xing struct {
	Flags        uint32
	NumFrames    uint32
	NumFileBytes uint32
	TOC          []byte
	Quality      uint32
}

const (
	xingFrames = 1 << iota
	xingBytes
	xingTOC
	xingQuality
)

const xingTOCSize = 100

// vbrErr names the field that could not be read; running out of frame data
// is reported as ErrShortVBR.
func vbrErr(err error, field string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = ErrShortVBR
	}
	return errors.Wrap(err, field)
}

// decodeXing reads a Xing header from just after its tag.
func decodeXing(r io.Reader) (*Xing, error) {
	x := new(Xing)
	if err := binary.Read(r, binary.BigEndian, &x.Flags); err != nil {
		return nil, vbrErr(err, "flags")
	}
	if x.Flags&xingFrames != 0 {
		if err := binary.Read(r, binary.BigEndian, &x.NumFrames); err != nil {
			return nil, vbrErr(err, "frame count")
		}
	}
	if x.Flags&xingBytes != 0 {
		if err := binary.Read(r, binary.BigEndian, &x.NumFileBytes); err != nil {
			return nil, vbrErr(err, "byte count")
		}
	}
	if x.Flags&xingTOC != 0 {
		x.TOC = make([]byte, xingTOCSize)
		if _, err := io.ReadFull(r, x.TOC); err != nil {
			return nil, vbrErr(err, "TOC")
		}
	}
	if x.Flags&xingQuality != 0 {
		if err := binary.Read(r, binary.BigEndian, &x.Quality); err != nil {
			return nil, vbrErr(err, "quality")
		}
	}
	return x, nil
}

// VBRI is the Fraunhofer encoder's VBR header. The seek table that follows
// it is not read.
type VBRI struct {
	Version           uint16
	Delay             uint16
	Quality           uint16
	NumBytes          uint32
	NumFrames         uint32
	TOCSize           uint16
	TOCScale          uint16
	TOCEntrySize      uint16
	TOCFramesPerEntry uint16
}

// decodeVBRI reads a VBRI header from just after its tag.
func decodeVBRI(r io.Reader) (*VBRI, error) {
	v := new(VBRI)
	if err := binary.Read(r, binary.BigEndian, v); err != nil {
		return nil, vbrErr(err, "VBRI")
	}
	if v.Version != 1 {
		return nil, errors.Wrapf(ErrVBRIVersion, "version %d", v.Version)
	}
	return v, nil
}
