// Package flac reads the metadata blocks at the head of a FLAC stream.
package flac

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
	"ktkr.us/pkg/mmtags/vorbis"
)

const Magic = "fLaC"

func init() {
	mmtags.RegisterFormat("FLAC", Magic, mmtags.MediaSound, DecodeTags, DecodeMeta)
}

type reader struct {
	r *bufio.Reader
}

func newReader(rr io.Reader) *reader {
	ret := &reader{}
	if br, ok := rr.(*bufio.Reader); ok {
		ret.r = br
	} else {
		ret.r = bufio.NewReader(rr)
	}
	ret.r.Discard(len(Magic))
	return ret
}

const (
	blockTypeStreaminfo = iota
	blockTypePadding
	blockTypeApplication
	blockTypeSeektable
	blockTypeVorbisComment
	blockTypeCuesheet
	blockTypePicture
	blockTypeInvalid = 127
)

type metadataBlock interface {
	header() metadataBlockHeader
}

type metadataBlockHeader struct {
	Header byte
	Length uint24
}

func (m metadataBlockHeader) header() metadataBlockHeader {
	return m
}

type streaminfo struct {
	MinBlockSize uint16
	MaxBlockSize uint16
	MinFrameSize uint24
	MaxFrameSize uint24
	SampleRate   uint64
	MD5          [16]byte
}

// Metadata is the STREAMINFO block; it satisfies mmtags.Metadata.
type Metadata struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	sampleRate    int
	numChannels   int
	BitsPerSample int
	NumSamples    uint64
	MD5           [16]byte
}

func (m Metadata) Duration() time.Duration {
	if m.sampleRate == 0 {
		return 0
	}
	durationSec := float64(m.NumSamples) / float64(m.sampleRate)
	return time.Duration(durationSec * float64(time.Second))
}

func (m Metadata) NumChannels() int {
	return m.numChannels
}

func (m Metadata) BitRate() int {
	return m.BitsPerSample * m.sampleRate * m.numChannels
}

func (m Metadata) SampleRate() int {
	return m.sampleRate
}

type uint24 [3]byte

func (n uint24) Uint32() uint32 {
	return uint32(n[0])<<16 | uint32(n[1])<<8 | uint32(n[2])
}

func DecodeTags(rr io.Reader) (mmtags.Tags, error) {
	var (
		lastMeta = false
		h        metadataBlockHeader
	)

	r := newReader(rr)

	for !lastMeta {
		err := binary.Read(r.r, binary.BigEndian, &h)
		if err != nil {
			return nil, errors.Wrap(err, "flac: metadata block header")
		}

		lastMeta = (h.Header>>7)&1 == 1
		blockType := h.Header & 0x7F
		blockSize := int(h.Length.Uint32())

		switch blockType {
		case blockTypeStreaminfo, blockTypePadding, blockTypeApplication, blockTypeSeektable, blockTypeCuesheet, blockTypePicture:
			if _, err := r.r.Discard(blockSize); err != nil {
				return nil, errors.Wrap(err, "flac: skip metadata block")
			}

		case blockTypeVorbisComment:
			_, comment, err := vorbis.ReadComment(r.r)
			if err != nil {
				return nil, errors.Wrap(err, "flac: vorbis comment")
			}
			return comment, nil

		case blockTypeInvalid:
			return nil, errors.New("flac: invalid metadata block type")

		default:
			return nil, errors.Errorf("flac: reserved metadata block type %d", blockType)
		}
	}

	return nil, nil
}

func DecodeMeta(rr io.Reader, fsize int64) (mmtags.Metadata, error) {
	var (
		lastMeta = false
		h        metadataBlockHeader
	)

	r := newReader(rr)

	for !lastMeta {
		err := binary.Read(r.r, binary.BigEndian, &h)
		if err != nil {
			return nil, errors.Wrap(err, "flac: metadata block header")
		}

		lastMeta = (h.Header>>7)&1 == 1
		blockType := h.Header & 0x7F
		blockSize := int(h.Length.Uint32())

		switch blockType {
		case blockTypeVorbisComment, blockTypePadding, blockTypeApplication, blockTypeSeektable, blockTypeCuesheet, blockTypePicture:
			if _, err := r.r.Discard(blockSize); err != nil {
				return nil, errors.Wrap(err, "flac: skip metadata block")
			}

		case blockTypeStreaminfo:
			var b streaminfo
			err = binary.Read(r.r, binary.BigEndian, &b)
			if err != nil {
				return nil, errors.Wrap(err, "flac: STREAMINFO")
			}

			sampleRate := int((b.SampleRate >> 44) & 0xFFFFF)
			numChannels := int((b.SampleRate>>41)&0x7) + 1
			bitsPerSample := int((b.SampleRate>>36)&0x1F) + 1
			numSamples := b.SampleRate & 0xFFFFFFFFF

			m := Metadata{
				MinBlockSize:  b.MinBlockSize,
				MaxBlockSize:  b.MaxBlockSize,
				MinFrameSize:  b.MinFrameSize.Uint32(),
				MaxFrameSize:  b.MaxFrameSize.Uint32(),
				sampleRate:    sampleRate,
				numChannels:   numChannels,
				BitsPerSample: bitsPerSample,
				NumSamples:    numSamples,
				MD5:           b.MD5,
			}
			return m, nil

		case blockTypeInvalid:
			return nil, errors.New("flac: invalid metadata block type")

		default:
			return nil, errors.Errorf("flac: reserved metadata block type %d", blockType)
		}
	}

	return nil, errors.New("flac: no STREAMINFO metadata block found")
}
