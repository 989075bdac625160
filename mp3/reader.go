package mp3

import (
	"bufio"
	"encoding/binary"
	"io"
)

type reader struct {
	r *bufio.Reader
}

func newReader(r io.Reader) *reader {
	return &reader{r: ensureBufioReader(r)}
}

// nextFrame skips to the next frame sync, decodes the frame header and side
// information and returns the frame with its main data ready to be read.
func (r *reader) nextFrame() (*frame, error) {
	var err error
	for {
		x, err := r.r.Peek(2)
		if err != nil {
			return nil, err
		}
		if x[0] == 0xFF && x[1]&0xE0 == 0xE0 {
			break
		}
		r.r.ReadByte()
	}
	var header uint32

	err = binary.Read(r.r, binary.BigEndian, &header)
	if err != nil {
		return nil, err
	}

	// frame sync
	if (header >> 21) != 0x7FF {
		return nil, ErrUnsynced
	}
	var (
		mpegVersion = int(header>>19) & 0x3
		layer       = int(header>>17) & 0x3
	)

	if mpegVersion == versionReserved || layer == layerReserved {
		return nil, ErrReserved
	}

	var (
		bitrate    = int(header>>12) & 0xF
		samplerate = int(header>>10) & 0x3
	)

	h := frameHeader{
		mpegVersion: mpegVersion,
		layer:       layer,
		haveCRC:     ((header >> 16) & 0x1) == 0,
		bitrate:     bitrates[mpegVersion][layer][bitrate] * 1000,
		samplerate:  sampleRates[mpegVersion][samplerate],
		channelMode: int(header>>6) & 0x3,
		havePadding: ((header >> 9) & 0x1) == 1,
	}

	// bit 8: private
	// mode extension, copyright, original and emphasis are not needed here

	if h.bitrate < 0 {
		return nil, ErrBadBitrate
	}
	if h.samplerate < 0 {
		return nil, ErrBadSampleRate
	}

	spf := samplesPerFrame[mpegVersion][layer]
	h.frameSize = ((spf * h.bitrate / 8) / h.samplerate)
	if h.havePadding {
		h.frameSize++
	}

	h.frameSize -= 4

	// TODO: verify the CRC-16 (IBM polynomial) instead of skipping it
	if h.haveCRC {
		if _, err = r.r.Discard(2); err != nil {
			return nil, err
		}
		h.frameSize -= 2
	}

	var sideInfoSize int
	if h.mpegVersion == version1 {
		if h.channelMode == channelMono {
			sideInfoSize = 17
		} else {
			sideInfoSize = 32
		}
	} else {
		if h.channelMode == channelMono {
			sideInfoSize = 9
		} else {
			sideInfoSize = 17
		}
	}
	h.frameSize -= sideInfoSize
	if _, err = r.r.Discard(sideInfoSize); err != nil {
		return nil, err
	}

	if h.frameSize < 0 {
		h.frameSize = 0
	}

	return &frame{h, &frameData{
		io.LimitedReader{R: r.r, N: int64(h.frameSize)},
	}}, nil
}
