package mp3

import (
	"bufio"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
	"ktkr.us/pkg/mmtags/id3/id3v2"
)

// DecodeMeta decodes metadata out of an MP3 stream, attempting to calculate
// the duration from a Xing/Info or VBRI header, or from the file size and
// bitrate of the first frame for CBR streams.
func DecodeMeta(rr io.Reader, fsize int64) (mmtags.Metadata, error) {
	r := newReader(rr)
	f, err := r.nextFrame()
	if err != nil {
		return nil, errors.Wrap(err, "mp3: first frame")
	}

	var numFrames int
	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err == nil {
		switch string(buf) {
		case "Xing", "Info":
			xing, err := decodeXing(f)
			if err != nil {
				return nil, errors.Wrap(err, "mp3: Xing header")
			}
			numFrames = int(xing.NumFrames)

		case "VBRI":
			vbri, err := decodeVBRI(f)
			if err != nil {
				return nil, errors.Wrap(err, "mp3: VBRI header")
			}
			numFrames = int(vbri.NumFrames)
		}
	}

	f.Close()

	var duration time.Duration

	switch {
	case numFrames > 0:
		var (
			spf        = samplesPerFrame[f.mpegVersion][f.layer]
			numSamples = numFrames * spf
			secs       = math.Floor(float64(numSamples)/float64(f.samplerate) + 0.5)
		)
		duration = time.Duration(secs) * time.Second
	case f.bitrate > 0:
		secs := math.Floor(float64(fsize)/float64(f.bitrate/8) + 0.5)
		duration = time.Second * time.Duration(secs)
	}

	m := &meta{
		duration:   duration,
		bitrate:    f.bitrate,
		samplerate: f.samplerate,
	}

	if f.channelMode == channelMono {
		m.channels = 1
	} else {
		m.channels = 2
	}
	return m, nil
}

// DecodeMetaID3v2 decodes the metadata of an MP3 stream assuming it begins
// with an ID3v2 tag.
func DecodeMetaID3v2(r io.Reader, fsize int64) (mmtags.Metadata, error) {
	// discount the bytes read from the id3v2 tag before calculating CBR duration
	rr := ensureBufioReader(r)

	tags, err := id3v2.Decode(rr)
	if err != nil {
		return nil, err
	}
	v2tags := tags.(*id3v2.Tags)
	m, err := DecodeMeta(rr, fsize-int64(v2tags.Size)-id3v2.HeaderSize)
	if err != nil {
		return nil, err
	}
	// Prefer id3v2 over id3v1
	mm := m.(*meta)
	mm.Tags = tags
	return mm, nil
}

func ensureBufioReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}
