// Package mp3 reads MPEG audio frame headers to work out stream properties,
// and registers MPEG audio with mmtags together with the ID3 tag decoders.
package mp3

import (
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
	"ktkr.us/pkg/mmtags/id3/id3v1"
	"ktkr.us/pkg/mmtags/id3/id3v2"
)

var (
	ErrUnsynced      = errors.New("mp3: missing frame sync")
	ErrReserved      = errors.New("mp3: layer or MPEG version code has reserved value")
	ErrBadBitrate    = errors.New("mp3: disallowed bitrate code")
	ErrBadSampleRate = errors.New("mp3: disallowed sample rate code")
)

func init() {
	mmtags.RegisterFormat("MP3 ID3v2.2", "ID3\x02", mmtags.MediaSound, id3v2.Decode, DecodeMetaID3v2)
	mmtags.RegisterFormat("MP3 ID3v2.3", "ID3\x03", mmtags.MediaSound, id3v2.Decode, DecodeMetaID3v2)
	mmtags.RegisterFormat("MP3 ID3v2.4", "ID3\x04", mmtags.MediaSound, id3v2.Decode, DecodeMetaID3v2)
	mmtags.RegisterFormat("MPEG-2 Layer III", "\xFF\xF2", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-2 Layer III", "\xFF\xF3", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-2 Layer II", "\xFF\xF4", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-2 Layer II", "\xFF\xF5", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-2 Layer I", "\xFF\xF6", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-2 Layer I", "\xFF\xF7", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-1 Layer III", "\xFF\xFA", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-1 Layer III", "\xFF\xFB", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-1 Layer II", "\xFF\xFC", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-1 Layer II", "\xFF\xFD", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-1 Layer I", "\xFF\xFE", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
	mmtags.RegisterFormat("MPEG-1 Layer I", "\xFF\xFF", mmtags.MediaSound, id3v1.Decode, DecodeMeta)
}

// AAAAAAAA AAABBCCD EEEEFFGH IIJJKLMM
// 11111111 1111001X

const (
	version2_5      = 0
	versionReserved = 1
	version2        = 2
	version1        = 3

	layerReserved = 0
	layerIII      = 1
	layerII       = 2
	layerI        = 3

	channelStereo      = 0
	channelJointStereo = 1
	channelDualChannel = 2
	channelMono        = 3
)

var (
	bitrates = [4][4][16]int{
		version1: {
			layerI:   {0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, -1},
			layerII:  {0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, -1},
			layerIII: {0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, -1},
		},
		version2: {
			layerI:   {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1},
			layerII:  {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
			layerIII: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
		},
		version2_5: {
			layerI:   {0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, -1},
			layerII:  {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
			layerIII: {0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, -1},
		},
	}

	sampleRates = [4][4]int{
		version1:   {44100, 48000, 32000, -1},
		version2:   {22050, 24000, 16000, -1},
		version2_5: {11025, 12000, 8000, -1},
	}

	samplesPerFrame = [4][4]int{
		version1: {
			layerI:   384,
			layerII:  1152,
			layerIII: 1152,
		},
		version2: {
			layerI:   384,
			layerII:  1152,
			layerIII: 576,
		},
		version2_5: {
			layerI:   384,
			layerII:  1152,
			layerIII: 576,
		},
	}
)

type meta struct {
	duration   time.Duration
	channels   int
	bitrate    int
	samplerate int
	mmtags.Tags
}

func (m *meta) Duration() time.Duration { return m.duration }
func (m *meta) NumChannels() int        { return m.channels }
func (m *meta) BitRate() int            { return m.bitrate }
func (m *meta) SampleRate() int         { return m.samplerate }

type frameHeader struct {
	mpegVersion int
	layer       int
	haveCRC     bool
	bitrate     int
	samplerate  int
	channelMode int
	havePadding bool
	frameSize   int
}

type frameData struct {
	io.LimitedReader
}

func (fd *frameData) Close() error {
	_, err := io.Copy(ioutil.Discard, fd)
	return err
}

type frame struct {
	frameHeader
	*frameData
}
