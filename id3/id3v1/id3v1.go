// Package id3v1 reads the fixed 128-byte ID3v1 (and v1.1) tag found at the end
// of MP3 files.
package id3v1

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"ktkr.us/pkg/mmtags"
)

const (
	Size  = 128
	Magic = "TAG"
)

var genres = []string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk", "Grunge",
	"Hip-Hop", "Jazz", "Metal", "New Age", "Oldies", "Other", "Pop", "R&B",
	"Rap", "Reggae", "Rock", "Techno", "Industrial", "Alternative", "Ska",
	"Death Metal", "Pranks", "Soundtrack", "Euro-Techno", "Ambient", "Trip-Hop",
	"Vocal", "Jazz+Funk", "Fusion", "Trance", "Classical", "Instrumental", "Acid",
	"House", "Game", "Sound Clip", "Gospel", "Noise", "Alternative Rock", "Bass",
	"Soul", "Punk", "Space", "Meditative", "Instrumental Pop", "Instrumental Rock",
	"Ethnic", "Gothic", "Darkwave", "Techno-Industrial", "Electronic", "Pop-Folk",
	"Eurodance", "Dream", "Southern Rock", "Comedy", "Cult", "Gangsta", "Top 40",
	"Christian Rap", "Pop/Funk", "Jungle", "Native US", "Cabaret", "New Wave",
	"Psychadelic", "Rave", "Showtunes", "Trailer", "Lo-Fi", "Tribal", "Acid Punk",
	"Acid Jazz", "Polka", "Retro", "Musical", "Rock & Roll", "Hard Rock", "Folk",
	"Folk-Rock", "National Folk", "Swing", "Fast Fusion", "Bebop", "Latin",
	"Revival", "Celtic", "Bluegrass", "Avantgarde", "Gothic Rock",
	"Progressive Rock", "Psychedelic Rock", "Symphonic Rock", "Slow Rock",
	"Big Band", "Chorus", "Easy Listening", "Acoustic", "Humour", "Speech",
	"Chanson", "Opera", "Chamber Music", "Sonata", "Symphony", "Booty Bass",
	"Primus", "Porn Groove", "Satire", "Slow Jam", "Club", "Tango", "Samba",
	"Folklore", "Ballad", "Power Ballad", "Rhytmic Soul", "Freestyle", "Duet",
	"Punk Rock", "Drum Solo", "Acapella", "Euro-House", "Dance Hall", "Goa",
	"Drum & Bass",
}

type Tag struct {
	title   string
	artist  string
	album   string
	Year    int
	comment string
	track   int
	genre   string
}

func (t *Tag) Title() string       { return t.title }
func (t *Tag) AlbumArtist() string { return t.artist }
func (t *Tag) Artist() string      { return t.artist }
func (t *Tag) Album() string       { return t.album }
func (t *Tag) Genre() string       { return t.genre }
func (t *Tag) Disc() int           { return 1 }
func (t *Tag) Track() int          { return t.track }
func (t *Tag) Date() time.Time {
	if t.Year == 0 {
		return time.Time{}
	}
	return time.Date(t.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
func (t *Tag) Composer() string { return "" }
func (t *Tag) Notes() string    { return t.comment }

type tag struct {
	Title   [30]byte
	Artist  [30]byte
	Album   [30]byte
	Year    [4]byte
	Comment [28]byte
	// Zero followed by a nonzero track marks ID3v1.1; otherwise both bytes
	// belong to the comment.
	Zero       byte
	AlbumTrack byte
	Genre      byte
}

// Decode reads the ID3v1 tag at the end of r. If r is an io.Seeker only the
// last Size bytes are read; otherwise r is consumed to the end. A stream
// without a tag yields nil Tags and a nil error.
func Decode(r io.Reader) (mmtags.Tags, error) {
	var t tag

	if seeker, ok := r.(io.Seeker); ok {
		end, err := seeker.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errors.Wrap(err, "id3v1")
		}
		if end < Size {
			return nil, nil
		}
		if _, err = seeker.Seek(end-Size, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "id3v1")
		}
	} else {
		tail, err := seekEnd(r, Size)
		if err != nil {
			return nil, err
		}
		if len(tail) < Size {
			return nil, nil
		}
		r = bytes.NewReader(tail)
	}
	buf := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, buf); err != nil || string(buf) != Magic {
		return nil, nil
	}
	if err := binary.Read(r, binary.LittleEndian, &t); err != nil {
		return nil, errors.Wrap(err, "id3v1")
	}

	var genre string
	if int(t.Genre) < len(genres) {
		genre = genres[t.Genre]
	}
	// Blank or garbage years are common; they just mean "unknown".
	year, _ := strconv.Atoi(strings.TrimSpace(trimString(t.Year[:])))

	comment := t.Comment[:]
	track := 0
	if t.Zero == 0 && t.AlbumTrack != 0 {
		track = int(t.AlbumTrack)
	} else {
		comment = append(comment, t.Zero, t.AlbumTrack)
	}

	return &Tag{
		title:   trimString(t.Title[:]),
		artist:  trimString(t.Artist[:]),
		album:   trimString(t.Album[:]),
		Year:    year,
		comment: trimString(comment),
		track:   track,
		genre:   genre,
	}, nil
}

// seekEnd consumes r and returns its last pos bytes.
func seekEnd(r io.Reader, pos int) ([]byte, error) {
	var (
		tail []byte
		buf  = make([]byte, 1<<15)
	)

	for {
		n, err := r.Read(buf)
		tail = append(tail, buf[:n]...)
		if len(tail) > pos {
			tail = append(tail[:0], tail[len(tail)-pos:]...)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "id3v1")
		}
	}

	return tail, nil
}

// trimString cuts s at the first NUL, drops trailing space padding and
// decodes the remaining ISO-8859-1 bytes.
func trimString(s []byte) string {
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	s = bytes.TrimRight(s, " ")
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(s)
	if err != nil {
		return string(s)
	}
	return string(out)
}
