package mp4

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// Item names of the iTunes metadata list. The leading byte of the
// four-character codes is the MacRoman copyright sign.
const (
	ItemTitle       = "\xa9nam"
	ItemArtist      = "\xa9ART"
	ItemAlbumArtist = "aART"
	ItemAlbum       = "\xa9alb"
	ItemGenre       = "\xa9gen"
	ItemComposer    = "\xa9wrt"
	ItemComment     = "\xa9cmt"
	ItemDate        = "\xa9day"
	ItemTrack       = "trkn"
	ItemDisc        = "disk"
)

// Well-known type indicators in the first four bytes of a data atom.
const (
	typeUTF8    = 1
	typeUTF16BE = 2
)

// Tags is the iTunes item list (ilst) of a movie.
type Tags struct {
	ilst *Atom
}

// data returns the type indicator and the value of the first data atom of
// the named item.
func (t *Tags) data(name string) (uint32, []byte) {
	d := t.ilst.Get(name, "data")
	if d == nil || len(d.Content) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint32(d.Content) & 0xFFFFFF, d.Content[8:]
}

func (t *Tags) text(name string) string {
	typ, b := t.data(name)
	switch typ {
	case typeUTF8:
		return strings.TrimRight(string(b), "\x00")
	case typeUTF16BE:
		s, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
		if err != nil {
			return ""
		}
		return strings.TrimRight(string(s), "\x00")
	}
	return ""
}

// index reads the "n of total" pair stored by trkn and disk.
func (t *Tags) index(name string) int {
	_, b := t.data(name)
	if len(b) < 4 {
		return 0
	}
	return int(binary.BigEndian.Uint16(b[2:4]))
}

func (t *Tags) Title() string       { return t.text(ItemTitle) }
func (t *Tags) AlbumArtist() string { return t.text(ItemAlbumArtist) }
func (t *Tags) Artist() string      { return t.text(ItemArtist) }
func (t *Tags) Album() string       { return t.text(ItemAlbum) }
func (t *Tags) Genre() string       { return t.text(ItemGenre) }
func (t *Tags) Disc() int           { return t.index(ItemDisc) }
func (t *Tags) Track() int          { return t.index(ItemTrack) }
func (t *Tags) Composer() string    { return t.text(ItemComposer) }
func (t *Tags) Notes() string       { return t.text(ItemComment) }

// Date understands the full timestamps written by iTunes as well as bare
// years.
func (t *Tags) Date() time.Time {
	s := t.text(ItemDate)
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d
		}
	}
	if len(s) >= 4 {
		if y, err := strconv.Atoi(s[:4]); err == nil {
			return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}
