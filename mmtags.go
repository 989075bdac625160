// Package mmtags implements a small media subsystem for reading the tags
// embedded in audio files.
//
// Format packages (mp3, vorbis, flac, mp4) register themselves with
// RegisterFormat. A Subsystem opens a file and hands back an Object whose
// metadata port is a list of Entry values, in the spirit of a multimedia
// framework: text payloads are stored as UTF-32BE, integers as int32.
package mmtags

import (
	"time"

	"golang.org/x/text/encoding/unicode/utf32"
)

// SourceCharset is the encoding of every Entry text payload.
const SourceCharset = "UTF-32BE"

type Metadata interface {
	Duration() time.Duration
	NumChannels() int // Number of audio channels.
	// Number of bits per second. This is more of an advisory value than a hard
	// number, but it should be correct for CBR.
	BitRate() int
	SampleRate() int // Number of samples per second.
}

type Tags interface {
	Title() string
	AlbumArtist() string
	Artist() string
	Album() string
	Genre() string
	Disc() int
	Track() int
	Date() time.Time
	Composer() string
	Notes() string
}

// Kind identifies the field an Entry carries. The zero value terminates an
// entry list.
type Kind int

const (
	KindEnd Kind = iota
	KindTitle
	KindPerformer
	KindAlbum
	KindAuthor
	KindTrackNum
	KindOther
)

var kindNames = [...]string{
	KindEnd:       "End",
	KindTitle:     "Title",
	KindPerformer: "Performer",
	KindAlbum:     "Album",
	KindAuthor:    "Author",
	KindTrackNum:  "TrackNum",
	KindOther:     "Other",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Other"
	}
	return kindNames[k]
}

// Entry is one item of an object's metadata port. Text holds UTF-32BE code
// units for string-valued kinds; Num holds the value of integer kinds.
type Entry struct {
	Kind Kind
	Text []byte
	Num  int32
}

// Len returns the length of the text payload in bytes.
func (e Entry) Len() int { return len(e.Text) }

var utf32be = utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)

// TextEntry returns an entry of kind k holding s encoded as UTF-32BE.
func TextEntry(k Kind, s string) Entry {
	b, err := utf32be.NewEncoder().String(s)
	if err != nil {
		return Entry{Kind: k}
	}
	return Entry{Kind: k, Text: []byte(b)}
}

// IntEntry returns an entry of kind k holding n.
func IntEntry(k Kind, n int) Entry {
	return Entry{Kind: k, Num: int32(n)}
}

// Entries converts a decoded tag set into metadata port order: title,
// performer, album, author, track number, then everything else. Fields that
// are empty produce no entry. The result is never nil.
func Entries(t Tags) []Entry {
	es := make([]Entry, 0, 7)
	text := func(k Kind, s string) {
		if s != "" {
			es = append(es, TextEntry(k, s))
		}
	}

	text(KindTitle, t.Title())
	text(KindPerformer, t.Artist())
	text(KindAlbum, t.Album())
	text(KindAuthor, t.Composer())
	if n := t.Track(); n > 0 {
		es = append(es, IntEntry(KindTrackNum, n))
	}
	text(KindOther, t.Genre())
	if aa := t.AlbumArtist(); aa != t.Artist() {
		text(KindOther, aa)
	}
	return es
}
