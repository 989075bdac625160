// Package tagfile is an mmtags.Subsystem backed by github.com/dhowden/tag.
package tagfile

import (
	"os"
	"time"

	"github.com/dhowden/tag"
	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
)

// Subsystem reads ID3v1, ID3v2, MP4, FLAC, Ogg and DSF tags. Every file type
// it identifies is sound.
type Subsystem struct{}

func (Subsystem) NewObject(opts mmtags.Options) (mmtags.Object, error) {
	if err := mmtags.CheckOptions(opts); err != nil {
		return nil, err
	}

	f, err := os.Open(opts.StreamName)
	if err != nil {
		return nil, errors.Wrap(err, "tagfile")
	}

	// the whole tag is always read; Decode makes no difference here
	m, err := tag.ReadFrom(f)
	switch {
	case err == tag.ErrNoTagsFound:
		m = nil
	case err != nil:
		f.Close()
		return nil, errors.Wrap(err, "tagfile")
	}

	// untagged files are taken as sound; only an unidentified container is not
	media := mmtags.MediaSound
	if m != nil && m.FileType() == tag.UnknownFileType {
		media = mmtags.MediaAny
	}
	if !opts.MediaType.Accepts(media) {
		f.Close()
		return nil, errors.Wrapf(mmtags.ErrMediaType, "tagfile: %s", opts.StreamName)
	}

	o := &object{f: f, m: m}
	if m != nil {
		o.entries = mmtags.Entries(tags{m})
	}
	return o, nil
}

type object struct {
	f        *os.File
	m        tag.Metadata
	entries  []mmtags.Entry
	disposed bool
}

func (o *object) MetaData() []mmtags.Entry {
	if o.disposed {
		return nil
	}
	return o.entries
}

// StreamInfo reports the file type and tag format only; the library does not
// look at the stream.
func (o *object) StreamInfo() (mmtags.Info, error) {
	if o.m == nil {
		return mmtags.Info{}, tag.ErrNoTagsFound
	}
	return mmtags.Info{Format: string(o.m.FileType()) + " (" + string(o.m.Format()) + ")"}, nil
}

func (o *object) Dispose() error {
	if o.disposed {
		return nil
	}
	o.disposed = true
	o.entries = nil
	return o.f.Close()
}

// tags adapts tag.Metadata to mmtags.Tags.
type tags struct {
	m tag.Metadata
}

func (t tags) Title() string       { return t.m.Title() }
func (t tags) AlbumArtist() string { return t.m.AlbumArtist() }
func (t tags) Artist() string      { return t.m.Artist() }
func (t tags) Album() string       { return t.m.Album() }
func (t tags) Genre() string       { return t.m.Genre() }
func (t tags) Composer() string    { return t.m.Composer() }
func (t tags) Notes() string       { return t.m.Comment() }

func (t tags) Disc() int {
	n, _ := t.m.Disc()
	return n
}

func (t tags) Track() int {
	n, _ := t.m.Track()
	return n
}

func (t tags) Date() time.Time {
	y := t.m.Year()
	if y <= 0 {
		return time.Time{}
	}
	return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
}
