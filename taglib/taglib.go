// Package taglib is an mmtags.Subsystem backed by
// github.com/hjfreyer/taglib-go, which understands ID3v2.3 and ID3v2.4 tags
// only.
package taglib

import (
	"os"
	"time"

	gotaglib "github.com/hjfreyer/taglib-go/taglib"
	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
)

// Subsystem reads files that begin with an ID3v2.3 or ID3v2.4 tag. Anything
// else fails to open.
type Subsystem struct{}

func (Subsystem) NewObject(opts mmtags.Options) (mmtags.Object, error) {
	if err := mmtags.CheckOptions(opts); err != nil {
		return nil, err
	}
	// ID3v2 only ever heads audio
	if !opts.MediaType.Accepts(mmtags.MediaSound) {
		return nil, errors.Wrapf(mmtags.ErrMediaType, "taglib: %s", opts.MediaType)
	}

	f, err := os.Open(opts.StreamName)
	if err != nil {
		return nil, errors.Wrap(err, "taglib")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "taglib")
	}

	t, err := gotaglib.Decode(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "taglib: %s", opts.StreamName)
	}
	return &object{f: f, entries: mmtags.Entries(tags{t})}, nil
}

type object struct {
	f        *os.File
	entries  []mmtags.Entry
	disposed bool
}

func (o *object) MetaData() []mmtags.Entry {
	if o.disposed {
		return nil
	}
	return o.entries
}

func (o *object) Dispose() error {
	if o.disposed {
		return nil
	}
	o.disposed = true
	o.entries = nil
	return o.f.Close()
}

// composerKeys are the user-defined frame descriptions checked for a
// composer, since the generic tag has no such field.
var composerKeys = []string{"COMPOSER", "Composer", "TCOM"}

// tags adapts gotaglib.GenericTag to mmtags.Tags.
type tags struct {
	t gotaglib.GenericTag
}

func (t tags) Title() string       { return t.t.Title() }
func (t tags) AlbumArtist() string { return t.t.Artist() }
func (t tags) Artist() string      { return t.t.Artist() }
func (t tags) Album() string       { return t.t.Album() }
func (t tags) Genre() string       { return t.t.Genre() }
func (t tags) Disc() int           { return int(t.t.Disc()) }
func (t tags) Track() int          { return int(t.t.Track()) }
func (t tags) Date() time.Time     { return t.t.Year() }
func (t tags) Notes() string       { return t.t.Comment() }

func (t tags) Composer() string {
	custom := t.t.CustomFrames()
	for _, k := range composerKeys {
		if v := custom[k]; v != "" {
			return v
		}
	}
	return ""
}
