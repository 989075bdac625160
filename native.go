package mmtags

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Native is the Subsystem backed by the formats registered in this package.
type Native struct{}

// NewObject opens the stream named by opts and identifies its format. With
// opts.Decode set the tags are decoded before NewObject returns, so a decoding
// error is reported as a failure to create the object.
func (Native) NewObject(opts Options) (Object, error) {
	if err := CheckOptions(opts); err != nil {
		return nil, err
	}

	f, err := os.Open(opts.StreamName)
	if err != nil {
		return nil, errors.Wrap(err, "mmtags")
	}

	fm := sniff(bufio.NewReader(f))
	if fm.name == "" {
		f.Close()
		return nil, ErrFormat
	}
	media := fm.media
	if fm.classify != nil && opts.MediaType != MediaAny {
		if media, err = classify(f, fm); err != nil {
			f.Close()
			return nil, err
		}
	}
	if !opts.MediaType.Accepts(media) {
		f.Close()
		return nil, errors.Wrapf(ErrMediaType, "%s is %s", fm.name, media)
	}

	o := &object{f: f, format: fm}
	if opts.Decode {
		if err := o.decode(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return o, nil
}

func classify(f *os.File, fm format) (MediaType, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return MediaAny, errors.Wrap(err, "mmtags: rewind")
	}
	media, err := fm.classify(f)
	if err != nil {
		return MediaAny, errors.Wrapf(err, "mmtags: classify %s", fm.name)
	}
	return media, nil
}

type object struct {
	f        *os.File
	format   format
	decoded  bool
	entries  []Entry
	disposed bool
}

func (o *object) rewind() error {
	_, err := o.f.Seek(0, io.SeekStart)
	return errors.Wrap(err, "mmtags: rewind")
}

func (o *object) decode() error {
	o.decoded = true
	if o.format.decodeTags == nil {
		return nil
	}
	if err := o.rewind(); err != nil {
		return err
	}
	t, err := o.format.decodeTags(o.f)
	if err != nil {
		return errors.Wrapf(err, "mmtags: decode %s tags", o.format.name)
	}
	if t != nil {
		o.entries = Entries(t)
	}
	return nil
}

func (o *object) MetaData() []Entry {
	if o.disposed {
		return nil
	}
	if !o.decoded {
		// Without forced decoding a broken tag simply reads as no metadata.
		if err := o.decode(); err != nil {
			return nil
		}
	}
	return o.entries
}

func (o *object) StreamInfo() (Info, error) {
	info := Info{Format: o.format.name}
	if o.disposed {
		return info, os.ErrClosed
	}
	if o.format.decodeMeta == nil {
		return info, ErrFormat
	}
	fi, err := o.f.Stat()
	if err != nil {
		return info, errors.Wrap(err, "mmtags: stat")
	}
	if err := o.rewind(); err != nil {
		return info, err
	}
	m, err := o.format.decodeMeta(o.f, fi.Size())
	if err != nil {
		return info, errors.Wrapf(err, "mmtags: decode %s stream info", o.format.name)
	}
	info.Duration = m.Duration()
	info.Channels = m.NumChannels()
	info.BitRate = m.BitRate()
	info.SampleRate = m.SampleRate()
	return info, nil
}

// Dispose releases the stream. Calls after the first do nothing.
func (o *object) Dispose() error {
	if o.disposed {
		return nil
	}
	o.disposed = true
	o.entries = nil
	return o.f.Close()
}
