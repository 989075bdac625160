package mmtags

import (
	"time"

	"github.com/pkg/errors"
)

// StreamFile selects a local file as the stream source.
const StreamFile = "file.stream"

var (
	ErrStreamType = errors.New("mmtags: unsupported stream type")
	ErrNoStream   = errors.New("mmtags: no stream name")
)

// Options describe the object to create.
type Options struct {
	StreamType string    // Stream source, e.g. StreamFile.
	StreamName string    // Path or address understood by the stream source.
	MediaType  MediaType // Only content of this type is accepted.
	// Decode forces enough processing at creation time that the metadata
	// port is populated.
	Decode bool
}

// A Subsystem creates media objects.
type Subsystem interface {
	NewObject(opts Options) (Object, error)
}

// An Object is one opened media stream. Its metadata is valid until Dispose.
type Object interface {
	// MetaData returns the metadata port. A nil slice means the stream has
	// no metadata at all.
	MetaData() []Entry
	Dispose() error
}

// InfoReader is implemented by objects that can report technical information
// about their stream.
type InfoReader interface {
	StreamInfo() (Info, error)
}

// Info is the technical description of a stream.
type Info struct {
	Format     string
	Duration   time.Duration
	Channels   int
	BitRate    int // Bits per second.
	SampleRate int // Samples per second.
}

// CheckOptions validates the stream options shared by every file-backed
// subsystem.
func CheckOptions(opts Options) error {
	if opts.StreamType != StreamFile {
		return errors.Wrapf(ErrStreamType, "%q", opts.StreamType)
	}
	if opts.StreamName == "" {
		return ErrNoStream
	}
	return nil
}
