// Command tagdump prints everything the format decoders find in audio files:
// stream properties followed by every tag field with its byte length.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"ktkr.us/pkg/fmtutil"

	"ktkr.us/pkg/mmtags"
	_ "ktkr.us/pkg/mmtags/flac"
	_ "ktkr.us/pkg/mmtags/mp3"
	_ "ktkr.us/pkg/mmtags/mp4"
	_ "ktkr.us/pkg/mmtags/vorbis"
)

func main() {
	log.SetFlags(0)
	noMeta := pflag.BoolP("tags-only", "t", false, "skip stream properties")
	pflag.Parse()

	if pflag.NArg() < 1 {
		log.Fatalf("usage: %s [-t] <file>...", os.Args[0])
	}

	failed := false
	for _, name := range pflag.Args() {
		if pflag.NArg() > 1 {
			fmt.Printf("==> %s <==\n", name)
		}
		if err := dump(os.Stdout, name, !*noMeta); err != nil {
			log.Print(err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func dump(w io.Writer, name string, meta bool) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if meta {
		m, format, err := mmtags.DecodeMeta(f)
		if err != nil {
			return errors.Wrap(err, name)
		}
		fmt.Fprintf(w, "%s, %s, %d kbps", format, fmtutil.HMS(m.Duration()), m.BitRate()/1000)
		switch n := m.NumChannels(); n {
		case 0:
		case 1:
			fmt.Fprint(w, ", mono")
		case 2:
			fmt.Fprint(w, ", stereo")
		default:
			fmt.Fprintf(w, ", %d channels", n)
		}
		fmt.Fprintf(w, ", %d Hz\n", m.SampleRate())

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, name)
		}
	}

	tags, format, err := mmtags.DecodeTags(f)
	if err != nil {
		return errors.Wrap(err, name)
	}
	if tags == nil {
		fmt.Fprintf(w, "%s: no tags\n", format)
		return nil
	}

	fmt.Fprintf(w, "Title:       %q (%d)\n", tags.Title(), len(tags.Title()))
	fmt.Fprintf(w, "AlbumArtist: %q (%d)\n", tags.AlbumArtist(), len(tags.AlbumArtist()))
	fmt.Fprintf(w, "Artist:      %q (%d)\n", tags.Artist(), len(tags.Artist()))
	fmt.Fprintf(w, "Album:       %q (%d)\n", tags.Album(), len(tags.Album()))
	fmt.Fprintf(w, "Genre:       %q (%d)\n", tags.Genre(), len(tags.Genre()))
	fmt.Fprintf(w, "Disc:        %d\n", tags.Disc())
	fmt.Fprintf(w, "Track:       %d\n", tags.Track())
	fmt.Fprintf(w, "Date:        %v\n", tags.Date())
	fmt.Fprintf(w, "Composer:    %q (%d)\n", tags.Composer(), len(tags.Composer()))
	fmt.Fprintf(w, "Notes:       %q (%d)\n", tags.Notes(), len(tags.Notes()))
	return nil
}
