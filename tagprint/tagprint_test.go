package tagprint

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"ktkr.us/pkg/fmtutil"

	"ktkr.us/pkg/mmtags"
)

// countingRecoder decodes UTF-32BE to UTF-8 and counts its calls. Text listed
// in fail cannot be converted.
type countingRecoder struct {
	sizes    int
	converts int
	fail     map[string]bool
}

func (r *countingRecoder) decode(src []byte) (string, error) {
	var s []rune
	for i := 0; i+4 <= len(src); i += 4 {
		s = append(s, rune(src[i])<<24|rune(src[i+1])<<16|rune(src[i+2])<<8|rune(src[i+3]))
	}
	if r.fail[string(s)] {
		return "", errors.New("unconvertible")
	}
	return string(s), nil
}

func (r *countingRecoder) ByteSize(src []byte, from, to string) (int, error) {
	r.sizes++
	s, err := r.decode(src)
	return len(s), err
}

func (r *countingRecoder) Convert(dst, src []byte, from, to string) (int, error) {
	r.converts++
	s, err := r.decode(src)
	if err != nil {
		return 0, err
	}
	return copy(dst, s), nil
}

type fakeObject struct {
	entries  []mmtags.Entry
	disposed int
}

func (o *fakeObject) MetaData() []mmtags.Entry { return o.entries }
func (o *fakeObject) Dispose() error           { o.disposed++; return nil }

type infoObject struct {
	fakeObject
	info mmtags.Info
	err  error
}

func (o *infoObject) StreamInfo() (mmtags.Info, error) { return o.info, o.err }

type fakeSubsystem struct {
	obj  mmtags.Object
	err  error
	opts mmtags.Options
}

func (s *fakeSubsystem) NewObject(opts mmtags.Options) (mmtags.Object, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.obj, nil
}

func newLogger(w io.Writer) *log.Logger { return log.New(w, "", 0) }

func song() []mmtags.Entry {
	return []mmtags.Entry{
		mmtags.TextEntry(mmtags.KindTitle, "Song"),
		mmtags.TextEntry(mmtags.KindPerformer, "Artist"),
		mmtags.IntEntry(mmtags.KindTrackNum, 3),
		{},
	}
}

func lines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestWalk(t *testing.T) {
	full := []mmtags.Entry{
		mmtags.TextEntry(mmtags.KindAlbum, "Album"),
		mmtags.TextEntry(mmtags.KindTitle, "Song"),
		mmtags.TextEntry(mmtags.KindOther, "Rock"),
		mmtags.TextEntry(mmtags.KindAuthor, "Composer"),
		mmtags.TextEntry(mmtags.KindPerformer, "Artist"),
		mmtags.IntEntry(mmtags.KindTrackNum, 7),
		{},
		mmtags.TextEntry(mmtags.KindTitle, "past the end"),
	}

	for _, test := range []struct {
		name     string
		config   Config
		entries  []mmtags.Entry
		want     []string
		n        int
		converts int
	}{
		{
			name:     "entry order",
			entries:  full,
			want:     []string{"Album: Album", "Title: Song", "Author: Composer", "Performer: Artist", "Track: 7"},
			n:        6,
			converts: 4,
		},
		{
			name:     "quiet",
			config:   Config{Quiet: true},
			entries:  full,
			want:     []string{"Album", "Song", "Composer", "Artist", "7"},
			n:        6,
			converts: 4,
		},
		{
			name:     "suppress text fields",
			config:   Config{NoTitle: true, NoAlbum: true, NoAuthor: true},
			entries:  full,
			want:     []string{"Performer: Artist", "Track: 7"},
			n:        6,
			converts: 1,
		},
		{
			name:     "suppress everything",
			config:   Config{NoTitle: true, NoAlbum: true, NoAuthor: true, NoPerformer: true, NoTrack: true},
			entries:  full,
			n:        6,
			converts: 0,
		},
		{
			name:    "sentinel only",
			entries: []mmtags.Entry{{}},
			n:       0,
		},
		{
			name:    "empty",
			entries: []mmtags.Entry{},
			n:       0,
		},
		{
			name:    "no sentinel",
			entries: []mmtags.Entry{mmtags.IntEntry(mmtags.KindTrackNum, -1)},
			want:    []string{"Track: -1"},
			n:       1,
		},
		{
			name:     "empty text still prints",
			entries:  []mmtags.Entry{{Kind: mmtags.KindTitle}, {}},
			want:     []string{"Title: "},
			n:        1,
			converts: 0,
		},
	} {
		var (
			buf bytes.Buffer
			rc  = new(countingRecoder)
			p   = Printer{W: &buf, Recoder: rc, Config: test.config}
		)
		n := p.Walk(test.entries)
		if n != test.n {
			t.Errorf("%s: Walk returned %d, want %d", test.name, n, test.n)
		}
		if diff := cmp.Diff(test.want, lines(buf.String())); diff != "" {
			t.Errorf("%s: output mismatch (-want +got):\n%s", test.name, diff)
		}
		if rc.converts != test.converts {
			t.Errorf("%s: %d conversions, want %d", test.name, rc.converts, test.converts)
		}
	}
}

func TestSuppressedKindsAreNotConverted(t *testing.T) {
	entries := []mmtags.Entry{
		mmtags.TextEntry(mmtags.KindTitle, "t"),
		mmtags.TextEntry(mmtags.KindPerformer, "p"),
		mmtags.TextEntry(mmtags.KindAlbum, "a"),
		mmtags.TextEntry(mmtags.KindAuthor, "w"),
		{},
	}
	for mask := 0; mask < 16; mask++ {
		c := Config{
			NoTitle:     mask&1 != 0,
			NoPerformer: mask&2 != 0,
			NoAlbum:     mask&4 != 0,
			NoAuthor:    mask&8 != 0,
		}
		var (
			buf bytes.Buffer
			rc  = new(countingRecoder)
			p   = Printer{W: &buf, Recoder: rc, Config: c}
		)
		p.Walk(entries)

		var want []string
		for i, l := range []string{"Title: t", "Performer: p", "Album: a", "Author: w"} {
			if mask&(1<<uint(i)) == 0 {
				want = append(want, l)
			}
		}
		if diff := cmp.Diff(want, lines(buf.String())); diff != "" {
			t.Errorf("mask %04b: output mismatch (-want +got):\n%s", mask, diff)
		}
		if rc.sizes != len(want) || rc.converts != len(want) {
			t.Errorf("mask %04b: %d sizings, %d conversions; want %d each", mask, rc.sizes, rc.converts, len(want))
		}
	}
}

func TestPrintTagConversionFailure(t *testing.T) {
	for _, test := range []struct {
		quiet bool
		want  string
	}{
		{false, "Title: \nPerformer: Artist\n"},
		{true, "\nArtist\n"},
	} {
		var buf bytes.Buffer
		p := Printer{
			W:       &buf,
			Recoder: &countingRecoder{fail: map[string]bool{"Song": true}},
			Config:  Config{Quiet: test.quiet},
		}
		p.Walk([]mmtags.Entry{
			mmtags.TextEntry(mmtags.KindTitle, "Song"),
			mmtags.TextEntry(mmtags.KindPerformer, "Artist"),
			{},
		})
		if got := buf.String(); got != test.want {
			t.Errorf("quiet=%v: got %q, want %q", test.quiet, got, test.want)
		}
	}
}

func TestPrintTagDefaultRecoder(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")
	t.Setenv("LANG", "en_US.UTF-8")

	var buf bytes.Buffer
	p := Printer{W: &buf}
	p.PrintTag(mmtags.TextEntry(mmtags.KindTitle, "Café"), "Title")
	p.PrintTag(mmtags.Entry{Kind: mmtags.KindTitle, Text: []byte{0, 0, 0xD8, 0}}, "Title")
	if got, want := buf.String(), "Title: Café\nTitle: \n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrintIntTag(t *testing.T) {
	for _, test := range []struct {
		quiet bool
		want  string
	}{
		{false, "Track: 7\n"},
		{true, "7\n"},
	} {
		var buf bytes.Buffer
		p := Printer{W: &buf, Recoder: new(countingRecoder), Config: Config{Quiet: test.quiet}}
		p.PrintIntTag(mmtags.IntEntry(mmtags.KindTrackNum, 7), "Track")
		if got := buf.String(); got != test.want {
			t.Errorf("quiet=%v: got %q, want %q", test.quiet, got, test.want)
		}
	}
}

func TestPrintTags(t *testing.T) {
	for _, test := range []struct {
		name    string
		quiet   bool
		entries []mmtags.Entry
		openErr error
		want    []string
		found   bool
	}{
		{
			name:    "found",
			entries: song(),
			want:    []string{"Title: Song", "Performer: Artist", "Track: 3"},
			found:   true,
		},
		{
			name:    "found quiet",
			quiet:   true,
			entries: song(),
			want:    []string{"Song", "Artist", "3"},
			found:   true,
		},
		{
			name: "no port",
			want: []string{"Metadata not found"},
		},
		{
			name:  "no port quiet",
			quiet: true,
		},
		{
			name:    "sentinel only",
			entries: []mmtags.Entry{{}},
			want:    []string{"Metadata not found"},
		},
		{
			name:    "genre only",
			entries: []mmtags.Entry{mmtags.TextEntry(mmtags.KindOther, "Rock"), {}},
			found:   true,
		},
		{
			name:    "open failure",
			openErr: mmtags.ErrFormat,
			want:    []string{"Failed opening song.mp3"},
		},
		{
			name:    "open failure quiet",
			quiet:   true,
			openErr: mmtags.ErrFormat,
		},
	} {
		var (
			buf bytes.Buffer
			obj = &fakeObject{entries: test.entries}
			sub = &fakeSubsystem{obj: obj, err: test.openErr}
			p   = Printer{
				W:       &buf,
				Recoder: new(countingRecoder),
				Config:  Config{File: "song.mp3", Quiet: test.quiet},
			}
		)
		found := p.PrintTags(sub)
		if found != test.found {
			t.Errorf("%s: PrintTags = %v, want %v", test.name, found, test.found)
		}
		if diff := cmp.Diff(test.want, lines(buf.String())); diff != "" {
			t.Errorf("%s: output mismatch (-want +got):\n%s", test.name, diff)
		}

		wantDisposed := 1
		if test.openErr != nil {
			wantDisposed = 0
		}
		if obj.disposed != wantDisposed {
			t.Errorf("%s: disposed %d times, want %d", test.name, obj.disposed, wantDisposed)
		}

		wantOpts := mmtags.Options{
			StreamType: mmtags.StreamFile,
			StreamName: "song.mp3",
			MediaType:  mmtags.MediaSound,
			Decode:     true,
		}
		if diff := cmp.Diff(wantOpts, sub.opts); diff != "" {
			t.Errorf("%s: options mismatch (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestPrintInfo(t *testing.T) {
	info := mmtags.Info{
		Format:     "MP3 (ID3v2.3)",
		Duration:   3*time.Minute + 25*time.Second,
		Channels:   2,
		BitRate:    192000,
		SampleRate: 44100,
	}
	hms := fmtutil.HMS(info.Duration)

	for _, test := range []struct {
		name  string
		quiet bool
		obj   mmtags.Object
		want  []string
	}{
		{
			name: "stream info",
			obj:  &infoObject{fakeObject: fakeObject{entries: song()}, info: info},
			want: []string{
				"Format: MP3 (ID3v2.3)",
				"Duration: " + hms,
				"Bitrate: 192 kbps",
				"Channels: stereo",
				"Sample rate: 44100 Hz",
				"Title: Song",
				"Performer: Artist",
				"Track: 3",
			},
		},
		{
			name:  "stream info quiet",
			quiet: true,
			obj:   &infoObject{fakeObject: fakeObject{entries: song()}, info: info},
			want:  []string{"MP3 (ID3v2.3)", hms, "192 kbps", "stereo", "44100 Hz", "Song", "Artist", "3"},
		},
		{
			name: "info failure",
			obj:  &infoObject{fakeObject: fakeObject{entries: song()}, err: errors.New("broken")},
			want: []string{"Title: Song", "Performer: Artist", "Track: 3"},
		},
		{
			name: "no stream info",
			obj:  &fakeObject{entries: song()},
			want: []string{"Title: Song", "Performer: Artist", "Track: 3"},
		},
	} {
		var (
			buf  bytes.Buffer
			logs bytes.Buffer
			p    = Printer{
				W:       &buf,
				Recoder: new(countingRecoder),
				Config:  Config{File: "x", Quiet: test.quiet, Info: true},
				Log:     newLogger(&logs),
			}
		)
		if !p.PrintTags(&fakeSubsystem{obj: test.obj}) {
			t.Errorf("%s: PrintTags = false", test.name)
		}
		if diff := cmp.Diff(test.want, lines(buf.String())); diff != "" {
			t.Errorf("%s: output mismatch (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestPrintInfoChannels(t *testing.T) {
	for _, test := range []struct {
		channels int
		want     []string
	}{
		{0, nil},
		{1, []string{"mono"}},
		{6, []string{"6"}},
	} {
		var buf bytes.Buffer
		p := Printer{W: &buf, Config: Config{Quiet: true}}
		p.PrintInfo(&infoObject{info: mmtags.Info{Format: "F", Channels: test.channels}})
		want := append([]string{"F", fmtutil.HMS(0)}, test.want...)
		if diff := cmp.Diff(want, lines(buf.String())); diff != "" {
			t.Errorf("%d channels: output mismatch (-want +got):\n%s", test.channels, diff)
		}
	}
}

func TestLogReceivesErrors(t *testing.T) {
	var (
		buf  bytes.Buffer
		logs bytes.Buffer
		p    = Printer{
			W:       &buf,
			Recoder: new(countingRecoder),
			Config:  Config{File: "missing.mp3"},
			Log:     newLogger(&logs),
		}
	)
	p.PrintTags(&fakeSubsystem{err: errors.Wrap(mmtags.ErrNoStream, "open")})
	if !strings.Contains(logs.String(), "no stream name") {
		t.Errorf("log %q does not mention the open error", logs.String())
	}
	if strings.Contains(buf.String(), "no stream name") {
		t.Errorf("error leaked into output %q", buf.String())
	}
}
