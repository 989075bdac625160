package main

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ktkr.us/pkg/fmtutil"

	"ktkr.us/pkg/mmtags/tagprint"
)

func frame23(id, text string) []byte {
	b := []byte(id)
	b = binary.BigEndian.AppendUint32(b, uint32(len(text)+1))
	b = append(b, 0, 0, 0) // flags, ISO-8859-1
	return append(b, text...)
}

func id3Tag(frames ...[]byte) []byte {
	var body []byte
	for _, f := range frames {
		body = append(body, f...)
	}
	body = append(body, make([]byte, 16)...)
	n := len(body)
	b := []byte{'I', 'D', '3', 3, 0, 0, byte(n>>21) & 0x7f, byte(n>>14) & 0x7f, byte(n>>7) & 0x7f, byte(n) & 0x7f}
	return append(b, body...)
}

// mpegFrame is a 128 kbps 44.1 kHz stereo MPEG-1 Layer III frame with a
// Xing header announcing 1000 frames.
func mpegFrame() []byte {
	b := make([]byte, 417)
	copy(b, "\xFF\xFB\x90\x00")
	copy(b[36:], "Xing\x00\x00\x00\x01")
	binary.BigEndian.PutUint32(b[44:], 1000)
	return b
}

type files struct {
	tagged, untagged, text, missing string
}

func setup(t *testing.T) files {
	t.Helper()
	t.Setenv("LC_ALL", "en_US.UTF-8")

	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		if err := ioutil.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	tag := id3Tag(
		frame23("TIT2", "Song"),
		frame23("TPE1", "Artist"),
		frame23("TALB", "Album"),
		frame23("TCOM", "Composer"),
		frame23("TRCK", "3"),
	)
	return files{
		tagged:   write("tagged.mp3", append(tag, mpegFrame()...)),
		untagged: write("untagged.mp3", mpegFrame()),
		text:     write("notes.txt", []byte("not audio at all")),
		missing:  filepath.Join(dir, "missing.mp3"),
	}
}

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun(t *testing.T) {
	f := setup(t)
	for _, test := range []struct {
		name string
		args []string
		code int
		out  string
	}{
		{
			name: "all fields",
			args: []string{f.tagged},
			out:  "Title: Song\nPerformer: Artist\nAlbum: Album\nAuthor: Composer\nTrack: 3\n",
		},
		{
			name: "keywords",
			args: []string{"QUIET", "NOTITLE", "FILE=" + f.tagged},
			out:  "Artist\nAlbum\nComposer\n3\n",
		},
		{
			name: "keyword with separate file",
			args: []string{"noperformer", "NoAuthor", "FILE", f.tagged},
			out:  "Title: Song\nAlbum: Album\nTrack: 3\n",
		},
		{
			name: "flags",
			args: []string{"-q", "--noalbum", "--notrack", "--file", f.tagged},
			out:  "Song\nArtist\nComposer\n",
		},
		{
			name: "everything suppressed",
			args: []string{"NOTITLE", "NOALBUM", "NOPERFORMER", "NOAUTHOR", "NOTRACK", f.tagged},
			out:  "",
		},
		{
			name: "other backend",
			args: []string{"--backend", "tag", f.tagged},
			out:  "Title: Song\nPerformer: Artist\nAlbum: Album\nAuthor: Composer\nTrack: 3\n",
		},
		{
			name: "no file",
			code: exitFail,
			out:  "No file specified\n",
		},
		{
			name: "no file quiet",
			args: []string{"QUIET"},
			code: exitFail,
		},
		{
			name: "missing",
			args: []string{f.missing},
			code: exitFail,
			out:  "Failed opening " + f.missing + "\n",
		},
		{
			name: "missing quiet",
			args: []string{"--quiet", f.missing},
			code: exitFail,
		},
		{
			name: "not audio",
			args: []string{f.text},
			code: exitFail,
			out:  "Failed opening " + f.text + "\n",
		},
		{
			name: "untagged",
			args: []string{f.untagged},
			code: exitFail,
			out:  "Metadata not found\n",
		},
		{
			name: "untagged quiet",
			args: []string{"QUIET", f.untagged},
			code: exitFail,
		},
		{name: "unknown flag", args: []string{"--bogus", f.tagged}, code: exitUsage},
		{name: "two files", args: []string{f.tagged, f.untagged}, code: exitUsage},
		{name: "file twice", args: []string{"FILE=" + f.tagged, f.untagged}, code: exitUsage},
		{name: "unknown backend", args: []string{"--backend=nope", f.tagged}, code: exitUsage},
		{name: "FILE without a file", args: []string{"QUIET", "FILE"}, code: exitUsage},
		{name: "help", args: []string{"--help"}, code: exitOK},
	} {
		code, out, _ := runCmd(test.args...)
		if code != test.code {
			t.Errorf("%s: exit %d, want %d", test.name, code, test.code)
		}
		if out != test.out {
			t.Errorf("%s: output\n%q\nwant\n%q", test.name, out, test.out)
		}
	}
}

func TestRunInfo(t *testing.T) {
	f := setup(t)
	code, out, _ := runCmd("INFO", "NOALBUM", f.tagged)
	if code != exitOK {
		t.Errorf("exit %d", code)
	}
	for _, want := range []string{
		"Format: MP3 ID3v2.3\n",
		"Duration: " + fmtutil.HMS(26*time.Second) + "\n",
		"Channels: stereo\n",
		"Sample rate: 44100 Hz\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q is missing %q", out, want)
		}
	}
	if !strings.HasPrefix(out, "Format: ") {
		t.Errorf("info does not come first: %q", out)
	}
	if !strings.HasSuffix(out, "Title: Song\nPerformer: Artist\nAuthor: Composer\nTrack: 3\n") {
		t.Errorf("tags do not follow info: %q", out)
	}
}

func TestRunDebug(t *testing.T) {
	f := setup(t)
	code, out, errOut := runCmd("--debug", f.missing)
	if code != exitFail {
		t.Errorf("exit %d", code)
	}
	if out != "Failed opening "+f.missing+"\n" {
		t.Errorf("output %q", out)
	}
	if !strings.HasPrefix(errOut, "mmtags: ") || !strings.Contains(errOut, "missing.mp3") {
		t.Errorf("log %q", errOut)
	}

	if _, _, errOut := runCmd(f.missing); errOut != "" {
		t.Errorf("logged without --debug: %q", errOut)
	}
}

func TestKeywords(t *testing.T) {
	for _, test := range []struct {
		in, want []string
	}{
		{[]string{"QUIET", "song.mp3"}, []string{"--quiet", "song.mp3"}},
		{[]string{"file=a b.mp3"}, []string{"--file=a b.mp3"}},
		{[]string{"FILE", "NOTITLE"}, []string{"--file=NOTITLE"}},
		{[]string{"--", "FILE"}, []string{"--", "FILE"}},
		{[]string{"backend", "x"}, []string{"backend", "x"}},
		{[]string{"--", "QUIET"}, []string{"--", "QUIET"}},
		{[]string{"-q", "Info"}, []string{"-q", "--info"}},
	} {
		var (
			c       tagprint.Config
			backend string
			debug   bool
		)
		got, err := keywords(newFlagSet(&c, &backend, &debug), test.in)
		if err != nil {
			t.Errorf("keywords(%q): %v", test.in, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(test.want, "|") {
			t.Errorf("keywords(%q) = %q, want %q", test.in, got, test.want)
		}
	}

	for _, in := range [][]string{{"FILE"}, {"QUIET", "file"}} {
		var (
			c       tagprint.Config
			backend string
			debug   bool
		)
		if got, err := keywords(newFlagSet(&c, &backend, &debug), in); err == nil {
			t.Errorf("keywords(%q) = %q, want an error", in, got)
		}
	}
}
