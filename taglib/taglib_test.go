package taglib

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"ktkr.us/pkg/mmtags"
)

func frame24(id string, body []byte) []byte {
	n := len(body)
	b := append([]byte(id), byte(n>>21&0x7F), byte(n>>14&0x7F), byte(n>>7&0x7F), byte(n&0x7F), 0, 0)
	return append(b, body...)
}

func utf8Frame(id, s string) []byte {
	return frame24(id, append([]byte{3}, s...))
}

func tag24(frames ...[]byte) []byte {
	var body []byte
	for _, f := range frames {
		body = append(body, f...)
	}
	body = append(body, make([]byte, 16)...)
	n := len(body)
	b := []byte{'I', 'D', '3', 4, 0, 0, byte(n >> 21 & 0x7F), byte(n >> 14 & 0x7F), byte(n >> 7 & 0x7F), byte(n & 0x7F)}
	return append(b, body...)
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := ioutil.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func open(path string, media mmtags.MediaType) (mmtags.Object, error) {
	return Subsystem{}.NewObject(mmtags.Options{
		StreamType: mmtags.StreamFile,
		StreamName: path,
		MediaType:  media,
		Decode:     true,
	})
}

func TestNewObject(t *testing.T) {
	data := tag24(
		utf8Frame("TIT2", "Café"),
		utf8Frame("TPE1", "Artist"),
		utf8Frame("TALB", "Album"),
		utf8Frame("TRCK", "5/9"),
		utf8Frame("TXXX", "COMPOSER\x00Composer"),
	)
	data = append(data, 0xFF, 0xFB, 0x90, 0x00)
	obj, err := open(writeFile(t, data), mmtags.MediaSound)
	if err != nil {
		t.Fatal(err)
	}

	var kinds []mmtags.Kind
	var track int32
	for _, e := range obj.MetaData() {
		kinds = append(kinds, e.Kind)
		if e.Kind == mmtags.KindTrackNum {
			track = e.Num
		}
	}
	want := []mmtags.Kind{mmtags.KindTitle, mmtags.KindPerformer, mmtags.KindAlbum, mmtags.KindAuthor, mmtags.KindTrackNum}
	if len(kinds) != len(want) {
		t.Fatalf("kinds %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("entry %d is %v, want %v", i, kinds[i], want[i])
		}
	}
	if track != 5 {
		t.Errorf("track %d", track)
	}
	if e := obj.MetaData()[0]; e.Len() != 16 {
		t.Errorf("title is %d bytes of UTF-32, want 16", e.Len())
	}

	if err := obj.Dispose(); err != nil {
		t.Error(err)
	}
	if err := obj.Dispose(); err != nil {
		t.Errorf("second Dispose: %v", err)
	}
	if obj.MetaData() != nil {
		t.Error("metadata after Dispose")
	}
}

func TestNewObjectErrors(t *testing.T) {
	dir := t.TempDir()
	riff := writeFile(t, []byte("RIFF\x00\x00\x00\x00WAVE"))
	tagged := writeFile(t, tag24(utf8Frame("TIT2", "x")))

	// the library reports an unrecognised file with an unexported error
	if _, err := open(riff, mmtags.MediaAny); err == nil || !strings.Contains(err.Error(), riff) {
		t.Errorf("RIFF file: %v", err)
	}
	if _, err := open(tagged, mmtags.MediaVideo); errors.Cause(err) != mmtags.ErrMediaType {
		t.Errorf("video filter: %v", err)
	}
	if _, err := open(filepath.Join(dir, "missing"), mmtags.MediaAny); err == nil {
		t.Error("missing file opened")
	}
	if _, err := (Subsystem{}).NewObject(mmtags.Options{StreamType: mmtags.StreamFile}); err != mmtags.ErrNoStream {
		t.Errorf("no name: %v", err)
	}
}
