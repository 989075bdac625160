// Package tagprint prints the metadata entries of a media object as text
// lines, one per field, converted to the local character set.
package tagprint

import (
	"fmt"
	"io"
	"log"

	"ktkr.us/pkg/mmtags"
	"ktkr.us/pkg/mmtags/charset"
)

// Config selects the file to read and what to print about it.
type Config struct {
	File  string
	Quiet bool // Print bare values and no diagnostics.

	NoTitle     bool
	NoAlbum     bool
	NoPerformer bool
	NoAuthor    bool
	NoTrack     bool

	Info bool // Print stream information before the tags.
}

// A Printer writes entries to W.
type Printer struct {
	W       io.Writer
	Recoder charset.Recoder // charset.Default if nil
	Config  Config

	// Log receives the errors behind empty values and failed opens. Nil
	// discards them.
	Log *log.Logger
}

func (p *Printer) logf(format string, v ...interface{}) {
	if p.Log != nil {
		p.Log.Printf(format, v...)
	}
}

// diag prints a diagnostic line unless quiet.
func (p *Printer) diag(format string, v ...interface{}) {
	if !p.Config.Quiet {
		fmt.Fprintf(p.W, format+"\n", v...)
	}
}

func (p *Printer) line(label, value string) {
	if p.Config.Quiet {
		fmt.Fprintln(p.W, value)
	} else {
		fmt.Fprintf(p.W, "%s: %s\n", label, value)
	}
}

func (p *Printer) recoder() charset.Recoder {
	if p.Recoder == nil {
		return charset.Default
	}
	return p.Recoder
}

// PrintTag prints the text of e. Text that cannot be converted prints as an
// empty value.
func (p *Printer) PrintTag(e mmtags.Entry, label string) {
	p.line(label, p.text(e, label))
}

// PrintIntTag prints the integer value of e.
func (p *Printer) PrintIntTag(e mmtags.Entry, label string) {
	p.line(label, fmt.Sprint(e.Num))
}

func (p *Printer) text(e mmtags.Entry, label string) string {
	rc := p.recoder()
	size, err := rc.ByteSize(e.Text, mmtags.SourceCharset, charset.System)
	if err != nil {
		p.logf("%s: %v", label, err)
		return ""
	}
	if size <= 0 {
		return ""
	}
	buf := make([]byte, size)
	n, err := rc.Convert(buf, e.Text, mmtags.SourceCharset, charset.System)
	if err != nil {
		p.logf("%s: %v", label, err)
		return ""
	}
	return string(buf[:n])
}

// Walk prints entries in order up to the first KindEnd entry and returns
// how many entries preceded it. Suppressed and unknown kinds are skipped
// without being converted.
func (p *Printer) Walk(entries []mmtags.Entry) int {
	c := p.Config
	for i, e := range entries {
		switch e.Kind {
		case mmtags.KindEnd:
			return i
		case mmtags.KindTitle:
			if !c.NoTitle {
				p.PrintTag(e, "Title")
			}
		case mmtags.KindPerformer:
			if !c.NoPerformer {
				p.PrintTag(e, "Performer")
			}
		case mmtags.KindAlbum:
			if !c.NoAlbum {
				p.PrintTag(e, "Album")
			}
		case mmtags.KindAuthor:
			if !c.NoAuthor {
				p.PrintTag(e, "Author")
			}
		case mmtags.KindTrackNum:
			if !c.NoTrack {
				p.PrintIntTag(e, "Track")
			}
		}
	}
	return len(entries)
}

// PrintTags opens Config.File as sound through sub and prints its metadata.
// It reports whether the file had any. The object is disposed before
// PrintTags returns.
func (p *Printer) PrintTags(sub mmtags.Subsystem) bool {
	obj, err := sub.NewObject(mmtags.Options{
		StreamType: mmtags.StreamFile,
		StreamName: p.Config.File,
		MediaType:  mmtags.MediaSound,
		Decode:     true,
	})
	if err != nil {
		p.logf("%v", err)
		p.diag("Failed opening %s", p.Config.File)
		return false
	}
	defer func() {
		if err := obj.Dispose(); err != nil {
			p.logf("dispose: %v", err)
		}
	}()

	if p.Config.Info {
		p.PrintInfo(obj)
	}

	if p.Walk(obj.MetaData()) == 0 {
		p.diag("Metadata not found")
		return false
	}
	return true
}
