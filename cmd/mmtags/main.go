// Command mmtags prints the title, performer, album, author and track number
// stored in an audio file.
//
// Usage:
//
//	mmtags [QUIET] [NOTITLE] [NOALBUM] [NOPERFORMER] [NOAUTHOR] [NOTRACK] [INFO] FILE
//
// Switches may also be given as GNU-style flags (--quiet, --notitle, ...).
// The exit status is 0 if metadata was found and 20 otherwise.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"ktkr.us/pkg/mmtags"
	_ "ktkr.us/pkg/mmtags/flac"
	_ "ktkr.us/pkg/mmtags/mp3"
	_ "ktkr.us/pkg/mmtags/mp4"
	"ktkr.us/pkg/mmtags/tagfile"
	"ktkr.us/pkg/mmtags/taglib"
	"ktkr.us/pkg/mmtags/tagprint"
	_ "ktkr.us/pkg/mmtags/vorbis"
)

const (
	exitOK    = 0
	exitUsage = 2
	exitFail  = 20
)

var backends = map[string]mmtags.Subsystem{
	"native": mmtags.Native{},
	"tag":    tagfile.Subsystem{},
	"taglib": taglib.Subsystem{},
}

func main() {
	log.SetFlags(0)
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var (
		c       tagprint.Config
		backend string
		debug   bool
	)

	fs := newFlagSet(&c, &backend, &debug)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: mmtags [switches] FILE")
		fs.PrintDefaults()
	}

	args, err := keywords(fs, args)
	if err != nil {
		fmt.Fprintf(stderr, "mmtags: %v\n", err)
		return exitUsage
	}
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitOK
		}
		return exitUsage
	}

	switch fs.NArg() {
	case 0:
	case 1:
		if c.File != "" {
			fmt.Fprintln(stderr, "mmtags: more than one file given")
			return exitUsage
		}
		c.File = fs.Arg(0)
	default:
		fmt.Fprintln(stderr, "mmtags: more than one file given")
		return exitUsage
	}

	sub, ok := backends[backend]
	if !ok {
		fmt.Fprintf(stderr, "mmtags: unknown backend %q\n", backend)
		return exitUsage
	}

	if c.File == "" {
		if !c.Quiet {
			fmt.Fprintln(stdout, "No file specified")
		}
		return exitFail
	}

	p := &tagprint.Printer{W: stdout, Config: c}
	if debug {
		p.Log = log.New(stderr, "mmtags: ", 0)
	}
	if !p.PrintTags(sub) {
		return exitFail
	}
	return exitOK
}

func newFlagSet(c *tagprint.Config, backend *string, debug *bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet("mmtags", pflag.ContinueOnError)
	fs.StringVar(&c.File, "file", "", "audio `file` to read")
	fs.BoolVarP(&c.Quiet, "quiet", "q", false, "print values only, without labels or diagnostics")
	fs.BoolVar(&c.NoTitle, "notitle", false, "do not print the title")
	fs.BoolVar(&c.NoAlbum, "noalbum", false, "do not print the album")
	fs.BoolVar(&c.NoPerformer, "noperformer", false, "do not print the performer")
	fs.BoolVar(&c.NoAuthor, "noauthor", false, "do not print the author")
	fs.BoolVar(&c.NoTrack, "notrack", false, "do not print the track number")
	fs.BoolVar(&c.Info, "info", false, "print format, duration and stream properties first")
	fs.StringVar(backend, "backend", "native", "tag reader: "+strings.Join(backendNames(), ", "))
	fs.BoolVar(debug, "debug", false, "log why values are empty or files fail to open")
	return fs
}

// keywords rewrites template-style arguments into flags: a bare word naming
// a boolean switch in any case becomes --switch, and FILE <path> or
// FILE=<path> becomes --file=<path>. Everything after "--" is left alone.
// FILE without a path is an error.
func keywords(fs *pflag.FlagSet, args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(out, args[i:]...), nil
		}
		if strings.HasPrefix(a, "-") {
			out = append(out, a)
			continue
		}

		key, value, hasValue := strings.Cut(a, "=")
		name := strings.ToLower(key)
		if name == "file" {
			switch {
			case hasValue:
				out = append(out, "--file="+value)
				continue
			case i+1 < len(args):
				i++
				out = append(out, "--file="+args[i])
				continue
			default:
				return nil, errors.Errorf("keyword %s needs a file", key)
			}
		}
		if f := fs.Lookup(name); f != nil && !hasValue && f.Value.Type() == "bool" {
			out = append(out, "--"+name)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
