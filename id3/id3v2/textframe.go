package id3v2

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var txxxEquiv = map[string]string{
	"ALBUM":             "TALB",
	"BPM":               "TBPM",
	"COMPOSER":          "TCOM",
	"GENRE":             "TCON",
	"COPYRIGHT":         "TCOP",
	"ENCODINGTIME":      "TDEN",
	"PLAYLISTDELAY":     "TDLY",
	"ORIGINALDATE":      "TDOR",
	"DATE":              "TDRC",
	"RELEASEDATE":       "TDRL",
	"TAGGINGDATE":       "TDTG",
	"ENCODEDBY":         "TENC",
	"LYRICIST":          "TEXT",
	"FILETYPE":          "TFLT",
	"CONTENTGROUP":      "TIT1",
	"TITLE":             "TIT2",
	"SUBTITLE":          "TIT3",
	"INITIALKEY":        "TKEY",
	"LANGUAGE":          "TLAN",
	"LENGTH":            "TLEN",
	"MEDIA":             "TMED",
	"MOOD":              "TMOO",
	"ORIGINALALBUM":     "TOAL",
	"ORIGINALFILENAME":  "TOFN",
	"ORIGINALLYRICIST":  "TOLY",
	"ORIGINALARTIST":    "TOPE",
	"OWNER":             "TOWN",
	"ARTIST":            "TPE1",
	"ALBUMARTIST":       "TPE2",
	"CONDUCTOR":         "TPE3",
	"REMIXER":           "TPE4",
	"DISCNUMBER":        "TPOS",
	"PRODUCEDNOTICE":    "TPRO",
	"LABEL":             "TPUB",
	"TRACKNUMBER":       "TRCK",
	"RADIOSTATION":      "TRSN",
	"RADIOSTATIONOWNER": "TRSO",
	"ALBUMSORT":         "TSOA",
	"ARTISTSORT":        "TSOP",
	"TITLESORT":         "TSOT",
	"ALBUMARTISTSORT":   "TSO2",
	"ISRC":              "TSRC",
	"ENCODING":          "TSSE",
}

var v22Equiv = map[string]string{
	"BUF": "RBUF", "CNT": "PCNT", "COM": "COMM", "CRA": "AENC",
	"ETC": "ETCO", "GEO": "GEOB", "IPL": "TIPL", "MCI": "MCDI",
	"MLL": "MLLT", "POP": "POPM", "REV": "RVRB", "SLT": "SYLT",
	"STC": "SYTC", "TAL": "TALB", "TBP": "TBPM", "TCM": "TCOM",
	"TCO": "TCON", "TCP": "TCMP", "TCR": "TCOP", "TDY": "TDLY",
	"TEN": "TENC", "TFT": "TFLT", "TKE": "TKEY", "TLA": "TLAN",
	"TLE": "TLEN", "TMT": "TMED", "TOA": "TOAL", "TOF": "TOFN",
	"TOL": "TOLY", "TOR": "TDOR", "TOT": "TOAL", "TP1": "TPE1",
	"TP2": "TPE2", "TP3": "TPE3", "TP4": "TPE4", "TPA": "TPOS",
	"TPB": "TPUB", "TRC": "TSRC", "TRD": "TDRC", "TRK": "TRCK",
	"TS2": "TSO2", "TSA": "TSOA", "TSC": "TSOC", "TSP": "TSOP",
	"TSS": "TSSE", "TST": "TSOT", "TT1": "TIT1", "TT2": "TIT2",
	"TT3": "TIT3", "TXT": "TOLY", "TXX": "TXXX", "TYE": "TDRC",
	"UFI": "UFID", "ULT": "USLT", "WAF": "WOAF", "WAR": "WOAR",
	"WAS": "WOAS", "WCM": "WCOM", "WCP": "WCOP", "WPB": "WPUB",
	"WXX": "WXXX",
}

const (
	encISO8859_1 = 0x00
	encUTF16_BOM = 0x01
	encUTF16BE   = 0x02
	encUTF8      = 0x03
)

var (
	ErrEmptyText    = errors.New("id3v2: empty text field")
	ErrMalformedBOM = errors.New("id3v2: malformed UTF-16 BOM")
)

// textEncoding returns the decoder for an encoding identifier byte.
// $00 = ISO-8859-1,    null byte terminated
// $01 = UTF-16 w/ BOM, null word terminated
// $02 = UTF-16BE,      null word terminated
// $03 = UTF-8,         null byte terminated
func textEncoding(enc byte) (encoding.Encoding, error) {
	switch enc {
	case encISO8859_1:
		return charmap.ISO8859_1, nil
	case encUTF16_BOM:
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), nil
	case encUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case encUTF8:
		return unicode.UTF8, nil
	}
	return nil, errors.Errorf("id3v2: unknown encoding 0x%02x", enc)
}

func wide(enc byte) bool {
	return enc == encUTF16_BOM || enc == encUTF16BE
}

// readTerminatedString reads a string terminated by a null byte (or a null
// word for UTF-16) from r, leaving r positioned after the terminator.
func readTerminatedString(enc byte, r *bytes.Buffer, unsynch bool) (string, error) {
	var raw []byte
	if wide(enc) {
		b := r.Bytes()
		i := 0
		for ; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				break
			}
		}
		if i+1 >= len(b) {
			return "", errors.New("id3v2: unexpected eof inside terminated string")
		}
		raw = r.Next(i + 2)[:i]
	} else {
		s, err := r.ReadBytes('\x00')
		if err != nil {
			return "", errors.New("id3v2: unexpected eof inside terminated string")
		}
		raw = s[:len(s)-1]
	}
	return decodeTextFrame(enc, raw, unsynch)
}

// decode using first byte as encoding identifier
func decodeTextFrame(enc byte, buf []byte, unsynch bool) (string, error) {
	e, err := textEncoding(enc)
	if err != nil {
		return "", err
	}
	if len(buf) == 0 {
		return "", nil
	}

	if unsynch {
		buf = bytes.Replace(buf, []byte{0xFF, 0x00}, []byte{0xFF}, -1)
	}

	if wide(enc) && len(buf)%2 != 0 {
		// drop a dangling half of a terminator
		buf = buf[:len(buf)-1]
	}

	out, err := e.NewDecoder().Bytes(buf)
	if err != nil {
		if err == unicode.ErrMissingBOM {
			return "", ErrMalformedBOM
		}
		return "", err
	}

	return strings.TrimRight(string(out), "\x00"), nil
}

func decodeTXXX(txxx map[string]string, buf []byte, unsynch bool) error {
	if len(buf) == 0 {
		return ErrEmptyText
	}
	var (
		enc = buf[0]
		b   = bytes.NewBuffer(buf[1:])
	)

	name, err := readTerminatedString(enc, b, unsynch)
	if err != nil {
		return err
	}

	s, err := decodeTextFrame(enc, b.Bytes(), unsynch)
	if err != nil {
		return err
	}

	txxx[strings.ToUpper(name)] = s
	return nil
}

// translateTXXXFrames fills standard frames from well-known TXXX
// descriptions. Real frames win.
func translateTXXXFrames(frames map[string]string, txxx map[string]string) {
	for key, val := range txxx {
		frameID, ok := txxxEquiv[key]
		if !ok {
			continue
		}
		if _, ok := frames[frameID]; !ok {
			frames[frameID] = val
		}
	}
}

// parseMultiNumber parses "n" or "n/m" style numbers as found in TRCK and
// TPOS.
func parseMultiNumber(s string) (n1, n2 int, err error) {
	arr := strings.FieldsFunc(s, func(r rune) bool { return r < '0' || r > '9' })

	if len(arr) > 0 {
		n1, err = strconv.Atoi(arr[0])
		if err != nil {
			return
		}
	} else {
		err = errors.Errorf("no number in %q", s)
		return
	}

	if len(arr) >= 2 {
		n2, err = strconv.Atoi(arr[1])
	}

	return
}

func parseDate(frames map[string]string) time.Time {
	TYER := frames["TYER"]
	TDAT := frames["TDAT"]
	TIME := frames["TIME"]

	if TYER != "" {
		if len(TDAT) == 4 {
			if TIME == "" {
				TIME = "0000"
			}
			// TDAT is DDMM
			if tm, err := time.Parse("200601021504", TYER+TDAT[2:]+TDAT[:2]+TIME); err == nil {
				return tm
			}
		}
		if tm, err := time.Parse("2006", TYER); err == nil {
			return tm
		}
	}

	// last resort brute force
	dateFrames := []string{"TDRC", "TDRL", "TDOR", "TYER"}

	for _, frame := range dateFrames {
		if val, ok := frames[frame]; ok {
			if tm, err := tryAllDateFormats(val); err == nil {
				return tm
			}
		}
	}

	return time.Time{}
}

var dateFormats = []string{
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
	"2006-01",
	"2006",
	"2006/01/02",
	"2006.01.02",
}

func tryAllDateFormats(s string) (tm time.Time, err error) {
	for _, f := range dateFormats {
		tm, err = time.Parse(f, s)
		if err == nil {
			return
		}
	}
	return
}
