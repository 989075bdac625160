package tagprint

import (
	"fmt"

	"ktkr.us/pkg/fmtutil"

	"ktkr.us/pkg/mmtags"
)

// PrintInfo prints the format and stream properties of obj if it can report
// them. Unknown properties are left out.
func (p *Printer) PrintInfo(obj mmtags.Object) {
	ir, ok := obj.(mmtags.InfoReader)
	if !ok {
		p.logf("%T reports no stream information", obj)
		return
	}
	info, err := ir.StreamInfo()
	if err != nil {
		p.logf("%v", err)
		return
	}

	p.line("Format", info.Format)
	p.line("Duration", fmtutil.HMS(info.Duration))
	if info.BitRate > 0 {
		p.line("Bitrate", fmt.Sprintf("%d kbps", info.BitRate/1000))
	}
	switch n := info.Channels; n {
	case 0:
	case 1:
		p.line("Channels", "mono")
	case 2:
		p.line("Channels", "stereo")
	default:
		p.line("Channels", fmt.Sprint(n))
	}
	if info.SampleRate > 0 {
		p.line("Sample rate", fmt.Sprintf("%d Hz", info.SampleRate))
	}
}
