package tip

import "github.com/rcornwell/npu-cci/block"

// downlineBodyOffset is where body bytes start in a data block: BT at 3,
// DBC at 4, then 3 skipped timestamp/level bytes at 5-7.
const downlineBodyOffset = 8

// Async implements the Async TIP sub-module: character-level upline
// assembly with echo/backspace/EOL handling, and downline DBC expansion
// with parity stripping.
type Async struct {
	t *Table
}

// NewAsync binds an Async processor to its TCB table.
func NewAsync(t *Table) *Async {
	return &Async{t: t}
}

// ProcessDownlineData expands a downline data block's DBC-selected leading
// control sequence, strips parity from the body, drops a trailing
// end-of-record marker (':'), and sends the result to the terminal network.
// last reports whether this was the final fragment (block type HTMSG) of
// the host's message; each fragment is still flushed to the network as it
// arrives.
func (a *Async) ProcessDownlineData(tcb *TCB, data []byte, last bool) {
	if len(data) <= downlineBodyOffset {
		return
	}
	dbc := data[block.OffDBC]
	body := data[downlineBodyOffset:]

	var lead []byte
	switch dbc & 0x07 {
	case 0, 2, 3:
		lead = []byte{'\r', '\n'}
	case 1:
		lead = []byte{'\r', '\n', '\n', '\n'}
	case 4:
		lead = []byte{'\r'}
	}

	stripped := make([]byte, len(body))
	for i, b := range body {
		stripped[i] = b & 0x7F
	}
	if n := len(stripped); n > 0 && stripped[n-1] == ':' {
		stripped = stripped[:n-1]
	}

	out := make([]byte, 0, len(lead)+len(stripped))
	out = append(out, lead...)
	out = append(out, stripped...)
	a.t.net.Send(tcb.PCB, out)
}

// ProcessUplineNormal assembles raw network input into a TCB's upline
// message, handling echo, backspace, end-of-line framing and long-line
// flushing per the TCB's parameter block.
func (a *Async) ProcessUplineNormal(cn int, data []byte, up Upline) {
	tcb := a.t.Get(cn)
	if tcb == nil || tcb.State != Connected {
		return
	}
	p := &tcb.Params

	for _, raw := range data {
		b := raw & 0x7F

		switch {
		case b == 0 || b == '\n' || b == 0x7F: // NUL, LF, DEL
			continue

		case b == p.BS:
			if tcb.in.Len > tcb.inStart {
				tcb.in.Len--
				a.t.net.Send(tcb.PCB, []byte{0x08, ' ', 0x08})
			} else {
				a.t.net.Send(tcb.PCB, []byte{0x07})
			}

		default:
			a.t.net.Send(tcb.PCB, []byte{b})

			if b == p.EOL {
				a.t.frameUpline(tcb, block.BTHTMSG, up)
				tcb.ResetInputBuffer(a.t.dn, a.t.sn)
				tcb.LastOpWasInput = true

				if tcb.DBCNoCursorPos {
					tcb.DBCNoCursorPos = false
				} else {
					switch p.EOLCursorPos {
					case 1:
						a.t.net.Send(tcb.PCB, []byte{'\r'})
					case 2:
						a.t.net.Send(tcb.PCB, []byte{'\n'})
					case 3:
						a.t.net.Send(tcb.PCB, []byte{'\r', '\n'})
					}
				}
				continue
			}

			tcb.in.Append(b)
			if tcb.in.Len-tcb.inStart >= int(p.BlockFactor)*100 {
				a.t.frameUpline(tcb, block.BTHTMSG, up)
				tcb.ResetInputBuffer(a.t.dn, a.t.sn)
			}
		}
	}
}
