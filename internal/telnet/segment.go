package telnet

type segmentKind int

const (
	segmentPlain segmentKind = 0 + iota
	segmentCommand
	segmentNegotiation
	segmentSubnegotiation
)

// segment is a slice of the parser buffer. It is only valid until the buffer
// is compacted at the end of Receive.
type segment struct {
	kind segmentKind
	data []byte

	// compressed is set on an MCCP start subnegotiation; rest holds every
	// byte after it, none of which were scanned.
	compressed bool
	rest       []byte
}

type scanState int

const (
	scanPlain scanState = 0 + iota
	scanIAC
	scanNegotiation
	scanSubnegotiation
	scanSubnegotiationIAC
)

// segmentBuffer splits buf into segments in wire order. The returned pending
// slice is an IAC sequence that was started but not finished and must be
// scanned again once more bytes arrive.
//
// Escaped IAC IAC pairs stay inside plain segments. A subnegotiation ends at
// the first IAC SE that is not part of an escaped pair.
func segmentBuffer(buf []byte) (segs []segment, pending []byte) {
	var (
		state    = scanPlain
		plainAt  int // start of the current plain run
		cmdAt    int // start of the current IAC sequence
		complete = func(kind segmentKind, end int) {
			segs = appendPlain(segs, buf[plainAt:cmdAt])
			segs = append(segs, segment{kind: kind, data: buf[cmdAt:end]})
			plainAt = end
			state = scanPlain
		}
	)

	for i := 0; i < len(buf); i++ {
		b := buf[i]
		switch state {
		case scanPlain:
			if b == IAC {
				cmdAt = i
				state = scanIAC
			}
		case scanIAC:
			switch {
			case b == IAC:
				state = scanPlain
			case b == SB:
				state = scanSubnegotiation
			case b == WILL, b == WONT, b == DO, b == DONT, b < EOR:
				state = scanNegotiation
			default:
				complete(segmentCommand, i+1)
			}
		case scanNegotiation:
			complete(segmentNegotiation, i+1)
		case scanSubnegotiation:
			if b == IAC {
				state = scanSubnegotiationIAC
			}
		case scanSubnegotiationIAC:
			switch b {
			case SE:
				if frame := buf[cmdAt : i+1]; len(frame) >= 5 && isCompressionOption(frame[2]) {
					segs = appendPlain(segs, buf[plainAt:cmdAt])
					segs = append(segs, segment{
						kind:       segmentSubnegotiation,
						data:       frame,
						compressed: true,
						rest:       buf[i+1:],
					})
					return segs, nil
				}
				complete(segmentSubnegotiation, i+1)
			default:
				state = scanSubnegotiation
			}
		}
	}

	if state == scanPlain {
		return appendPlain(segs, buf[plainAt:]), nil
	}
	return appendPlain(segs, buf[plainAt:cmdAt]), buf[cmdAt:]
}

func appendPlain(segs []segment, data []byte) []segment {
	if len(data) == 0 {
		return segs
	}
	return append(segs, segment{kind: segmentPlain, data: data})
}

// parseSubnegotiation validates a complete IAC SB ... IAC SE frame and
// returns its option and unescaped payload.
func parseSubnegotiation(frame []byte) (opt byte, payload []byte, ok bool) {
	n := len(frame)
	if n < 5 || frame[0] != IAC || frame[1] != SB || frame[n-2] != IAC || frame[n-1] != SE {
		return 0, nil, false
	}
	body := frame[2 : n-2]
	opt, body = body[0], body[1:]
	if opt == IAC {
		// option 255 has to be sent as IAC IAC
		if len(body) == 0 || body[0] != IAC {
			return 0, nil, false
		}
		body = body[1:]
	}
	return opt, Unescape(body), true
}
