package telnet

import (
	"github.com/rs/zerolog"
)

const defaultCapacity = 128

// Parser turns bytes received from a peer into events and answers option
// negotiation according to its CompatibilityTable. It performs no I/O and is
// not safe for concurrent use.
type Parser struct {
	table *CompatibilityTable
	buf   []byte
	log   zerolog.Logger
}

type ParserOption func(*Parser)

// WithCapacity sets the initial capacity of the receive buffer.
func WithCapacity(size int) ParserOption {
	return func(p *Parser) { p.buf = make([]byte, 0, size) }
}

// WithTable makes the parser use a pre-configured table. The parser owns the
// table from then on.
func WithTable(t *CompatibilityTable) ParserOption {
	return func(p *Parser) { p.table = t }
}

// WithLogger enables trace logging of dropped and malformed sequences.
func WithLogger(l zerolog.Logger) ParserOption {
	return func(p *Parser) { p.log = l }
}

func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.table == nil {
		p.table = NewCompatibilityTable()
	}
	if p.buf == nil {
		p.buf = make([]byte, 0, defaultCapacity)
	}
	return p
}

func (p *Parser) Table() *CompatibilityTable { return p.table }

// LinemodeEnabled reports whether the peer supports and is using LINEMODE.
func (p *Parser) LinemodeEnabled() bool {
	e := p.table.Get(Linemode)
	return e.RemoteSupported && e.RemoteEnabled
}

// Receive appends data to anything left over from earlier calls and returns
// the events it contains, in wire order. An incomplete trailing sequence is
// kept for the next call.
//
// After a DecompressNow event the parser holds nothing: the bytes it carries
// are compressed and have to be decompressed before being passed back in.
func (p *Parser) Receive(data []byte) []Event {
	p.buf = append(p.buf, data...)
	segs, pending := segmentBuffer(p.buf)
	events := p.process(segs)
	p.buf = p.buf[:copy(p.buf, pending)]
	if len(p.buf) > 0 {
		p.log.Trace().Int("pending", len(p.buf)).Msg("buffered incomplete sequence")
	}
	return events
}

func (p *Parser) process(segs []segment) []Event {
	events := make([]Event, 0, len(segs)+1)
	for _, seg := range segs {
		switch seg.kind {
		case segmentPlain:
			events = append(events, DataReceived(Unescape(seg.data)))
		case segmentCommand:
			if cmd := seg.data[1]; cmd != SE {
				events = append(events, Command{cmd})
			} else {
				p.log.Trace().Msg("dropped stray IAC SE")
			}
		case segmentNegotiation:
			events = p.negotiation(events, seg.data[1], seg.data[2])
		case segmentSubnegotiation:
			events = p.subnegotiation(events, seg)
		}
	}
	return events
}

func (p *Parser) negotiation(events []Event, cmd, opt byte) []Event {
	entry := p.table.Get(opt)
	ev := Negotiation{cmd, opt}
	switch cmd {
	case WILL:
		if entry.RemoteSupported && !entry.RemoteEnabled {
			entry.RemoteEnabled = true
			p.table.Set(opt, entry)
			events = append(events, sendNegotiation(DO, opt), ev)
		} else if !entry.RemoteSupported {
			events = append(events, sendNegotiation(DONT, opt))
		}
	case WONT:
		if entry.RemoteEnabled {
			entry.RemoteEnabled = false
			p.table.Set(opt, entry)
			events = append(events, sendNegotiation(DONT, opt))
		}
		events = append(events, ev)
	case DO:
		if entry.LocalSupported && !entry.LocalEnabled {
			entry.LocalEnabled = true
			entry.RemoteEnabled = true
			p.table.Set(opt, entry)
			events = append(events, sendNegotiation(WILL, opt), ev)
		} else if !entry.LocalSupported {
			events = append(events, sendNegotiation(WONT, opt))
		}
	case DONT:
		if entry.LocalEnabled {
			entry.LocalEnabled = false
			p.table.Set(opt, entry)
			events = append(events, sendNegotiation(WONT, opt))
		}
		events = append(events, ev)
	default:
		p.log.Trace().
			Str("command", CommandName(cmd)).
			Uint8("option", opt).
			Msg("dropped unknown negotiation")
	}
	return events
}

func (p *Parser) subnegotiation(events []Event, seg segment) []Event {
	opt, payload, ok := parseSubnegotiation(seg.data)
	if !ok {
		p.log.Trace().Bytes("data", seg.data).Msg("dropped malformed subnegotiation")
		return events
	}
	if entry := p.table.Get(opt); !entry.LocalSupported || !entry.LocalEnabled {
		p.log.Trace().Str("option", OptionName(opt)).Msg("ignored subnegotiation for disabled option")
		return events
	}
	events = append(events, Subnegotiation{Opt: opt, Data: payload})
	if seg.compressed {
		events = append(events, append(DecompressNow{}, seg.rest...))
	}
	return events
}

// Negotiate builds IAC <cmd> <opt> without consulting or changing any state.
func (p *Parser) Negotiate(cmd, opt byte) DataToSend {
	return sendNegotiation(cmd, opt)
}

// Will offers to enable opt locally. It returns false when opt is not
// supported locally or is already enabled.
func (p *Parser) Will(opt byte) (DataToSend, bool) {
	entry := p.table.Get(opt)
	if !entry.LocalSupported || entry.LocalEnabled {
		return nil, false
	}
	entry.LocalEnabled = true
	p.table.Set(opt, entry)
	return sendNegotiation(WILL, opt), true
}

func (p *Parser) Wont(opt byte) (DataToSend, bool) {
	entry := p.table.Get(opt)
	if !entry.LocalEnabled {
		return nil, false
	}
	entry.LocalEnabled = false
	p.table.Set(opt, entry)
	return sendNegotiation(WONT, opt), true
}

// Do asks the peer to enable opt. It returns false when opt is not supported
// remotely or is already enabled.
func (p *Parser) Do(opt byte) (DataToSend, bool) {
	entry := p.table.Get(opt)
	if !entry.RemoteSupported || entry.RemoteEnabled {
		return nil, false
	}
	entry.RemoteEnabled = true
	p.table.Set(opt, entry)
	return sendNegotiation(DO, opt), true
}

func (p *Parser) Dont(opt byte) (DataToSend, bool) {
	entry := p.table.Get(opt)
	if !entry.RemoteEnabled {
		return nil, false
	}
	entry.RemoteEnabled = false
	p.table.Set(opt, entry)
	return sendNegotiation(DONT, opt), true
}

// Subnegotiation frames data for opt, which must be supported and enabled
// locally.
func (p *Parser) Subnegotiation(opt byte, data []byte) (DataToSend, bool) {
	if entry := p.table.Get(opt); !entry.LocalSupported || !entry.LocalEnabled {
		return nil, false
	}
	return sendSubnegotiation(opt, data), true
}

func (p *Parser) SubnegotiationText(opt byte, text string) (DataToSend, bool) {
	return p.Subnegotiation(opt, []byte(text))
}

// SendText escapes text and terminates it with CR LF and IAC GA.
func (p *Parser) SendText(text string) DataToSend {
	return sendText(text)
}
