package telnet

import (
	"bytes"

	"github.com/stesla/libtelnet/internal/event"
)

const (
	EventCommand        event.Name = "telnet.event.command"
	EventNegotiation    event.Name = "telnet.event.negotiation"
	EventSubnegotiation event.Name = "telnet.event.subnegotiation"
	EventDataReceived   event.Name = "telnet.event.data-received"
	EventDataToSend     event.Name = "telnet.event.data-to-send"
	EventDecompressNow  event.Name = "telnet.event.decompress-now"
)

// Event is one of Command, Negotiation, Subnegotiation, DataReceived,
// DataToSend or DecompressNow. Byte slices held by an event never alias the
// parser's buffer.
type Event interface {
	Name() event.Name
	telnetEvent()
}

// Command is a two byte IAC sequence such as IAC GA.
type Command struct {
	Cmd byte
}

func (Command) Name() event.Name { return EventCommand }
func (Command) telnetEvent()      {}

func (c Command) Bytes() []byte { return []byte{IAC, c.Cmd} }

// Negotiation is an IAC WILL/WONT/DO/DONT <option> sequence.
type Negotiation struct {
	Cmd byte
	Opt byte
}

func (Negotiation) Name() event.Name { return EventNegotiation }
func (Negotiation) telnetEvent()      {}

func (n Negotiation) Bytes() []byte { return []byte{IAC, n.Cmd, n.Opt} }

// Subnegotiation carries the unescaped payload of IAC SB <option> ... IAC SE.
type Subnegotiation struct {
	Opt  byte
	Data []byte
}

func (Subnegotiation) Name() event.Name { return EventSubnegotiation }
func (Subnegotiation) telnetEvent()      {}

// Bytes frames the subnegotiation for the wire, escaping IAC in the payload.
func (s Subnegotiation) Bytes() []byte {
	out := make([]byte, 0, len(s.Data)+6)
	out = append(out, IAC, SB, s.Opt)
	out = append(out, Escape(s.Data)...)
	return append(out, IAC, SE)
}

// DataReceived is application data from the peer with IAC escapes removed.
type DataReceived []byte

func (DataReceived) Name() event.Name { return EventDataReceived }
func (DataReceived) telnetEvent()      {}

// DataToSend is ready-to-transmit wire data.
type DataToSend []byte

func (DataToSend) Name() event.Name { return EventDataToSend }
func (DataToSend) telnetEvent()      {}

// DecompressNow holds the bytes that followed an MCCP start subnegotiation.
// They are compressed and must be decompressed before being received again.
type DecompressNow []byte

func (DecompressNow) Name() event.Name { return EventDecompressNow }
func (DecompressNow) telnetEvent()      {}

func sendNegotiation(cmd, opt byte) DataToSend {
	return DataToSend(Negotiation{cmd, opt}.Bytes())
}

func sendSubnegotiation(opt byte, data []byte) DataToSend {
	return DataToSend(Subnegotiation{opt, data}.Bytes())
}

func sendText(text string) DataToSend {
	var buf bytes.Buffer
	buf.Write(Escape([]byte(text)))
	buf.WriteString("\r\n")
	buf.Write(Command{GA}.Bytes())
	return DataToSend(buf.Bytes())
}
