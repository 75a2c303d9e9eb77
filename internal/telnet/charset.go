package telnet

import (
	"bytes"
	"context"
	"fmt"

	"github.com/stesla/libtelnet/internal/event"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

const (
	EventCharsetAccepted event.Name = "telnet.event.charset-accepted"
	EventCharsetRejected event.Name = "telnet.event.charset-rejected"
)

type CharsetData struct {
	Name     string
	Encoding encoding.Encoding
}

// CharsetHandler negotiates a character set with the peer (RFC 2066). It only
// agrees on an encoding; translating data is left to the caller.
type CharsetHandler struct {
	// IsServer breaks ties when both sides send REQUEST at once: the server
	// rejects the client's request and keeps its own.
	IsServer bool

	conn               Conn
	listener           event.Listener
	enc                encoding.Encoding
	requestedEncodings []encoding.Encoding
}

func (h *CharsetHandler) Register(c Conn) {
	h.conn = c
	c.Options(func(t *CompatibilityTable) { t.Support(Charset) })
	h.listener = c.ListenFunc(EventSubnegotiation, h.Listen)
}

func (h *CharsetHandler) Unregister() {
	h.conn.RemoveListener(EventSubnegotiation, h.listener)
	h.conn.Options(func(t *CompatibilityTable) { t.Set(Charset, CompatibilityEntry{}) })
}

// Encoding returns the agreed encoding, or ASCII before any agreement.
func (h *CharsetHandler) Encoding() encoding.Encoding {
	if h.enc == nil {
		return ASCII
	}
	return h.enc
}

func (h *CharsetHandler) RequestEncoding(encodings ...encoding.Encoding) error {
	output := []byte{CharsetRequest}
	for _, enc := range encodings {
		name, err := ianaindex.IANA.Name(enc)
		if err != nil {
			return fmt.Errorf("charset: %w", err)
		}
		output = append(output, ";"+name...)
	}
	if err := h.conn.Subnegotiation(Charset, output); err != nil {
		return err
	}
	h.requestedEncodings = encodings
	return nil
}

func (h *CharsetHandler) Listen(ctx context.Context, ev event.Event) error {
	sub, ok := ev.Data.(Subnegotiation)
	if !ok || sub.Opt != Charset || len(sub.Data) == 0 {
		return nil
	}
	switch cmd, data := sub.Data[0], sub.Data[1:]; cmd {
	case CharsetAccepted:
		h.requestedEncodings = nil
		if enc := h.getEncoding(data); enc != nil {
			return h.accept(ctx, string(data), enc)
		}
		return h.conn.Dispatch(ctx, event.Event{Name: EventCharsetRejected})
	case CharsetRejected:
		h.requestedEncodings = nil
		return h.conn.Dispatch(ctx, event.Event{Name: EventCharsetRejected})
	case CharsetRequest:
		return h.handleCharsetRequest(ctx, data)
	case CharsetTTableIs:
		return h.conn.Subnegotiation(Charset, []byte{CharsetTTableRejected})
	}
	return nil
}

func (h *CharsetHandler) accept(ctx context.Context, name string, enc encoding.Encoding) error {
	h.enc = enc
	return h.conn.Dispatch(ctx, event.Event{
		Name: EventCharsetAccepted,
		Data: CharsetData{Name: name, Encoding: enc},
	})
}

func (h *CharsetHandler) handleCharsetRequest(ctx context.Context, data []byte) error {
	reject := func() error {
		return h.conn.Subnegotiation(Charset, []byte{CharsetRejected})
	}

	if len(h.requestedEncodings) > 0 {
		if h.IsServer {
			return reject()
		}
		h.requestedEncodings = nil
	}

	const ttable = "[TTABLE]"
	if len(data) > len(ttable)+1 && bytes.HasPrefix(data, []byte(ttable)) {
		// TTABLE is not supported, so the version byte after it is skipped
		data = data[len(ttable)+1:]
	}

	var charset []byte
	var enc encoding.Encoding
	if len(data) > 1 {
		charset, enc = h.selectEncoding(bytes.Split(data[1:], data[0:1]))
	}
	if enc == nil {
		return reject()
	}

	if err := h.conn.Subnegotiation(Charset, append([]byte{CharsetAccepted}, charset...)); err != nil {
		return err
	}
	return h.accept(ctx, string(charset), enc)
}

func (h *CharsetHandler) selectEncoding(names [][]byte) ([]byte, encoding.Encoding) {
	for _, name := range names {
		if enc := h.getEncoding(name); enc != nil {
			return name, enc
		}
	}
	return nil, nil
}

func (*CharsetHandler) getEncoding(name []byte) encoding.Encoding {
	switch s := string(name); s {
	case "US-ASCII":
		return ASCII
	default:
		enc, _ := ianaindex.IANA.Encoding(s)
		return enc
	}
}

var ASCII encoding.Encoding

func init() {
	ASCII, _ = ianaindex.IANA.Encoding("US-ASCII")
}
