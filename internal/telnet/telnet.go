package telnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stesla/libtelnet/internal/event"
	"github.com/stesla/libtelnet/internal/mccp"
)

var ErrOptionDisabled = errors.New("telnet: option not enabled")

const readBufferSize = 4096

// Conn is a net.Conn speaking telnet. Read returns application data only;
// replies to negotiation are written as they are parsed, and every parsed
// event is dispatched to the registered listeners before Read returns.
type Conn interface {
	net.Conn
	event.Dispatcher

	Context() context.Context
	Option(opt byte) CompatibilityEntry
	Options(fn func(*CompatibilityTable))
	LinemodeEnabled() bool

	Will(opt byte) error
	Wont(opt byte) error
	Do(opt byte) error
	Dont(opt byte) error
	Subnegotiation(opt byte, data []byte) error
	SendText(text string) error
	StartCompression() error
	WriteRaw(p []byte) (int, error)
}

type conn struct {
	net.Conn
	event.Dispatcher

	ctx context.Context
	log zerolog.Logger

	mu     sync.Mutex
	parser *Parser

	src  *mccp.Reader
	data bytes.Buffer
	cr   bool
	err  error

	wmu sync.Mutex
	w   *mccp.Writer
}

func Dial(ctx context.Context, address string, opts ...ParserOption) (Conn, error) {
	var d net.Dialer
	tcpconn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return Wrap(ctx, tcpconn, opts...), nil
}

// Wrap takes ownership of c. The logger stored in ctx, if any, is used for
// connection and parser trace logging.
func Wrap(ctx context.Context, c net.Conn, opts ...ParserOption) Conn {
	return wrap(ctx, c, opts...)
}

func wrap(ctx context.Context, c net.Conn, opts ...ParserOption) *conn {
	log := *zerolog.Ctx(ctx)
	cc := &conn{
		Conn:       c,
		Dispatcher: event.NewDispatcher(),
		ctx:        ctx,
		log:        log,
		parser:     NewParser(append([]ParserOption{WithLogger(log)}, opts...)...),
		src:        mccp.NewReader(c),
		w:          mccp.NewWriter(c),
	}
	return cc
}

func (c *conn) Context() context.Context { return c.ctx }

func (c *conn) Option(opt byte) CompatibilityEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parser.Table().Get(opt)
}

// Options runs fn with exclusive access to the compatibility table.
func (c *conn) Options(fn func(*CompatibilityTable)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.parser.Table())
}

func (c *conn) LinemodeEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parser.LinemodeEnabled()
}

func (c *conn) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	for c.data.Len() == 0 && c.err == nil {
		buf := make([]byte, readBufferSize)
		nr, err := c.src.Read(buf)
		if nr > 0 {
			if rerr := c.receive(buf[:nr]); rerr != nil && err == nil {
				err = rerr
			}
		}
		if err != nil {
			c.err = err
		}
	}
	if c.data.Len() > 0 {
		return c.data.Read(p)
	}
	return 0, c.err
}

func (c *conn) receive(data []byte) error {
	c.mu.Lock()
	events := c.parser.Receive(data)
	c.mu.Unlock()

	for _, ev := range events {
		switch t := ev.(type) {
		case DataReceived:
			c.writeData(t)
		case DataToSend:
			if _, err := c.WriteRaw(t); err != nil {
				return err
			}
		case DecompressNow:
			c.log.Debug().Int("pending", len(t)).Msg("decompressing inbound stream")
			if err := c.src.Decompress(t); err != nil {
				return err
			}
		}
		if err := c.Dispatch(c.ctx, event.Event{Name: ev.Name(), Data: ev}); err != nil {
			return err
		}
	}
	return nil
}

// writeData turns CR LF into LF and CR NUL into CR. A CR followed by
// anything else is dropped.
func (c *conn) writeData(data []byte) {
	for _, b := range data {
		if c.cr {
			c.cr = false
			switch b {
			case '\x00':
				c.data.WriteByte('\r')
				continue
			case '\n':
				c.data.WriteByte('\n')
				continue
			}
		}
		if b == '\r' {
			c.cr = true
			continue
		}
		c.data.WriteByte(b)
	}
}

// Write sends application data: IAC is escaped, line endings are translated
// to CR LF and CR NUL, and IAC GA follows unless SGA is enabled for us.
func (c *conn) Write(p []byte) (n int, err error) {
	buf := make([]byte, 0, 2*len(p)+2)
	for _, b := range p {
		switch b {
		case IAC:
			buf = append(buf, IAC, IAC)
		case '\n':
			buf = append(buf, '\r', '\n')
		case '\r':
			buf = append(buf, '\r', '\x00')
		default:
			buf = append(buf, b)
		}
	}
	if !c.Option(SuppressGoAhead).LocalEnabled {
		buf = append(buf, IAC, GA)
	}
	if _, err = c.WriteRaw(buf); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *conn) WriteRaw(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.Write(p)
}

func (c *conn) send(data DataToSend) error {
	if _, err := c.WriteRaw(data); err != nil {
		return err
	}
	return c.Dispatch(c.ctx, event.Event{Name: data.Name(), Data: data})
}

func (c *conn) negotiate(fn func(*Parser, byte) (DataToSend, bool), opt byte) error {
	c.mu.Lock()
	data, ok := fn(c.parser, opt)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.send(data)
}

func (c *conn) Will(opt byte) error { return c.negotiate((*Parser).Will, opt) }
func (c *conn) Wont(opt byte) error { return c.negotiate((*Parser).Wont, opt) }
func (c *conn) Do(opt byte) error   { return c.negotiate((*Parser).Do, opt) }
func (c *conn) Dont(opt byte) error { return c.negotiate((*Parser).Dont, opt) }

func (c *conn) Subnegotiation(opt byte, data []byte) error {
	c.mu.Lock()
	frame, ok := c.parser.Subnegotiation(opt, data)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrOptionDisabled, OptionName(opt))
	}
	return c.send(frame)
}

func (c *conn) SendText(text string) error {
	return c.send(c.parser.SendText(text))
}

// StartCompression announces MCCP2 and compresses everything written after
// it. MCCP2 has to be enabled for us.
func (c *conn) StartCompression() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.mu.Lock()
	frame, ok := c.parser.Subnegotiation(MCCP2, nil)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrOptionDisabled, OptionName(MCCP2))
	}
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	c.log.Debug().Msg("compressing outbound stream")
	return c.w.Start()
}

func (c *conn) Close() error {
	c.wmu.Lock()
	err := c.w.Stop()
	c.wmu.Unlock()
	return errors.Join(err, c.Conn.Close())
}
