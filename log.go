package main

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/stesla/libtelnet/internal/config"
	"github.com/stesla/libtelnet/internal/event"
	"github.com/stesla/libtelnet/internal/telnet"
)

// newLogger writes JSON lines, or console output when w is a terminal or the
// configuration asks for it.
func newLogger(w io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	console := false
	if f, ok := w.(*os.File); ok {
		console = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if cfg.Console != nil {
		console = *cfg.Console
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

var loggedEvents = []event.Name{
	telnet.EventCommand,
	telnet.EventNegotiation,
	telnet.EventSubnegotiation,
	telnet.EventDataToSend,
	telnet.EventDecompressNow,
	telnet.EventCharsetAccepted,
	telnet.EventCharsetRejected,
}

// LogHandler writes one trace line for every protocol event on a connection.
type LogHandler struct {
	zerolog.Logger
	conn telnet.Conn
}

func (h *LogHandler) Register(c telnet.Conn) {
	h.conn = c
	for _, name := range loggedEvents {
		c.Listen(name, h)
	}
}

func (h *LogHandler) Unregister() {
	for _, name := range loggedEvents {
		h.conn.RemoveListener(name, h)
	}
}

func (h *LogHandler) Listen(_ context.Context, ev event.Event) error {
	log := h.Trace().Str("event", string(ev.Name))
	switch t := ev.Data.(type) {
	case telnet.Command:
		log.Str("command", telnet.CommandName(t.Cmd))
	case telnet.Negotiation:
		log.Str("command", telnet.CommandName(t.Cmd)).Str("option", telnet.OptionName(t.Opt))
	case telnet.Subnegotiation:
		log.Str("option", telnet.OptionName(t.Opt)).Bytes("data", t.Data)
	case telnet.DataToSend:
		log.Bytes("data", t)
	case telnet.DecompressNow:
		log.Int("pending", len(t))
	case telnet.CharsetData:
		log.Str("charset", t.Name)
	}
	log.Send()
	return nil
}
