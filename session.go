package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stesla/libtelnet/internal/config"
	"github.com/stesla/libtelnet/internal/event"
	"github.com/stesla/libtelnet/internal/telnet"
	"golang.org/x/text/encoding"
)

const greeting = "Welcome. Type quit to disconnect."

// session echoes every line it reads back to the peer.
type session struct {
	conn      telnet.Conn
	logger    zerolog.Logger
	log       LogHandler
	charset   telnet.CharsetHandler
	encodings []encoding.Encoding
	flags     []telnet.OptionFlags
	compress  bool
}

func newSession(ctx context.Context, tcp net.Conn, cfg *config.Config) (*session, error) {
	flags, err := cfg.OptionFlags()
	if err != nil {
		return nil, err
	}
	encs, err := cfg.Encodings()
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("peer", tcp.RemoteAddr().String()).Logger()
	ctx = logger.WithContext(ctx)
	conn := telnet.Wrap(ctx, tcp, telnet.WithTable(telnet.NewCompatibilityTable(flags...)))

	s := &session{
		conn:      conn,
		logger:    logger,
		encodings: encs,
		flags:     flags,
		compress:  cfg.Compress,
	}
	s.log.Logger = logger
	s.log.Register(conn)
	if len(encs) > 0 {
		s.charset.IsServer = true
		s.charset.Register(conn)
		conn.ListenFunc(telnet.EventNegotiation, s.handleNegotiation)
	}
	return s, nil
}

func (s *session) Close() error {
	s.log.Unregister()
	return s.conn.Close()
}

// handleNegotiation requests a charset when the peer asks us to enable
// CHARSET on its own.
func (s *session) handleNegotiation(_ context.Context, ev event.Event) error {
	if neg := ev.Data.(telnet.Negotiation); neg.Cmd == telnet.DO && neg.Opt == telnet.Charset {
		return s.charset.RequestEncoding(s.encodings...)
	}
	return nil
}

func (s *session) negotiateOptions() error {
	for _, f := range s.flags {
		entry := telnet.UnpackEntry(f.Flags)
		if entry.LocalSupported {
			if err := s.conn.Will(f.Opt); err != nil {
				return err
			}
		}
		if entry.RemoteSupported {
			if err := s.conn.Do(f.Opt); err != nil {
				return err
			}
		}
	}
	return nil
}

// afterHandshake runs once the peer has sent a line, so it has had the chance
// to refuse what negotiateOptions offered.
func (s *session) afterHandshake() error {
	s.logger.Debug().Bool("linemode", s.conn.LinemodeEnabled()).Msg("handshake complete")
	if len(s.encodings) > 0 && s.conn.Option(telnet.Charset).LocalEnabled {
		if err := s.charset.RequestEncoding(s.encodings...); err != nil {
			return err
		}
	}
	if s.compress && s.conn.Option(telnet.MCCP2).LocalEnabled {
		return s.conn.StartCompression()
	}
	return nil
}

func (s *session) sendLine(text string) error {
	if enc, err := s.charset.Encoding().NewEncoder().String(text); err == nil {
		text = enc
	}
	return s.conn.SendText(text)
}

func (s *session) run() {
	defer s.Close()
	s.logger.Debug().Msg("connected")
	defer s.logger.Debug().Msg("disconnected")

	if err := s.negotiateOptions(); err != nil {
		s.logger.Error().Err(err).Msg("negotiating options")
		return
	}
	if err := s.sendLine(greeting); err != nil {
		return
	}

	scanner := bufio.NewScanner(s.conn)
	handshake := true
	for scanner.Scan() {
		if handshake {
			handshake = false
			if err := s.afterHandshake(); err != nil {
				s.logger.Error().Err(err).Msg("after handshake")
				return
			}
		}
		line, err := s.charset.Encoding().NewDecoder().String(scanner.Text())
		if err != nil {
			line = scanner.Text()
		}
		if strings.TrimSpace(line) == "quit" {
			s.sendLine("Goodbye.")
			return
		}
		if err := s.sendLine("echo: " + line); err != nil {
			s.logger.Debug().Err(err).Msg("write failed")
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug().Err(err).Msg("read failed")
	}
}
