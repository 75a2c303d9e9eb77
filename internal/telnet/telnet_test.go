package telnet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/stesla/libtelnet/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	io.Reader
	io.Writer
}

func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// chunkReader hands out one chunk per Read, like packets arriving off a socket.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(b []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(b, r.chunks[0])
	if r.chunks[0] = r.chunks[0][n:]; len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

const bufsize = 16

func TestReadIntoEmptySlice(t *testing.T) {
	telnet := Wrap(context.Background(), &mockConn{})
	buf := []byte{}
	n, err := telnet.Read(buf)
	require.Equal(t, 0, n)
	require.NoError(t, err)
}

func TestRead(t *testing.T) {
	var tests = []struct {
		vals     [][]byte
		expected []byte
	}{
		{[][]byte{[]byte("foo")}, []byte("foo")},
		{[][]byte{{'h', IAC}, {NOP, 'i'}}, []byte("hi")},
		{[][]byte{{'h', IAC}, {IAC, 'i'}}, []byte{'h', IAC, 'i'}},
		{[][]byte{[]byte("foo\r"), []byte("\nbar")}, []byte("foo\nbar")},
		{[][]byte{[]byte("foo\r"), []byte("\x00bar")}, []byte("foo\rbar")},
		{[][]byte{[]byte("foo\rbar")}, []byte("foobar")},
		{[][]byte{{'h', IAC, SB}, {GMCP, IAC}, {SE, 'i'}}, []byte("hi")},
		{[][]byte{{'h', IAC, WILL}, {Echo, 'i'}}, []byte("hi")},
	}
	for i, test := range tests {
		tcp := &mockConn{Reader: &chunkReader{test.vals}, Writer: io.Discard}
		telnet := Wrap(context.Background(), tcp)
		out, err := io.ReadAll(telnet)
		require.NoError(t, err, i)
		require.Equal(t, test.expected, out, i)
	}
}

type boomReader struct {
	n   int
	err error
}

func (r boomReader) Read(b []byte) (n int, err error) {
	for i := 0; i < r.n && i < len(b); i++ {
		b[i] = 'A' + byte(i)
	}
	return r.n, r.err
}

func TestReadWithUnderlyingError(t *testing.T) {
	tcp := &mockConn{Reader: boomReader{3, errors.New("boom")}}
	telnet := Wrap(context.Background(), tcp)
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "ABC", string(buf[:n]))
	n, err = telnet.Read(buf)
	require.EqualError(t, err, "boom")
	require.Equal(t, 0, n)
}

func TestEOFWaitsForNextRead(t *testing.T) {
	tcp := &mockConn{Reader: boomReader{3, io.EOF}}
	telnet := Wrap(context.Background(), tcp)
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "ABC", string(buf[:n]))
	n, err = telnet.Read(buf[n:])
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
}

func TestWrite(t *testing.T) {
	var tests = []struct {
		val, expected []byte
	}{
		{[]byte("foo"), []byte("foo")},
		{[]byte{'h', IAC, 'i'}, []byte{'h', IAC, IAC, 'i'}},
		{[]byte("foo\nbar"), []byte("foo\r\nbar")},
		{[]byte("foo\rbar"), []byte("foo\r\x00bar")},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		tcp := &mockConn{Writer: &buf}
		telnet := Wrap(context.Background(), tcp)
		n, err := telnet.Write(test.val)
		require.NoError(t, err)
		require.Equal(t, len(test.val), n)
		require.Equal(t, append(test.expected, IAC, GA), buf.Bytes())
	}
}

func TestReadEvents(t *testing.T) {
	var tests = []struct {
		val, expected []byte
		name          event.Name
		event         any
	}{
		{[]byte{'a', IAC, GA, 'a'}, []byte("aa"), EventCommand, Command{GA}},
		{[]byte{'b', IAC, DO, Echo, 'b'}, []byte("bb"), EventNegotiation, Negotiation{DO, Echo}},
		{[]byte{'c', IAC, DONT, Echo, 'c'}, []byte("cc"), EventNegotiation, Negotiation{DONT, Echo}},
		{[]byte{'d', IAC, WILL, Echo, 'd'}, []byte("dd"), EventNegotiation, Negotiation{WILL, Echo}},
		{[]byte{'e', IAC, WONT, Echo, 'e'}, []byte("ee"), EventNegotiation, Negotiation{WONT, Echo}},
		{[]byte{'f', IAC, SB, GMCP, 'f', 'o', 'o', IAC, SE, 'f'}, []byte("ff"), EventSubnegotiation, Subnegotiation{GMCP, []byte("foo")}},
		{[]byte{'g', IAC, SB, GMCP, IAC, IAC, IAC, SE, 'g'}, []byte("gg"), EventSubnegotiation, Subnegotiation{GMCP, []byte{IAC}}},
		{[]byte{'h', IAC, DO, Status, 'h'}, []byte("hh"), EventDataToSend, DataToSend{IAC, WONT, Status}},
	}
	for i, test := range tests {
		table := NewCompatibilityTable(
			OptionFlags{Echo, FlagLocalSupported | FlagRemoteSupported},
			OptionFlags{GMCP, FlagLocalSupported | FlagLocalEnabled},
		)
		tcp := &mockConn{Reader: bytes.NewReader(test.val), Writer: io.Discard}
		telnet := Wrap(context.Background(), tcp, WithTable(table))
		var got any
		telnet.ListenFunc(test.name, func(_ context.Context, ev event.Event) error {
			got = ev.Data
			return nil
		})
		buf := make([]byte, bufsize)
		n, err := telnet.Read(buf)
		require.NoError(t, err, i)
		assert.Equal(t, test.expected, buf[:n], i)
		assert.Equal(t, test.event, got, i)
	}
}

func TestListenerErrorStopsRead(t *testing.T) {
	tcp := &mockConn{Reader: bytes.NewReader([]byte{'a', IAC, NOP}), Writer: io.Discard}
	telnet := Wrap(context.Background(), tcp)
	telnet.ListenFunc(EventCommand, func(context.Context, event.Event) error {
		return errors.New("no thanks")
	})
	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "a", string(buf[:n]))
	_, err = telnet.Read(buf)
	require.EqualError(t, err, "no thanks")
}

func TestNegotiationReplyIsWritten(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Reader: bytes.NewReader([]byte{IAC, DO, SuppressGoAhead, 'x'}), Writer: &output}
	telnet := Wrap(context.Background(), tcp)
	telnet.Options(func(t *CompatibilityTable) { t.SupportLocal(SuppressGoAhead) })

	buf := make([]byte, bufsize)
	n, err := telnet.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "x", string(buf[:n]))
	require.Equal(t, []byte{IAC, WILL, SuppressGoAhead}, output.Bytes())
	require.True(t, telnet.Option(SuppressGoAhead).LocalEnabled)

	output.Reset()
	_, err = telnet.Write([]byte("xyzzy"))
	require.NoError(t, err)
	require.Equal(t, []byte("xyzzy"), output.Bytes())
}

func TestSuppressGoAhead(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Writer: &output}
	telnet := Wrap(context.Background(), tcp)
	telnet.Options(func(t *CompatibilityTable) {
		t.Set(SuppressGoAhead, CompatibilityEntry{LocalSupported: true, LocalEnabled: true})
	})
	_, err := telnet.Write([]byte("xyzzy"))
	require.NoError(t, err)
	require.Equal(t, []byte("xyzzy"), output.Bytes())
}

func TestConnNegotiate(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Writer: &output}
	telnet := Wrap(context.Background(), tcp)
	var sent []any
	telnet.ListenFunc(EventDataToSend, func(_ context.Context, ev event.Event) error {
		sent = append(sent, ev.Data)
		return nil
	})

	require.NoError(t, telnet.Will(Echo))
	require.NoError(t, telnet.Do(NAWS))
	require.Empty(t, output.Bytes())
	require.Empty(t, sent)

	telnet.Options(func(t *CompatibilityTable) {
		t.SupportLocal(Echo)
		t.SupportRemote(NAWS)
	})
	require.NoError(t, telnet.Will(Echo))
	require.NoError(t, telnet.Do(NAWS))
	require.NoError(t, telnet.Will(Echo))
	require.NoError(t, telnet.Dont(NAWS))
	require.NoError(t, telnet.Wont(Echo))
	require.Equal(t, []byte{
		IAC, WILL, Echo,
		IAC, DO, NAWS,
		IAC, DONT, NAWS,
		IAC, WONT, Echo,
	}, output.Bytes())
	require.Equal(t, []any{
		DataToSend{IAC, WILL, Echo},
		DataToSend{IAC, DO, NAWS},
		DataToSend{IAC, DONT, NAWS},
		DataToSend{IAC, WONT, Echo},
	}, sent)
}

func TestConnSubnegotiation(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Writer: &output}
	telnet := Wrap(context.Background(), tcp)

	err := telnet.Subnegotiation(GMCP, []byte("Core.Hello {}"))
	require.ErrorIs(t, err, ErrOptionDisabled)
	require.Empty(t, output.Bytes())

	telnet.Options(func(t *CompatibilityTable) { t.SupportLocal(GMCP) })
	require.NoError(t, telnet.Will(GMCP))
	output.Reset()
	require.NoError(t, telnet.Subnegotiation(GMCP, []byte{'x', IAC}))
	require.Equal(t, []byte{IAC, SB, GMCP, 'x', IAC, IAC, IAC, SE}, output.Bytes())
}

func TestConnSendText(t *testing.T) {
	var output bytes.Buffer
	telnet := Wrap(context.Background(), &mockConn{Writer: &output})
	require.NoError(t, telnet.SendText("hello"))
	require.Equal(t, []byte{'h', 'e', 'l', 'l', 'o', '\r', '\n', IAC, GA}, output.Bytes())
}

func TestListenerMaySendDuringDispatch(t *testing.T) {
	var output bytes.Buffer
	tcp := &mockConn{Reader: bytes.NewReader([]byte{IAC, DO, GMCP}), Writer: &output}
	telnet := Wrap(context.Background(), tcp)
	telnet.Options(func(t *CompatibilityTable) { t.SupportLocal(GMCP) })
	telnet.ListenFunc(EventNegotiation, func(_ context.Context, ev event.Event) error {
		if neg := ev.Data.(Negotiation); neg.Cmd == DO && neg.Opt == GMCP {
			return telnet.Subnegotiation(GMCP, []byte("Core.Hello"))
		}
		return nil
	})

	_, err := io.ReadAll(telnet)
	require.NoError(t, err)
	expected := append([]byte{IAC, WILL, GMCP}, Subnegotiation{GMCP, []byte("Core.Hello")}.Bytes()...)
	require.Equal(t, expected, output.Bytes())
}

func zlibCompress(t *testing.T, data string) []byte {
	var buf bytes.Buffer
	z := zlib.NewWriter(&buf)
	_, err := z.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, z.Close())
	return buf.Bytes()
}

func TestReadCompressed(t *testing.T) {
	stream := bytes.Join([][]byte{
		[]byte("hi "),
		{IAC, SB, MCCP2, IAC, SE},
		zlibCompress(t, "compressed\r\n"),
		[]byte("plain"),
	}, nil)
	tcp := &mockConn{Reader: &chunkReader{[][]byte{stream[:7], stream[7:]}}, Writer: io.Discard}
	telnet := Wrap(context.Background(), tcp, WithTable(NewCompatibilityTable(
		OptionFlags{MCCP2, FlagLocalSupported | FlagLocalEnabled},
	)))
	var decompress int
	telnet.ListenFunc(EventDecompressNow, func(context.Context, event.Event) error {
		decompress++
		return nil
	})

	out, err := io.ReadAll(telnet)
	require.NoError(t, err)
	require.Equal(t, "hi compressed\nplain", string(out))
	require.Equal(t, 1, decompress)
}

func TestStartCompression(t *testing.T) {
	var output bytes.Buffer
	telnet := Wrap(context.Background(), &mockConn{Writer: &output})

	require.ErrorIs(t, telnet.StartCompression(), ErrOptionDisabled)

	telnet.Options(func(t *CompatibilityTable) { t.SupportLocal(MCCP2) })
	require.NoError(t, telnet.Will(MCCP2))
	output.Reset()
	require.NoError(t, telnet.StartCompression())
	_, err := telnet.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, telnet.Close())

	start := []byte{IAC, SB, MCCP2, IAC, SE}
	require.True(t, bytes.HasPrefix(output.Bytes(), start))
	z, err := zlib.NewReader(bytes.NewReader(output.Bytes()[len(start):]))
	require.NoError(t, err)
	out, err := io.ReadAll(z)
	require.NoError(t, err)
	require.Equal(t, []byte{'h', 'e', 'l', 'l', 'o', IAC, GA}, out)
}
