package telnet

import "bytes"

// Escape doubles every IAC byte so data can travel inside a data stream or a
// subnegotiation payload.
func Escape(data []byte) []byte {
	out := make([]byte, 0, len(data)+bytes.Count(data, []byte{IAC}))
	for _, b := range data {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}

// Unescape collapses IAC IAC pairs, scanning left to right so that three IACs
// in a row become two. A lone trailing IAC is kept.
func Unescape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		out = append(out, data[i])
		if data[i] == IAC && i+1 < len(data) && data[i+1] == IAC {
			i++
		}
	}
	return out
}
