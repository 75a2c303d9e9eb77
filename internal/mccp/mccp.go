// Package mccp implements the zlib stream layer of the MUD Client Compression
// Protocol (MCCP2 and MCCP3). Starting and stopping compression is negotiated
// by the telnet layer; this package only switches a byte stream between plain
// and compressed.
package mccp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

var ErrAlreadyCompressing = errors.New("mccp: stream is already compressed")

// Reader passes bytes through until Decompress is called, then inflates them
// until the compressed stream ends, then passes bytes through again.
type Reader struct {
	src        *bufio.Reader
	z          io.ReadCloser
	compressed bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{src: bufio.NewReader(r)}
}

func (r *Reader) Compressed() bool { return r.compressed }

// Decompress marks the start of a compressed stream. rest holds bytes that
// were already read from the underlying reader and begin that stream.
func (r *Reader) Decompress(rest []byte) error {
	if r.compressed {
		return ErrAlreadyCompressing
	}
	if len(rest) > 0 {
		r.src = bufio.NewReader(io.MultiReader(bytes.NewReader(bytes.Clone(rest)), r.src))
	}
	r.compressed = true
	return nil
}

// Read may return 0, nil when a compressed stream ends.
func (r *Reader) Read(p []byte) (n int, err error) {
	if !r.compressed {
		return r.src.Read(p)
	}
	if r.z == nil {
		// src is an io.ByteReader, so inflating never reads past the end of
		// the compressed stream
		if r.z, err = zlib.NewReader(r.src); err != nil {
			return 0, fmt.Errorf("mccp: %w", err)
		}
	}
	n, err = r.z.Read(p)
	if err == io.EOF {
		err = r.z.Close()
		r.z = nil
		r.compressed = false
	} else if err != nil {
		err = fmt.Errorf("mccp: %w", err)
	}
	return
}

// Writer passes writes through until Start is called and compresses them
// afterwards. Every write is flushed so the peer can decode it immediately.
type Writer struct {
	w io.Writer
	z *zlib.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Compressing() bool { return w.z != nil }

func (w *Writer) Start() error {
	if w.z != nil {
		return ErrAlreadyCompressing
	}
	w.z = zlib.NewWriter(w.w)
	return nil
}

// Stop ends the compressed stream. Later writes are plain.
func (w *Writer) Stop() error {
	if w.z == nil {
		return nil
	}
	err := w.z.Close()
	w.z = nil
	return err
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.z == nil {
		return w.w.Write(p)
	}
	if n, err = w.z.Write(p); err != nil {
		return
	}
	return n, w.z.Flush()
}
