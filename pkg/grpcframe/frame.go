// Package grpcframe implements the gRPC body/stream layer of spec §4.L:
// message-level DATA/TRAILERS framing atop an HTTP/2 stream, with
// per-message compression negotiation and the four gRPC call kinds.
package grpcframe

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"

	"golang.org/x/net/http2"

	"conduit/pkg/rpcerr"
)

// CompressFlag is the 1-byte flag preceding every DATA frame (spec §6
// "gRPC frame: flag(1) | length(4, BE) | message(length bytes)").
type CompressFlag byte

const (
	FlagUncompressed CompressFlag = 0
	FlagCompressed   CompressFlag = 1
)

// Compressor is the compression contract DATA frames negotiate against.
// FromConnect in connect_adapter.go adapts a connect-go compression
// registration into this shape.
type Compressor interface {
	Name() string
	Compress(dst io.Writer, src []byte) error
	Decompress(dst io.Writer, src []byte) error
}

// GzipCompressor is the one compressor wired by default (spec §4.L
// "Compression is applied per message and indicated by the flag byte").
type GzipCompressor struct{}

func (GzipCompressor) Name() string { return "gzip" }

func (GzipCompressor) Compress(dst io.Writer, src []byte) error {
	w := gzip.NewWriter(dst)
	if _, err := w.Write(src); err != nil {
		return err
	}
	return w.Close()
}

func (GzipCompressor) Decompress(dst io.Writer, src []byte) error {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(dst, r)
	return err
}

const maxMessageSize = 4 << 20

// WriteDataFrame writes one DATA frame: flag byte, 4-byte BE length,
// payload. If compressor is non-nil, payload is compressed first and the
// flag byte is set accordingly (spec §6).
func WriteDataFrame(w io.Writer, payload []byte, compressor Compressor) error {
	flag := FlagUncompressed
	body := payload
	if compressor != nil {
		var buf bytes.Buffer
		if err := compressor.Compress(&buf, payload); err != nil {
			return rpcerr.Wrap(err, rpcerr.KindProtocol, rpcerr.CodeInvalidTag, "grpc message compression failed")
		}
		body = buf.Bytes()
		flag = FlagCompressed
	}

	header := make([]byte, 5)
	header[0] = byte(flag)
	putUint32BE(header[1:], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write grpc frame header")
	}
	if _, err := w.Write(body); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write grpc frame body")
	}
	return nil
}

// ReadDataFrame reads one DATA frame and returns the decompressed
// payload. io.EOF is returned verbatim on a clean stream end.
func ReadDataFrame(r *bufio.Reader, compressor Compressor) ([]byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read grpc frame header")
	}

	flag := CompressFlag(header[0])
	length := be32(header[1:])
	if length > maxMessageSize {
		return nil, rpcerr.Protocol(rpcerr.CodeFrameTooLarge, "grpc message exceeds maximum size")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read grpc frame body")
	}

	if flag == FlagUncompressed || compressor == nil {
		return body, nil
	}
	var out bytes.Buffer
	if err := compressor.Decompress(&out, body); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindProtocol, rpcerr.CodeInvalidTag, "grpc message decompression failed")
	}
	return out.Bytes(), nil
}

func putUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// streamWriter adapts an http2.Framer's DATA-frame writer so the rest of
// this package can treat a gRPC stream as a plain io.Writer, matching
// spec §4.L's "body is a lazy sequence of frames" against the literal
// HTTP/2 DATA frame the wire sends (one level below our own DATA/TRAILERS
// framing, which rides inside it).
type streamWriter struct {
	framer   *http2.Framer
	streamID uint32
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if err := w.framer.WriteData(w.streamID, false, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewStreamWriter builds an io.Writer over an HTTP/2 stream using
// http2.Framer directly (SPEC_FULL.md §11: "frame-level encoder/decoder
// use http2.Framer directly against the stream's io.ReadWriter").
func NewStreamWriter(framer *http2.Framer, streamID uint32) io.Writer {
	return &streamWriter{framer: framer, streamID: streamID}
}
