package codec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"conduit/pkg/rpcerr"
)

// framedMakeCodec prepends a 4-byte big-endian length (excluding itself)
// to whatever the inner codec produces (spec §4.B "Framed codec", §6
// "Framed prefix"). The peer is required to match this framing or decode
// fails as a protocol error.
type framedMakeCodec struct {
	inner MakeCodec
}

// NewFramedCodec wraps inner with the 4-byte length prefix.
func NewFramedCodec(inner MakeCodec) MakeCodec {
	return framedMakeCodec{inner: inner}
}

func (f framedMakeCodec) MakeCodec(r *bufio.Reader, w io.Writer) (Encoder, Decoder) {
	innerEnc, innerDec := f.inner.MakeCodec(r, w)
	return framedEncoder{inner: innerEnc}, framedDecoder{inner: innerDec}
}

const maxFrameSize = 64 << 20 // spec §7 Protocol(FrameTooLarge)

type framedEncoder struct{ inner Encoder }

func (e framedEncoder) Encode(ctx context.Context, w io.Writer, msg *Message) error {
	var buf bytes.Buffer
	if err := e.inner.Encode(ctx, &buf, msg); err != nil {
		return err
	}
	if buf.Len() > maxFrameSize {
		return rpcerr.Protocol(rpcerr.CodeFrameTooLarge, "encoded frame exceeds maximum size")
	}
	if err := binary.Write(w, binary.BigEndian, uint32(buf.Len())); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write frame length")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write frame body")
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

type framedDecoder struct{ inner Decoder }

func (d framedDecoder) Decode(ctx context.Context, r *bufio.Reader) (*Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read frame length")
	}
	if length > maxFrameSize {
		return nil, rpcerr.Protocol(rpcerr.CodeFrameTooLarge, "peer frame exceeds maximum size")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read frame body")
	}

	innerReader := bufio.NewReader(bytes.NewReader(body))
	return d.inner.Decode(ctx, innerReader)
}
