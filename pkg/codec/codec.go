package codec

import (
	"bufio"
	"context"
	"io"
)

// Encoder appends a framed payload to the writer and flushes (spec
// §4.B). Implementations must leave the writer in a state where another
// Encode call can immediately follow (no partial frame left buffered).
type Encoder interface {
	Encode(ctx context.Context, w io.Writer, msg *Message) error
}

// Decoder returns one complete message, or (nil, io.EOF) on a clean
// close observed exactly at a message boundary (spec §4.B "returns None
// on clean EOF"). Any other error must be treated as non-reusable by the
// caller (transport/pool layer), per spec §4.B's error policy.
type Decoder interface {
	Decode(ctx context.Context, r *bufio.Reader) (*Message, error)
}

// MakeCodec constructs a matched Encoder/Decoder pair bound to one
// connection's reader/writer halves (spec §4.B).
type MakeCodec interface {
	MakeCodec(r *bufio.Reader, w io.Writer) (Encoder, Decoder)
}

// EncoderFunc/DecoderFunc let small adapters (e.g. the gRPC bridge in
// pkg/grpcframe) satisfy these interfaces without a named type.
type EncoderFunc func(ctx context.Context, w io.Writer, msg *Message) error

func (f EncoderFunc) Encode(ctx context.Context, w io.Writer, msg *Message) error { return f(ctx, w, msg) }

type DecoderFunc func(ctx context.Context, r *bufio.Reader) (*Message, error)

func (f DecoderFunc) Decode(ctx context.Context, r *bufio.Reader) (*Message, error) { return f(ctx, r) }
