package grpcframe

import (
	"bytes"
	"io"

	"connectrpc.com/connect"
)

// connectCompressor adapts a connect.Compressor/Decompressor pair (the
// shape connect-go's WithCompression option takes) into this package's
// Compressor contract, so a Connect-registered compression scheme (e.g.
// brotli or zstd via a third-party connect.Option) can frame gRPC bodies
// here without reimplementing it.
type connectCompressor struct {
	name            string
	newCompressor   func() connect.Compressor
	newDecompressor func() connect.Decompressor
}

// FromConnect adapts a connect-go compression registration into a
// grpcframe.Compressor (SPEC_FULL.md §11: connect's Codec/Compressor
// shape is structurally close enough to reuse directly).
func FromConnect(name string, newCompressor func() connect.Compressor, newDecompressor func() connect.Decompressor) Compressor {
	return &connectCompressor{name: name, newCompressor: newCompressor, newDecompressor: newDecompressor}
}

func (c *connectCompressor) Name() string { return c.name }

func (c *connectCompressor) Compress(dst io.Writer, src []byte) error {
	comp := c.newCompressor()
	comp.Reset(dst)
	if _, err := comp.Write(src); err != nil {
		return err
	}
	return comp.Close()
}

func (c *connectCompressor) Decompress(dst io.Writer, src []byte) error {
	decomp := c.newDecompressor()
	if err := decomp.Reset(bytes.NewReader(src)); err != nil {
		return err
	}
	defer decomp.Close()
	_, err := io.Copy(dst, decomp)
	return err
}
