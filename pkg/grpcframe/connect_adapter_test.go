package grpcframe

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"connectrpc.com/connect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ connect.Compressor   = (*gzipConnectCompressor)(nil)
	_ connect.Decompressor = (*gzipConnectDecompressor)(nil)
)

// gzipConnectCompressor/gzipConnectDecompressor satisfy connect-go's
// Compressor/Decompressor shape (Reset + io.Writer/io.Closer and
// Reset + io.Reader/io.Closer respectively) using stdlib gzip, so this
// test exercises FromConnect without depending on a registered
// third-party compression scheme.
type gzipConnectCompressor struct {
	w *gzip.Writer
}

func (c *gzipConnectCompressor) Reset(w io.Writer) { c.w = gzip.NewWriter(w) }
func (c *gzipConnectCompressor) Write(p []byte) (int, error) {
	return c.w.Write(p)
}
func (c *gzipConnectCompressor) Close() error { return c.w.Close() }

type gzipConnectDecompressor struct {
	r *gzip.Reader
}

func (d *gzipConnectDecompressor) Reset(r io.Reader) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	d.r = gr
	return nil
}
func (d *gzipConnectDecompressor) Read(p []byte) (int, error) { return d.r.Read(p) }
func (d *gzipConnectDecompressor) Close() error               { return d.r.Close() }

func TestFromConnect_RoundTrip(t *testing.T) {
	compressor := FromConnect("gzip",
		func() connect.Compressor { return &gzipConnectCompressor{} },
		func() connect.Decompressor { return &gzipConnectDecompressor{} },
	)

	assert.Equal(t, "gzip", compressor.Name())

	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("conduit"), 64)
	require.NoError(t, compressor.Compress(&buf, payload))

	var out bytes.Buffer
	require.NoError(t, compressor.Decompress(&out, buf.Bytes()))
	assert.Equal(t, payload, out.Bytes())
}
