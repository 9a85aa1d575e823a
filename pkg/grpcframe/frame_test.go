package grpcframe

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadDataFrame_Uncompressed(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("StreamingRequest{message: Volo}")

	require.NoError(t, WriteDataFrame(&buf, payload, nil))

	got, err := ReadDataFrame(bufio.NewReader(&buf), nil)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteReadDataFrame_Compressed(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("a"), 256)

	require.NoError(t, WriteDataFrame(&buf, payload, GzipCompressor{}))

	raw := buf.Bytes()
	require.Equal(t, byte(FlagCompressed), raw[0], "flag byte must mark a compressed DATA frame")

	got, err := ReadDataFrame(bufio.NewReader(&buf), GzipCompressor{})
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadDataFrame_EOF(t *testing.T) {
	_, err := ReadDataFrame(bufio.NewReader(bytes.NewReader(nil)), nil)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadDataFrame_TooLarge(t *testing.T) {
	header := make([]byte, 5)
	header[0] = byte(FlagUncompressed)
	putUint32BE(header[1:], maxMessageSize+1)

	_, err := ReadDataFrame(bufio.NewReader(bytes.NewReader(header)), nil)
	require.Error(t, err)
}
