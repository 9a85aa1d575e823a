package grpcframe

import (
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/rpcerr"
)

func TestTrailers_RoundTripSuccess(t *testing.T) {
	md := metadata.MD{"x-backward-tag": []string{"v"}}
	trailers := TrailersFromError(nil, md)
	encoded := trailers.Encode()

	decoded, err := DecodeTrailers(encoded)
	require.NoError(t, err)
	assert.Equal(t, codes.OK, decoded.Status)
	assert.Equal(t, []string{"v"}, decoded.MD.Get("x-backward-tag"))
}

func TestTrailers_RoundTripBizError(t *testing.T) {
	bizErr := rpcerr.Biz(7, "insufficient funds", nil)
	trailers := TrailersFromError(bizErr, metadata.MD{})
	encoded := trailers.Encode()

	assert.Equal(t, []string{"insufficient funds"}, encoded.Get("grpc-message"))

	_, err := DecodeTrailers(encoded)
	require.Error(t, err)
}
