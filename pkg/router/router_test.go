package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/rpcinfo"
)

func TestRouter_RegisterAndLookup(t *testing.T) {
	r := New()
	id, err := r.Register("/solver.v1.Solver/Solve")
	require.NoError(t, err)

	got, ok := r.Lookup("/solver.v1.Solver/Solve")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestRouter_DuplicateRegistrationIsConfigError(t *testing.T) {
	r := New()
	_, err := r.Register("Solve")
	require.NoError(t, err)

	_, err = r.Register("Solve")
	require.Error(t, err)
}

func TestRouter_UnknownMethodMisses(t *testing.T) {
	r := New()
	_, err := r.Register("Solve")
	require.NoError(t, err)

	_, ok := r.Lookup("Unknown")
	assert.False(t, ok)
}

func TestRouter_CatchAllSuffixIgnored(t *testing.T) {
	r := New()
	_, err := r.Register("/solver.v1.Solver/Solve")
	require.NoError(t, err)

	id, ok := r.Lookup("/solver.v1.Solver/Solve/*")
	require.True(t, ok)
	assert.Equal(t, RouteID(0), id)
}

func TestServiceRouter_DispatchRoutesByMethod(t *testing.T) {
	sr := NewServiceRouter()
	require.NoError(t, sr.Handle("Echo", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}))

	info := rpcinfo.NewRpcInfo(rpcinfo.RoleServer, rpcinfo.NewEndpoint("caller"), rpcinfo.NewEndpoint("callee"), "Echo", rpcinfo.Config{})
	cx := rpcinfo.NewContext(context.Background(), info)

	out, err := sr.Dispatch(cx, "Echo", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), out)
}

func TestServiceRouter_DispatchUnknownMethodErrors(t *testing.T) {
	sr := NewServiceRouter()
	info := rpcinfo.NewRpcInfo(rpcinfo.RoleServer, rpcinfo.NewEndpoint("caller"), rpcinfo.NewEndpoint("callee"), "Missing", rpcinfo.Config{})
	cx := rpcinfo.NewContext(context.Background(), info)

	_, err := sr.Dispatch(cx, "Missing", nil)
	require.Error(t, err)
}

func TestServiceRouter_AsServiceDispatchesByContextMethod(t *testing.T) {
	sr := NewServiceRouter()
	require.NoError(t, sr.Handle("Echo", func(cx *rpcinfo.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}))
	svc := sr.AsService()

	info := rpcinfo.NewRpcInfo(rpcinfo.RoleServer, rpcinfo.NewEndpoint("caller"), rpcinfo.NewEndpoint("callee"), "Echo", rpcinfo.Config{})
	cx := rpcinfo.NewContext(context.Background(), info)

	out, err := svc.Call(cx, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), out)
}
