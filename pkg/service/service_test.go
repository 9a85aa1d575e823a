package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
)

func newCallContext(t *testing.T, cfg rpcinfo.Config) *rpcinfo.Context {
	t.Helper()
	info := rpcinfo.NewRpcInfo(rpcinfo.RoleClient, rpcinfo.NewEndpoint("caller"), rpcinfo.NewEndpoint("callee"), "Solve", cfg)
	return rpcinfo.NewContext(context.Background(), info)
}

func TestServiceBuilder_LayerOrdering(t *testing.T) {
	var order []string
	mark := func(name string) Layer[string, string] {
		return func(next Service[string, string]) Service[string, string] {
			return ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
				order = append(order, name+":in")
				resp, err := next.Call(cx, req)
				order = append(order, name+":out")
				return resp, err
			})
		}
	}

	inner := ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
		order = append(order, "inner")
		return req, nil
	})

	svc := NewServiceBuilder[string, string]().
		Layer(mark("A")).
		Layer(mark("B")).
		LayerFront(mark("C")).
		Build(inner)

	_, err := svc.Call(newCallContext(t, rpcinfo.Config{}), "x")
	require.NoError(t, err)

	// B was layered last via Layer => outermost. C was pushed via
	// LayerFront => innermost, directly around inner.
	assert.Equal(t, []string{"B:in", "A:in", "C:in", "inner", "C:out", "A:out", "B:out"}, order)
}

func TestBoxCloneService_DelegatesAndClones(t *testing.T) {
	inner := ServiceFunc[int, int](func(cx *rpcinfo.Context, req int) (int, error) {
		return req * 2, nil
	})
	boxed := BoxClone[int, int](inner)
	clone := boxed.Clone()

	resp, err := clone.Call(newCallContext(t, rpcinfo.Config{}), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, resp)
}

func TestTimeout_PassesThroughWhenUnconfigured(t *testing.T) {
	inner := ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
		return "ok", nil
	})
	svc := Timeout[string, string]()(inner)

	resp, err := svc.Call(newCallContext(t, rpcinfo.Config{}), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestTimeout_ReturnsDeadlineErrorOnExpiry(t *testing.T) {
	inner := ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
		<-cx.Done()
		return "", cx.Err()
	})
	svc := Timeout[string, string]()(inner)

	cx := newCallContext(t, rpcinfo.WithRPCTimeout(10*time.Millisecond))
	_, err := svc.Call(cx, "x")
	require.Error(t, err)

	var rerr *rpcerr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rpcerr.KindDeadline, rerr.Kind)
}

func TestTimeout_FastCallUnderBudgetSucceeds(t *testing.T) {
	inner := ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
		return "fast", nil
	})
	svc := Timeout[string, string]()(inner)

	cx := newCallContext(t, rpcinfo.WithRPCTimeout(time.Second))
	resp, err := svc.Call(cx, "x")
	require.NoError(t, err)
	assert.Equal(t, "fast", resp)
}

func TestCatchPanic_ConvertsPanicToApplicationError(t *testing.T) {
	inner := ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
		panic("boom")
	})
	svc := CatchPanic[string, string]()(inner)

	_, err := svc.Call(newCallContext(t, rpcinfo.Config{}), "x")
	require.Error(t, err)

	var rerr *rpcerr.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, rpcerr.KindApplication, rerr.Kind)
	assert.Equal(t, rpcerr.CodeInternalServer, rerr.Code)
}

func TestCatchPanic_PassesThroughNormalResult(t *testing.T) {
	inner := ServiceFunc[string, string](func(cx *rpcinfo.Context, req string) (string, error) {
		return "ok", nil
	})
	svc := CatchPanic[string, string]()(inner)

	resp, err := svc.Call(newCallContext(t, rpcinfo.Config{}), "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
