// Package rpcmetrics exposes the telemetry hooks spec §1 allows ("only
// hooks are specified") without shipping a backend. Recorder is the hook
// interface every layer (pool, picker, codec) calls through; Collectors
// is the one concrete, no-op-safe implementation, adapted from the
// teacher's prometheus/client_golang-based pkg/metrics.
package rpcmetrics

// Recorder is implemented by any telemetry backend the caller wires in.
// A nil Recorder is never passed around the stack; callers use Noop
// instead so every call site can call its methods unconditionally.
type Recorder interface {
	PoolGauge(service, kind string, idle, active int)
	PickerSelected(endpoint, address string)
	CodecDecodeError(codec string)
	RequestDuration(method, kind string, seconds float64, ok bool)
}

type noopRecorder struct{}

func (noopRecorder) PoolGauge(service, kind string, idle, active int)          {}
func (noopRecorder) PickerSelected(endpoint, address string)                   {}
func (noopRecorder) CodecDecodeError(codec string)                             {}
func (noopRecorder) RequestDuration(method, kind string, seconds float64, ok bool) {}

// Noop is the default Recorder: every call site in pkg/client/pkg/server
// falls back to this when no backend was configured, matching spec §1's
// "only hooks are specified" — nothing fires unless a real Recorder is
// supplied.
var Noop Recorder = noopRecorder{}
