package loadbalance

import (
	"errors"
	"time"

	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
)

// Retry drives picker up to retryCount+1 times, advancing it (calling
// Next again) after every transient transport failure, and stops early
// on the first non-transport error or once the picker runs dry (spec
// §4.F "retries up to retry_count times on transient transport errors,
// advancing the picker"). attempt performs the actual call against the
// address Next returned and reports its outcome through LoadFeedback if
// picker implements it.
func Retry[Resp any](picker Picker, cx *rpcinfo.Context, retryCount int, attempt func(rpcaddr.Address) (Resp, error)) (Resp, error) {
	var zero Resp
	var lastErr error

	for i := 0; i <= retryCount; i++ {
		addr, ok := picker.Next(cx)
		if !ok {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, rpcerr.Transport(rpcerr.CodeRetry, "no instances available")
		}

		start := time.Now()
		resp, err := attempt(addr)
		if fb, ok := picker.(LoadFeedback); ok {
			fb.Done(addr, time.Since(start), err)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		var rerr *rpcerr.Error
		if !errors.As(err, &rerr) || !rerr.Retryable() {
			return zero, err
		}
	}
	return zero, lastErr
}
