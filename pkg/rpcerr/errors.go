// Package rpcerr defines the error taxonomy shared by every layer of the
// framework: transport, codec, service, discovery and load-balance all
// report failures through the same *Error type so a client sees exactly
// one error per failed call, and the server can serialize it consistently
// as a Thrift Exception or a gRPC status.
package rpcerr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the coarse error category from spec §7. It drives retry and
// reusability decisions independently of the human-readable message.
type Kind int

const (
	KindTransport Kind = iota
	KindProtocol
	KindApplication
	KindBiz
	KindDeadline
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindApplication:
		return "application"
	case KindBiz:
		return "biz"
	case KindDeadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// ErrorCode identifies the specific failure within a Kind.
type ErrorCode string

const (
	// Transport
	CodeIO               ErrorCode = "IO"
	CodeConnectFailed    ErrorCode = "CONNECT_FAILED"
	CodeConnectTimeout   ErrorCode = "CONNECT_TIMEOUT"
	CodeReadWriteTimeout ErrorCode = "READ_WRITE_TIMEOUT"
	CodeUnexpectedEOF    ErrorCode = "UNEXPECTED_EOF"
	CodeTLSHandshake     ErrorCode = "TLS_HANDSHAKE"
	CodeConnectionReset  ErrorCode = "CONNECTION_RESET"

	// Protocol
	CodeFrameTooLarge    ErrorCode = "FRAME_TOO_LARGE"
	CodeBadMagic         ErrorCode = "BAD_MAGIC"
	CodeKVDecode         ErrorCode = "KV_DECODE"
	CodeBadSequenceID    ErrorCode = "BAD_SEQUENCE_ID"
	CodeInvalidTag       ErrorCode = "INVALID_TAG"

	// Application
	CodeUnknownMethod     ErrorCode = "UNKNOWN_METHOD"
	CodeInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
	CodeNotImplemented    ErrorCode = "NOT_IMPLEMENTED"

	// Deadline
	CodeTimeout ErrorCode = "TIMEOUT"

	// Retry (surfaced by the load-balance layer)
	CodeRetry ErrorCode = "RETRY"
)

// Error is the single error type returned across every layer boundary.
type Error struct {
	Kind    Kind
	Code    ErrorCode
	Message string
	// Extra carries Biz-kind payload (spec §3 ThriftException.Biz.extra).
	Extra map[string]string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(k Kind, c ErrorCode, msg string) *Error {
	return &Error{Kind: k, Code: c, Message: msg}
}

func Transport(code ErrorCode, msg string) *Error  { return new_(KindTransport, code, msg) }
func Protocol(code ErrorCode, msg string) *Error    { return new_(KindProtocol, code, msg) }
func Application(code ErrorCode, msg string) *Error { return new_(KindApplication, code, msg) }
func Deadline(msg string) *Error                    { return new_(KindDeadline, CodeTimeout, msg) }

// Biz constructs a user-defined domain error; it is never retried and its
// Extra map rides the envelope's exception payload.
func Biz(code int32, msg string, extra map[string]string) *Error {
	return &Error{Kind: KindBiz, Code: ErrorCode(fmt.Sprintf("BIZ_%d", code)), Message: msg, Extra: extra}
}

// Wrap attaches a lower-level cause to a higher-level error, matching the
// layered conversion spec §7 requires (e.g. codec wraps an I/O error as
// Transport).
func Wrap(cause error, k Kind, code ErrorCode, msg string) *Error {
	return &Error{Kind: k, Code: code, Message: msg, Cause: cause}
}

// Retryable reports whether the load-balance layer (spec §4.F, §7) may
// retry a call that failed with this error.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// Reusable reports whether the connection the error occurred on may still
// serve another request (spec invariant 3, §7 "connection marked
// non-reusable").
func (e *Error) Reusable() bool {
	switch e.Kind {
	case KindProtocol, KindTransport:
		return false
	default:
		return true
	}
}

// GRPCStatus lets errors.As-compatible callers hand an *Error straight to
// status.FromError / status.Convert.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.grpcCode(), e.Message)
}

func (e *Error) grpcCode() codes.Code {
	switch e.Kind {
	case KindTransport:
		switch e.Code {
		case CodeConnectTimeout, CodeReadWriteTimeout:
			return codes.DeadlineExceeded
		default:
			return codes.Unavailable
		}
	case KindProtocol:
		return codes.Internal
	case KindApplication:
		switch e.Code {
		case CodeUnknownMethod, CodeNotImplemented:
			return codes.Unimplemented
		default:
			return codes.Internal
		}
	case KindBiz:
		return codes.Unknown
	case KindDeadline:
		return codes.DeadlineExceeded
	default:
		return codes.Unknown
	}
}

// ToGRPC converts any error into a gRPC error, preserving *Error detail
// when present and falling back to Internal otherwise.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e.GRPCStatus().Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// FromGRPC converts a gRPC error received from a peer back into our
// taxonomy so the rest of the stack (retry, reusability) can reason about
// it uniformly regardless of wire protocol.
func FromGRPC(err error) *Error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return Application(CodeInternalServer, err.Error())
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return Deadline(st.Message())
	case codes.Unavailable:
		return Transport(CodeIO, st.Message())
	case codes.Unimplemented:
		return Application(CodeUnknownMethod, st.Message())
	default:
		return Application(CodeInternalServer, st.Message())
	}
}

// ThriftException is the envelope-level exception sum type (spec §3
// ThriftMessage.Exception): a plain value pkg/codec can serialize into a
// MsgTypeException message without rpcerr importing the codec package
// back (it already imports rpcerr for its own I/O error wrapping).
type ThriftException struct {
	Kind    string
	Code    string
	Message string
	Extra   map[string]string
}

// ToThriftException converts err into the wire-level exception shape a
// server sends back over the Thrift envelope in place of a reply
// message, the Thrift-side counterpart to GRPCStatus.
func (e *Error) ToThriftException() ThriftException {
	return ThriftException{
		Kind:    e.Kind.String(),
		Code:    string(e.Code),
		Message: e.Message,
		Extra:   e.Extra,
	}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindApplication for
// foreign errors so callers always get a decision-ready value.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindApplication
}
