package grpcframe

import (
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"conduit/pkg/rpcerr"
)

// Trailers carries the end-of-stream status, matching the literal wire
// shape of spec §6: "headers including grpc-status (ASCII decimal) and
// optional grpc-message; backward metadata keys retain their prefix."
type Trailers struct {
	Status  codes.Code
	Message string
	MD      metadata.MD
}

const (
	trailerStatus  = "grpc-status"
	trailerMessage = "grpc-message"
)

// TrailersFromError builds the Trailers a send-completion should emit
// for err (nil means success), folding any backward metadata already
// accumulated on md (spec §4.L "emits a TRAILERS frame ... and any
// backward metadata").
func TrailersFromError(err error, md metadata.MD) Trailers {
	if err == nil {
		return Trailers{Status: codes.OK, MD: md}
	}
	if rerr, ok := err.(*rpcerr.Error); ok {
		return Trailers{Status: rerr.GRPCStatus().Code(), Message: rerr.Message, MD: md}
	}
	return Trailers{Status: codes.Internal, Message: err.Error(), MD: md}
}

// Encode renders t as the metadata.MD a TRAILERS frame carries on the
// wire (grpc-status/grpc-message plus every backward key verbatim).
func (t Trailers) Encode() metadata.MD {
	out := metadata.MD{}
	for k, v := range t.MD {
		out[k] = v
	}
	out.Set(trailerStatus, strconv.Itoa(int(t.Status)))
	if t.Message != "" {
		out.Set(trailerMessage, t.Message)
	}
	return out
}

// DecodeTrailers parses a received metadata.MD back into Trailers and,
// when the status is not OK, a non-nil error built from the framework's
// own taxonomy so callers get one error type regardless of wire protocol.
func DecodeTrailers(md metadata.MD) (Trailers, error) {
	t := Trailers{MD: md, Status: codes.Unknown}
	if vals := md.Get(trailerStatus); len(vals) > 0 {
		if code, err := strconv.Atoi(vals[0]); err == nil {
			t.Status = codes.Code(code)
		}
	}
	if vals := md.Get(trailerMessage); len(vals) > 0 {
		t.Message = vals[0]
	}

	if t.Status == codes.OK {
		return t, nil
	}
	return t, grpcStatusToErr(t.Status, t.Message)
}

func grpcStatusToErr(code codes.Code, msg string) error {
	switch code {
	case codes.DeadlineExceeded:
		return rpcerr.Deadline(msg)
	case codes.Unavailable:
		return rpcerr.Transport(rpcerr.CodeIO, msg)
	case codes.Unimplemented:
		return rpcerr.Application(rpcerr.CodeUnknownMethod, msg)
	default:
		return rpcerr.Application(rpcerr.CodeInternalServer, msg)
	}
}
