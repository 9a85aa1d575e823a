package codec

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"conduit/pkg/rpcerr"
)

// baseCodec writes/reads the Thrift envelope prelude: method name, message
// type, seq_id, then the opaque payload (spec §4.B "Thrift base codec").
// It never frames its output with a length prefix itself — that is the
// job of framedCodec layered outside it.
type baseCodec struct{}

// NewBaseCodec returns the innermost codec of the chain: just the
// method/type/seq_id prelude plus payload, no framing, no headers.
func NewBaseCodec() MakeCodec { return baseMakeCodec{} }

type baseMakeCodec struct{}

func (baseMakeCodec) MakeCodec(r *bufio.Reader, w io.Writer) (Encoder, Decoder) {
	return baseCodec{}, baseCodec{}
}

func (baseCodec) Encode(ctx context.Context, w io.Writer, msg *Message) error {
	if err := writeString(w, msg.Meta.MethodName); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write method name")
	}
	if err := binary.Write(w, binary.BigEndian, byte(msg.Meta.MsgType)); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write msg type")
	}
	if err := binary.Write(w, binary.BigEndian, msg.Meta.SeqID); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write seq id")
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(msg.Payload))); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write payload length")
	}
	if _, err := w.Write(msg.Payload); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write payload")
	}
	return nil
}

func (baseCodec) Decode(ctx context.Context, r *bufio.Reader) (*Message, error) {
	method, err := readString(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read method name")
	}

	var msgType byte
	if err := binary.Read(r, binary.BigEndian, &msgType); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read msg type")
	}
	if msgType < byte(MsgTypeCall) || msgType > byte(MsgTypeOneway) {
		return nil, rpcerr.Protocol(rpcerr.CodeInvalidTag, "invalid thrift message type")
	}

	var seqID int32
	if err := binary.Read(r, binary.BigEndian, &seqID); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read seq id")
	}

	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read payload length")
	}
	const maxPayload = 64 << 20
	if payloadLen > maxPayload {
		return nil, rpcerr.Protocol(rpcerr.CodeFrameTooLarge, "thrift payload exceeds maximum frame size")
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read payload")
	}

	return &Message{Meta: Meta{SeqID: seqID, MsgType: MsgType(msgType), MethodName: method}, Payload: payload}, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
