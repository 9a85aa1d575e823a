package codec

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"

	"conduit/pkg/rpcaddr"
	"conduit/pkg/rpcerr"
	"conduit/pkg/rpcinfo"
)

// ttheaderMagic identifies the TTHeader prelude (spec §6).
const ttheaderMagic uint16 = 0x1000

// Reserved TTHeader kv keys (spec §4.B, §6). "rip" is the short form of
// trans-remote-addr used inside the compact kv block.
const (
	kvRemoteAddr = "rip"
	kvCRRST      = "crrst"
)

// ttheaderMakeCodec prepends a header block — magic, header size in
// 4-byte words, kv count, then length-prefixed kv pairs — ahead of
// whatever the inner codec (normally the base Thrift codec) produces,
// and passes the remainder through untouched (spec §4.B).
type ttheaderMakeCodec struct {
	inner MakeCodec
}

// NewTTHeaderCodec wraps inner with the TTHeader kv prelude.
func NewTTHeaderCodec(inner MakeCodec) MakeCodec {
	return ttheaderMakeCodec{inner: inner}
}

func (t ttheaderMakeCodec) MakeCodec(r *bufio.Reader, w io.Writer) (Encoder, Decoder) {
	innerEnc, innerDec := t.inner.MakeCodec(r, w)
	return ttheaderEncoder{inner: innerEnc}, ttheaderDecoder{inner: innerDec}
}

type ttheaderEncoder struct{ inner Encoder }

func (e ttheaderEncoder) Encode(ctx context.Context, w io.Writer, msg *Message) error {
	headers := msg.Meta.Headers
	if err := writeHeaderBlock(w, headers); err != nil {
		return err
	}
	return e.inner.Encode(ctx, w, msg)
}

func writeHeaderBlock(w io.Writer, headers map[string]string) error {
	if err := binary.Write(w, binary.BigEndian, ttheaderMagic); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write ttheader magic")
	}

	var kvBuf []byte
	for k, v := range headers {
		kvBuf = append(kvBuf, encodeKV(k, v)...)
	}

	headerSizeWords := uint16((len(kvBuf) + 3) / 4)
	if err := binary.Write(w, binary.BigEndian, headerSizeWords); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write ttheader size")
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(headers))); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write ttheader kv count")
	}
	if _, err := w.Write(kvBuf); err != nil {
		return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write ttheader kv block")
	}
	// pad to the declared word boundary so a byte-exact peer stays in sync.
	if pad := int(headerSizeWords)*4 - len(kvBuf); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeIO, "write ttheader padding")
		}
	}
	return nil
}

func encodeKV(k, v string) []byte {
	buf := make([]byte, 0, 4+len(k)+len(v))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(k)))
	buf = append(buf, k...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(v)))
	buf = append(buf, v...)
	return buf
}

type ttheaderDecoder struct{ inner Decoder }

func (d ttheaderDecoder) Decode(ctx context.Context, r *bufio.Reader) (*Message, error) {
	headers, err := readHeaderBlock(r)
	if err != nil {
		return nil, err
	}

	msg, err := d.inner.Decode(ctx, r)
	if err != nil {
		return nil, err
	}
	msg.Meta.Headers = headers

	applyReservedHeaders(ctx, headers)
	return msg, nil
}

func readHeaderBlock(r *bufio.Reader) (map[string]string, error) {
	var magic uint16
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read ttheader magic")
	}
	if magic != ttheaderMagic {
		return nil, rpcerr.Protocol(rpcerr.CodeBadMagic, "unexpected ttheader magic")
	}

	var headerSizeWords, kvCount uint16
	if err := binary.Read(r, binary.BigEndian, &headerSizeWords); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read ttheader size")
	}
	if err := binary.Read(r, binary.BigEndian, &kvCount); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read ttheader kv count")
	}

	totalBytes := int(headerSizeWords) * 4
	block := make([]byte, totalBytes)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, rpcerr.Wrap(err, rpcerr.KindTransport, rpcerr.CodeUnexpectedEOF, "read ttheader kv block")
	}

	headers := make(map[string]string, kvCount)
	off := 0
	for i := 0; i < int(kvCount); i++ {
		k, n, err := decodeLenPrefixed(block, off)
		if err != nil {
			return nil, rpcerr.Protocol(rpcerr.CodeKVDecode, "malformed ttheader kv block")
		}
		off = n
		v, n, err := decodeLenPrefixed(block, off)
		if err != nil {
			return nil, rpcerr.Protocol(rpcerr.CodeKVDecode, "malformed ttheader kv block")
		}
		off = n
		headers[k] = v
	}
	return headers, nil
}

func decodeLenPrefixed(block []byte, off int) (string, int, error) {
	if off+2 > len(block) {
		return "", 0, io.ErrUnexpectedEOF
	}
	l := int(binary.BigEndian.Uint16(block[off : off+2]))
	off += 2
	if off+l > len(block) {
		return "", 0, io.ErrUnexpectedEOF
	}
	return string(block[off : off+l]), off + l, nil
}

// applyReservedHeaders implements the decode-side effects spec §4.B calls
// out by name: trans-remote-addr/rip updates the callee endpoint, and a
// non-empty crrst marks the transport non-reusable.
func applyReservedHeaders(ctx context.Context, headers map[string]string) {
	rc, ok := ctx.(*rpcinfo.Context)
	if !ok {
		return
	}
	if addr, ok := headers[kvRemoteAddr]; ok && addr != "" {
		if a, err := rpcaddr.NewTCPAddr(addr); err == nil && rc.Info != nil && rc.Info.Callee != nil {
			rc.Info.Callee.SetAddress(a)
		}
	}
	if crrst, ok := headers[kvCRRST]; ok && crrst != "" {
		rc.MarkNonReusable()
	}
}
