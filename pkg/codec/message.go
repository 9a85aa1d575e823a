// Package codec implements the frame/encode/decode layer of spec §4.B: a
// composable chain of Encoder/Decoder pairs (base Thrift envelope, length
// framing, TTHeader prelude) built by a MakeCodec.
package codec

// MsgType is the Thrift envelope's message kind (spec §3, §6).
type MsgType byte

const (
	MsgTypeCall      MsgType = 1
	MsgTypeReply     MsgType = 2
	MsgTypeException MsgType = 3
	MsgTypeOneway    MsgType = 4
)

// Meta is the envelope header carried by every ThriftMessage (spec §3).
type Meta struct {
	SeqID      int32
	MsgType    MsgType
	MethodName string
	Headers    map[string]string
}

// Message is the generic envelope `ThriftMessage<M>` of spec §3. Payload
// is the already-serialized application body: this codec layer only
// frames and labels it, it does not know the IDL's wire format (IDL
// codegen is explicitly out of scope, spec §1).
type Message struct {
	Meta    Meta
	Payload []byte
}

// Clone returns a deep-enough copy safe to mutate (headers map and
// payload are copied).
func (m *Message) Clone() *Message {
	headers := make(map[string]string, len(m.Meta.Headers))
	for k, v := range m.Meta.Headers {
		headers[k] = v
	}
	payload := make([]byte, len(m.Payload))
	copy(payload, m.Payload)
	return &Message{Meta: Meta{SeqID: m.Meta.SeqID, MsgType: m.Meta.MsgType, MethodName: m.Meta.MethodName, Headers: headers}, Payload: payload}
}
