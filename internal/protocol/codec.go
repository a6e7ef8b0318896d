package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// BufferView is a byte range of a backing buffer, the shape render surfaces use
// for typed-array views. A bare JSON string decodes as a view of the whole buffer.
type BufferView struct {
	Buffer     []byte
	ByteOffset int
	ByteLength int
}

type bufferViewJSON struct {
	Buffer     []byte `json:"buffer"`
	ByteOffset int    `json:"byte_offset"`
	ByteLength *int   `json:"byte_length,omitempty"`
}

// UnmarshalJSON accepts either a base64 string or {buffer, byte_offset, byte_length}.
func (v *BufferView) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var whole []byte
		if err := json.Unmarshal(data, &whole); err != nil {
			return err
		}
		*v = BufferView{Buffer: whole, ByteLength: len(whole)}
		return nil
	}

	var raw bufferViewJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Buffer = raw.Buffer
	v.ByteOffset = raw.ByteOffset
	if raw.ByteLength != nil {
		v.ByteLength = *raw.ByteLength
	} else {
		v.ByteLength = len(raw.Buffer) - raw.ByteOffset
	}
	return nil
}

// MarshalJSON always writes the object form.
func (v BufferView) MarshalJSON() ([]byte, error) {
	n := v.ByteLength
	return json.Marshal(bufferViewJSON{Buffer: v.Buffer, ByteOffset: v.ByteOffset, ByteLength: &n})
}

// Normalize copies the viewed range out of its backing buffer. The kernel is
// never handed the view itself.
func (v BufferView) Normalize() ([]byte, error) {
	if v.ByteOffset < 0 || v.ByteLength < 0 || v.ByteOffset > len(v.Buffer) || v.ByteLength > len(v.Buffer)-v.ByteOffset {
		return nil, fmt.Errorf("%w: offset=%d length=%d backing=%d",
			ErrBufferOutOfRange, v.ByteOffset, v.ByteLength, len(v.Buffer))
	}
	out := make([]byte, v.ByteLength)
	copy(out, v.Buffer[v.ByteOffset:v.ByteOffset+v.ByteLength])
	return out, nil
}

// textEnvelope is the JSON text form of a message with inline buffer views.
type textEnvelope struct {
	Message
	Buffers []BufferView `json:"buffers,omitempty"`
}

// DecodeText parses a JSON text frame. Inline buffer views are normalized into
// Message.Buffers.
func DecodeText(data []byte) (*Message, error) {
	var env textEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	msg := env.Message
	if msg.Header.MsgType == "" {
		return nil, fmt.Errorf("%w: missing header.msg_type", ErrMalformedFrame)
	}
	for i, view := range env.Buffers {
		buf, err := view.Normalize()
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		msg.Buffers = append(msg.Buffers, buf)
	}
	return &msg, nil
}

// EncodeText serializes msg as a JSON text frame, buffers included as views.
func EncodeText(msg *Message) ([]byte, error) {
	env := textEnvelope{Message: withDefaults(msg)}
	for _, b := range msg.Buffers {
		env.Buffers = append(env.Buffers, BufferView{Buffer: b, ByteLength: len(b)})
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Deserialize decodes a raw frame using the announced websocket protocol.
func Deserialize(frame Frame, wsProtocol string) (*Message, error) {
	if !frame.IsBinary() {
		return DecodeText([]byte(frame.Text))
	}
	return DeserializeBinary(frame.Binary, wsProtocol)
}

// Serialize encodes msg for the announced websocket protocol. The legacy
// protocol uses text frames unless the message carries buffers; v1 is always binary.
func Serialize(msg *Message, wsProtocol string) (Frame, error) {
	switch wsProtocol {
	case ProtocolLegacy:
		if len(msg.Buffers) == 0 {
			data, err := json.Marshal(withDefaults(msg))
			if err != nil {
				return Frame{}, fmt.Errorf("encode message: %w", err)
			}
			return TextFrame(string(data)), nil
		}
		data, err := serializeLegacy(msg)
		if err != nil {
			return Frame{}, err
		}
		return BinaryFrame(data), nil
	case ProtocolV1:
		data, err := serializeV1(msg)
		if err != nil {
			return Frame{}, err
		}
		return BinaryFrame(data), nil
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownProtocol, wsProtocol)
	}
}

// DeserializeBinary decodes a binary frame.
func DeserializeBinary(data []byte, wsProtocol string) (*Message, error) {
	var (
		msg *Message
		err error
	)
	switch wsProtocol {
	case ProtocolLegacy:
		msg, err = deserializeLegacy(data)
	case ProtocolV1:
		msg, err = deserializeV1(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, wsProtocol)
	}
	if err != nil {
		return nil, err
	}
	if msg.Header.MsgType == "" {
		return nil, fmt.Errorf("%w: missing header.msg_type", ErrMalformedFrame)
	}
	return msg, nil
}

// Legacy layout (big endian uint32):
//
//	nbufs | offset_0 .. offset_{nbufs-1} | json message | buffer_1 ..
func serializeLegacy(msg *Message) ([]byte, error) {
	body, err := json.Marshal(withDefaults(msg))
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	parts := append([][]byte{body}, msg.Buffers...)
	n := len(parts)
	offsets := make([]int, n)
	offsets[0] = 4 * (n + 1)
	for i := 1; i < n; i++ {
		offsets[i] = offsets[i-1] + len(parts[i-1])
	}

	out := make([]byte, offsets[n-1]+len(parts[n-1]))
	binary.BigEndian.PutUint32(out, uint32(n))
	for i, off := range offsets {
		binary.BigEndian.PutUint32(out[4*(i+1):], uint32(off))
		copy(out[off:], parts[i])
	}
	return out, nil
}

func deserializeLegacy(data []byte) (*Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: short legacy header", ErrMalformedFrame)
	}
	n := int(binary.BigEndian.Uint32(data))
	if n == 0 || n > len(data)/4-1 {
		return nil, fmt.Errorf("%w: bad buffer count %d", ErrMalformedFrame, n)
	}

	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.BigEndian.Uint32(data[4*(i+1):]))
	}
	offsets[n] = len(data)

	parts, err := slice(data, offsets, 4*(n+1))
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(parts[0], &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	msg.Buffers = copyAll(parts[1:])
	return &msg, nil
}

// v1 layout (little endian uint64):
//
//	offset_number | offset_0 .. offset_n | channel | header | parent_header | metadata | content | buffer_0 ..
//
// offset_number counts the offsets, which include the end of the last part.
func serializeV1(msg *Message) ([]byte, error) {
	m := withDefaults(msg)
	header, err := json.Marshal(m.Header)
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	parent, err := json.Marshal(m.ParentHeader)
	if err != nil {
		return nil, fmt.Errorf("encode parent_header: %w", err)
	}
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	parts := append([][]byte{[]byte(m.Channel), header, parent, metadata, content}, msg.Buffers...)
	count := len(parts) + 1
	offsets := make([]int, count)
	offsets[0] = 8 * (1 + count)
	for i, p := range parts {
		offsets[i+1] = offsets[i] + len(p)
	}

	out := make([]byte, offsets[count-1])
	binary.LittleEndian.PutUint64(out, uint64(count))
	for i, off := range offsets {
		binary.LittleEndian.PutUint64(out[8*(i+1):], uint64(off))
	}
	for i, p := range parts {
		copy(out[offsets[i]:], p)
	}
	return out, nil
}

func deserializeV1(data []byte) (*Message, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: short v1 header", ErrMalformedFrame)
	}
	count := binary.LittleEndian.Uint64(data)
	if count < 6 || count > uint64(len(data)/8-1) {
		return nil, fmt.Errorf("%w: bad offset count %d", ErrMalformedFrame, count)
	}

	offsets := make([]int, count)
	for i := range offsets {
		offsets[i] = int(binary.LittleEndian.Uint64(data[8*(i+1):]))
	}
	parts, err := slice(data, offsets, 8*(1+int(count)))
	if err != nil {
		return nil, err
	}

	msg := Message{Channel: Channel(parts[0])}
	targets := []any{&msg.Header, &msg.ParentHeader, &msg.Metadata, &msg.Content}
	for i, target := range targets {
		if err := json.Unmarshal(parts[i+1], target); err != nil {
			return nil, fmt.Errorf("%w: part %d: %v", ErrMalformedFrame, i+1, err)
		}
	}
	msg.Buffers = copyAll(parts[5:])
	return &msg, nil
}

// slice cuts data at consecutive offsets; every offset must lie at or after
// the header and offsets must not decrease.
func slice(data []byte, offsets []int, headerLen int) ([][]byte, error) {
	parts := make([][]byte, 0, len(offsets)-1)
	for i := 0; i+1 < len(offsets); i++ {
		start, end := offsets[i], offsets[i+1]
		if start < headerLen || start > end || end > len(data) {
			return nil, fmt.Errorf("%w: bad offsets %d..%d", ErrMalformedFrame, start, end)
		}
		parts = append(parts, data[start:end])
	}
	return parts, nil
}

func copyAll(parts [][]byte) [][]byte {
	if len(parts) == 0 {
		return nil
	}
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = append([]byte{}, p...)
	}
	return out
}

// withDefaults returns a shallow copy with non-nil metadata and content so they
// encode as {} rather than null.
func withDefaults(msg *Message) Message {
	m := *msg
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	if m.Content == nil {
		m.Content = map[string]any{}
	}
	return m
}
