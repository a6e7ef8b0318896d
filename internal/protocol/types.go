package protocol

import "errors"

// Channel names a Jupyter messaging channel.
type Channel string

const (
	ChannelShell   Channel = "shell"
	ChannelIOPub   Channel = "iopub"
	ChannelControl Channel = "control"
	ChannelStdin   Channel = "stdin"
)

// Websocket sub-protocols a kernel connection may announce.
const (
	ProtocolLegacy = ""
	ProtocolV1     = "v1.kernel.websocket.jupyter.org"
)

// Widget protocol constants.
const (
	WidgetMimeType    = "application/vnd.jupyter.widget-view+json"
	DefaultCommTarget = "jupyter.widget"
	OutputModelModule = "@jupyter-widgets/output"
	OutputModelName   = "OutputModel"
)

// Message types the dispatcher inspects.
const (
	MsgCommOpen       = "comm_open"
	MsgCommClose      = "comm_close"
	MsgCommMsg        = "comm_msg"
	MsgDisplayData    = "display_data"
	MsgExecuteRequest = "execute_request"
	MsgStatus         = "status"
)

var (
	ErrMalformedFrame   = errors.New("protocol: malformed frame")
	ErrUnknownProtocol  = errors.New("protocol: unknown websocket protocol")
	ErrUnknownChannel   = errors.New("protocol: unknown channel")
	ErrBufferOutOfRange = errors.New("protocol: buffer view out of range")
)

// Header is a Jupyter message header.
type Header struct {
	MsgID    string `json:"msg_id,omitempty"`
	MsgType  string `json:"msg_type,omitempty"`
	Session  string `json:"session,omitempty"`
	Username string `json:"username,omitempty"`
	Date     string `json:"date,omitempty"`
	Version  string `json:"version,omitempty"`
}

// Message is a decoded Jupyter protocol message.
type Message struct {
	Header       Header         `json:"header"`
	ParentHeader Header         `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
	Channel      Channel        `json:"channel,omitempty"`

	// Buffers are carried out of band of the JSON body.
	Buffers [][]byte `json:"-"`
}

// Frame is one raw kernel frame. A frame with a non-nil Binary is binary,
// otherwise Text holds the JSON message.
type Frame struct {
	Text   string
	Binary []byte
}

// TextFrame wraps a JSON text frame.
func TextFrame(s string) Frame {
	return Frame{Text: s}
}

// BinaryFrame wraps a binary frame.
func BinaryFrame(b []byte) Frame {
	if b == nil {
		b = []byte{}
	}
	return Frame{Binary: b}
}

// IsBinary reports whether the frame is binary.
func (f Frame) IsBinary() bool {
	return f.Binary != nil
}

// Bytes returns the raw bytes of the frame regardless of its kind.
func (f Frame) Bytes() []byte {
	if f.IsBinary() {
		return f.Binary
	}
	return []byte(f.Text)
}

// MsgType returns header.msg_type.
func (m *Message) MsgType() string {
	return m.Header.MsgType
}

// MsgID returns header.msg_id.
func (m *Message) MsgID() string {
	return m.Header.MsgID
}

// ParentID returns parent_header.msg_id, empty when the message has no parent.
func (m *Message) ParentID() string {
	return m.ParentHeader.MsgID
}

// CommID returns content.comm_id for comm messages.
func (m *Message) CommID() string {
	return stringAt(m.Content, "comm_id")
}

// TargetName returns content.target_name for comm_open messages.
func (m *Message) TargetName() string {
	return stringAt(m.Content, "target_name")
}

// CommMethod returns content.data.method for comm_msg messages.
func (m *Message) CommMethod() string {
	return stringAt(m.Content, "data", "method")
}

// IsOutputWidgetOpen reports whether a comm_open creates an Output widget model.
func (m *Message) IsOutputWidgetOpen() bool {
	if m.MsgType() != MsgCommOpen {
		return false
	}
	return stringAt(m.Content, "data", "state", "_model_module") == OutputModelModule &&
		stringAt(m.Content, "data", "state", "_model_name") == OutputModelName
}

// stringAt walks nested JSON objects and returns the string at path.
func stringAt(root map[string]any, path ...string) string {
	var cur any = root
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[key]
	}
	s, _ := cur.(string)
	return s
}

// boolAt is stringAt for booleans.
func boolAt(root map[string]any, path ...string) bool {
	var cur any = root
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		cur = obj[key]
	}
	b, _ := cur.(bool)
	return b
}
