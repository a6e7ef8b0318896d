package protocol

// BinaryPayload is the transport-safe form of a binary kernel frame. Data
// encodes as base64 in JSON.
type BinaryPayload struct {
	Protocol string `json:"protocol,omitempty"`
	Data     []byte `json:"data"`
}

// ToTransport copies a binary frame into its transport form.
func ToTransport(data []byte, wsProtocol string) BinaryPayload {
	return BinaryPayload{Protocol: wsProtocol, Data: append([]byte{}, data...)}
}

// Frame returns the binary frame the payload describes.
func (p BinaryPayload) Frame() Frame {
	return BinaryFrame(append([]byte{}, p.Data...))
}
