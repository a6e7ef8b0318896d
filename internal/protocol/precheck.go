package protocol

import "bytes"

var commMarkers = [][]byte{
	[]byte(MsgCommOpen),
	[]byte(MsgCommClose),
	[]byte(MsgCommMsg),
}

// Markers are the byte patterns used to decide, without decoding, whether a
// raw frame can matter to widget synchronisation.
type Markers struct {
	MimeType   string
	CommTarget string
}

// DefaultMarkers returns the standard widget MIME type and comm target.
func DefaultMarkers() Markers {
	return Markers{MimeType: WidgetMimeType, CommTarget: DefaultCommTarget}
}

// MentionsWidgets reports whether raw contains the widget MIME type or the
// default comm target name.
func (m Markers) MentionsWidgets(raw []byte) bool {
	return (m.MimeType != "" && bytes.Contains(raw, []byte(m.MimeType))) ||
		(m.CommTarget != "" && bytes.Contains(raw, []byte(m.CommTarget)))
}

// Relevant reports whether raw may be a widget frame and is worth decoding.
func (m Markers) Relevant(raw []byte) bool {
	if m.MentionsWidgets(raw) {
		return true
	}
	for _, marker := range commMarkers {
		if bytes.Contains(raw, marker) {
			return true
		}
	}
	return false
}

// MayBeDisplayData reports whether raw may be a display_data message.
func MayBeDisplayData(raw []byte) bool {
	return bytes.Contains(raw, []byte(MsgDisplayData))
}

// MayBeExecuteRequest reports whether raw may be an execute_request.
func MayBeExecuteRequest(raw []byte) bool {
	return bytes.Contains(raw, []byte(MsgExecuteRequest))
}
