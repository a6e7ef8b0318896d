package watch

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/widgetsync/internal/dispatch"
	"github.com/mattjoyce/widgetsync/internal/events"
	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

func event(t *testing.T, typ string, payload any) events.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{Type: typ, At: time.Now(), Data: data}
}

func mirrored(id, code string) dispatch.MirroredExecute {
	return dispatch.MirroredExecute{ID: id, Msg: &protocol.Message{
		Header:  protocol.Header{MsgID: id, MsgType: protocol.MsgExecuteRequest},
		Content: map[string]any{"code": code},
	}}
}

func TestTrafficTracksExecutions(t *testing.T) {
	tr := NewTraffic()

	tr.Apply(event(t, dispatch.KindKernelOptions, kernel.Options{ID: "k1", Name: "python3", Protocol: protocol.ProtocolV1}))
	tr.Apply(event(t, dispatch.KindMirrorExecute, mirrored("exec-1", "import ipywidgets\nw = ipywidgets.IntSlider()")))
	tr.Apply(event(t, dispatch.KindMirrorExecute, mirrored("exec-2", "print(1)")))
	tr.Apply(event(t, dispatch.KindDisplayData, dispatch.DisplayMessage{MsgID: "d1", ParentID: "exec-1"}))
	tr.Apply(event(t, dispatch.KindMessageHookCall, dispatch.HookCall{RequestID: "r1", ParentID: "exec-1"}))
	tr.Apply(event(t, dispatch.KindDisplayData, dispatch.DisplayMessage{MsgID: "d2", ParentID: "unknown"}))

	assert.Equal(t, "python3", tr.KernelName)
	assert.Equal(t, protocol.ProtocolV1, tr.Protocol)
	assert.Equal(t, 2, tr.Counts[dispatch.KindDisplayData])

	recent := tr.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "exec-2", recent[0].ID)
	assert.Equal(t, "exec-1", recent[1].ID)
	assert.Equal(t, "import ipywidgets ...", recent[1].Code)
	assert.Equal(t, 1, recent[1].Outputs)
	assert.Equal(t, 1, recent[1].Hooks)
}

func TestTrafficRestartClearsExecutions(t *testing.T) {
	tr := NewTraffic()
	tr.Apply(event(t, dispatch.KindMirrorExecute, mirrored("exec-1", "1")))
	tr.Apply(event(t, dispatch.KindRestartKernel, nil))

	assert.Empty(t, tr.Recent(10))
	assert.Equal(t, 1, tr.Restarts)
}

func TestTrafficBoundsExecutions(t *testing.T) {
	tr := NewTraffic()
	for i := range maxExecutions + 5 {
		tr.Apply(event(t, dispatch.KindMirrorExecute, mirrored(fmt.Sprintf("exec-%d", i), "x")))
	}
	assert.Len(t, tr.Recent(1000), maxExecutions)
}

func TestTrafficIgnoresGarbage(t *testing.T) {
	tr := NewTraffic()
	tr.Apply(events.Event{Type: dispatch.KindMirrorExecute, Data: []byte("not json")})
	tr.Apply(events.Event{Type: dispatch.KindMessage, Data: []byte(`{"id":"x","data":"{broken"}`)})

	assert.Empty(t, tr.Recent(10))
	assert.Equal(t, 1, tr.Counts[dispatch.KindMessage])
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "a = 1", firstLine("  a = 1  "))
	assert.Equal(t, "a ...", firstLine("a\nb"))
	assert.Len(t, firstLine("x = '0123456789012345678901234567890123456789'"), 34)
}
