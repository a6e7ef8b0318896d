package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/widgetsync/internal/log"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func textLine(t *testing.T, msg *protocol.Message) string {
	t.Helper()
	data, err := protocol.EncodeText(msg)
	require.NoError(t, err)
	line, err := json.Marshal(streamFrame{Text: string(data)})
	require.NoError(t, err)
	return string(line)
}

func iopub(id, msgType, parent string, content map[string]any) *protocol.Message {
	return &protocol.Message{
		Header:       protocol.Header{MsgID: id, MsgType: msgType},
		ParentHeader: protocol.Header{MsgID: parent},
		Content:      content,
		Channel:      protocol.ChannelIOPub,
	}
}

func TestStreamRunDeliversInOrder(t *testing.T) {
	input := strings.Join([]string{
		textLine(t, iopub("1", "stream", "", nil)),
		"{not json",
		"",
		`{"binary":"AAECAw=="}`,
		textLine(t, iopub("2", "status", "", nil)),
	}, "\n")

	s := NewStream(strings.NewReader(input), &syncBuffer{}, Options{ID: "k1"})
	var got []protocol.Frame
	s.Subscribe(func(ctx context.Context, f protocol.Frame) error {
		got = append(got, f)
		return nil
	}, nil)

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, got, 3)
	assert.Contains(t, got[0].Text, `"msg_id":"1"`)
	assert.Equal(t, []byte{0, 1, 2, 3}, got[1].Binary)
	assert.Contains(t, got[2].Text, `"msg_id":"2"`)
}

func TestStreamMessageHookSuppressesDelivery(t *testing.T) {
	open := func(id, parent string) *protocol.Message {
		return iopub(id, protocol.MsgCommOpen, parent, map[string]any{
			"comm_id":     "c-" + id,
			"target_name": "my.target",
		})
	}
	input := strings.Join([]string{
		textLine(t, open("1", "p1")),
		textLine(t, open("2", "p2")),
	}, "\n")

	s := NewStream(strings.NewReader(input), &syncBuffer{}, Options{ID: "k1"})

	var opened []string
	require.NoError(t, s.RegisterCommTarget("my.target", func(msg *protocol.Message) {
		opened = append(opened, msg.CommID())
	}))

	var hooked []string
	remove, err := s.RegisterMessageHook("p1", func(ctx context.Context, msg *protocol.Message) bool {
		hooked = append(hooked, msg.MsgID())
		return false
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"1"}, hooked)
	assert.Equal(t, []string{"c-2"}, opened)

	remove()
	remove()
	s.mu.Lock()
	assert.Empty(t, s.hooks)
	s.mu.Unlock()
}

func TestStreamRegisterCommTargetTwiceFails(t *testing.T) {
	s := NewStream(nil, nil, Options{})
	require.NoError(t, s.RegisterCommTarget("t", func(*protocol.Message) {}))
	assert.Error(t, s.RegisterCommTarget("t", func(*protocol.Message) {}))
	s.RemoveCommTarget("t")
	assert.NoError(t, s.RegisterCommTarget("t", func(*protocol.Message) {}))
}

func TestStreamSendRunsHookThenWrites(t *testing.T) {
	out := &syncBuffer{}
	s := NewStream(strings.NewReader(""), out, Options{ID: "k1"})

	var hooked []protocol.Frame
	s.Subscribe(nil, func(ctx context.Context, f protocol.Frame) error {
		hooked = append(hooked, f)
		return nil
	})

	msg := &protocol.Message{Header: protocol.Header{MsgID: "e1", MsgType: protocol.MsgExecuteRequest}}
	require.NoError(t, s.SendShell(context.Background(), msg))
	require.NoError(t, s.SendControl(context.Background(), &protocol.Message{Header: protocol.Header{MsgID: "i1", MsgType: "interrupt_request"}}))

	require.Len(t, hooked, 2)
	assert.Contains(t, hooked[0].Text, `"channel":"shell"`)
	assert.Empty(t, msg.Channel, "caller's message must not be mutated")

	lines := out.Lines()
	require.Len(t, lines, 2)
	var first, second streamFrame
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, protocol.ChannelShell, first.Channel)
	assert.Equal(t, protocol.ChannelControl, second.Channel)
}

func TestStreamSendBinaryWithBuffers(t *testing.T) {
	out := &syncBuffer{}
	s := NewStream(nil, out, Options{ID: "k1", Protocol: protocol.ProtocolV1})

	msg := &protocol.Message{
		Header:  protocol.Header{MsgID: "m", MsgType: protocol.MsgCommMsg},
		Buffers: [][]byte{{9, 8, 7}},
	}
	require.NoError(t, s.SendShell(context.Background(), msg))

	var sf streamFrame
	require.NoError(t, json.Unmarshal([]byte(out.Lines()[0]), &sf))
	require.NotNil(t, sf.Binary)
	decoded, err := protocol.DeserializeBinary(sf.Binary, protocol.ProtocolV1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{9, 8, 7}}, decoded.Buffers)
	assert.Equal(t, protocol.ChannelShell, decoded.Channel)
}

func TestStreamStaleUnsubscribeKeepsNewerHooks(t *testing.T) {
	s := NewStream(nil, nil, Options{})
	old := s.Subscribe(func(context.Context, protocol.Frame) error { return nil }, nil)
	s.Subscribe(func(context.Context, protocol.Frame) error { return nil }, nil)
	old()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotNil(t, s.onReceive)
}

func TestNewStreamGeneratesIDs(t *testing.T) {
	s := NewStream(nil, nil, Options{Name: "python3"})
	assert.NotEmpty(t, s.ID())
	assert.NotEmpty(t, s.Options().ClientID)
	assert.Equal(t, "python3", s.Options().Name)
}
