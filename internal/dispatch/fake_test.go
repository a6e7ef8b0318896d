package dispatch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/widgetsync/internal/events"
	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/log"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// fakeKernel is an in-memory kernel.Connection that runs hooks the way a
// real connection does.
type fakeKernel struct {
	opts kernel.Options

	mu        sync.Mutex
	onReceive kernel.ReceiveHook
	onSend    kernel.SendHook
	unsubs    int
	sent      []*protocol.Message
	failSend  func(*protocol.Message) error
	targets   []string
	hooks     map[string]kernel.MessageHook
	removed   []string
}

func newFakeKernel(id string) *fakeKernel {
	return &fakeKernel{
		opts:  kernel.Options{ID: id, Name: "python3", ClientID: "client-" + id},
		hooks: make(map[string]kernel.MessageHook),
	}
}

func (k *fakeKernel) ID() string { return k.opts.ID }
func (k *fakeKernel) Options() kernel.Options { return k.opts }

func (k *fakeKernel) Subscribe(onReceive kernel.ReceiveHook, onSend kernel.SendHook) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.onReceive, k.onSend = onReceive, onSend
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		k.onReceive, k.onSend = nil, nil
		k.unsubs++
	}
}

func (k *fakeKernel) SendShell(ctx context.Context, msg *protocol.Message) error {
	return k.send(ctx, protocol.ChannelShell, msg)
}

func (k *fakeKernel) SendControl(ctx context.Context, msg *protocol.Message) error {
	return k.send(ctx, protocol.ChannelControl, msg)
}

func (k *fakeKernel) send(ctx context.Context, channel protocol.Channel, msg *protocol.Message) error {
	out := *msg
	out.Channel = channel
	frame, err := protocol.Serialize(&out, k.opts.Protocol)
	if err != nil {
		return err
	}

	k.mu.Lock()
	onSend, fail := k.onSend, k.failSend
	k.mu.Unlock()
	if onSend != nil {
		if err := onSend(ctx, frame); err != nil {
			return err
		}
	}
	if fail != nil {
		if err := fail(&out); err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.sent = append(k.sent, &out)
	return nil
}

func (k *fakeKernel) RegisterCommTarget(name string, cb kernel.CommTargetFunc) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, t := range k.targets {
		if t == name {
			return fmt.Errorf("comm target %q already registered", name)
		}
	}
	k.targets = append(k.targets, name)
	return nil
}

func (k *fakeKernel) RemoveCommTarget(name string) {}

func (k *fakeKernel) RegisterMessageHook(msgID string, hook kernel.MessageHook) (func(), error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.hooks[msgID] = hook
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.hooks, msgID)
		k.removed = append(k.removed, msgID)
	}, nil
}

// receive delivers msg as a kernel frame and returns once the receive hook
// returns.
func (k *fakeKernel) receive(t *testing.T, msg *protocol.Message) {
	t.Helper()
	frame, err := protocol.Serialize(msg, k.opts.Protocol)
	require.NoError(t, err)
	k.receiveFrame(frame)
}

func (k *fakeKernel) receiveFrame(frame protocol.Frame) {
	k.mu.Lock()
	onReceive := k.onReceive
	k.mu.Unlock()
	if onReceive != nil {
		_ = onReceive(context.Background(), frame)
	}
}

// fireHook runs the hook installed for msg's parent, true if none.
func (k *fakeKernel) fireHook(msg *protocol.Message) bool {
	k.mu.Lock()
	hook := k.hooks[msg.ParentID()]
	k.mu.Unlock()
	if hook == nil {
		return true
	}
	return hook(context.Background(), msg)
}

func (k *fakeKernel) setFailSend(fn func(*protocol.Message) error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failSend = fn
}

func (k *fakeKernel) sentIDs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := []string{}
	for _, m := range k.sent {
		ids = append(ids, m.MsgID())
	}
	return ids
}

func (k *fakeKernel) sentMessages() []*protocol.Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*protocol.Message{}, k.sent...)
}

func (k *fakeKernel) registeredTargets() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string{}, k.targets...)
}

func (k *fakeKernel) hookIDs() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := []string{}
	for id := range k.hooks {
		ids = append(ids, id)
	}
	return ids
}

func (k *fakeKernel) removedHooks() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string{}, k.removed...)
}

func (k *fakeKernel) unsubscribed() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.unsubs
}

// newTestDispatcher builds a dispatcher with a private comm target registry.
// Pass a nil conn to start without a kernel.
func newTestDispatcher(t *testing.T, conn kernel.Connection, opts ...Option) (*Dispatcher, *kernel.StaticProvider) {
	t.Helper()
	p := kernel.NewStaticProvider(nil)
	if conn != nil {
		p = kernel.NewStaticProvider(conn)
	}
	opts = append([]Option{WithCommTargetRegistry(kernel.NewCommTargetRegistry())}, opts...)
	d := New(Config{Document: "notebook.ipynb"}, p, opts...)
	t.Cleanup(d.Dispose)
	return d, p
}

func command(t *testing.T, d *Dispatcher, cmdType CommandType, payload any) {
	t.Helper()
	cmd, err := NewCommand(cmdType, payload)
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), cmd))
}

func sendMessage(t *testing.T, d *Dispatcher, msg *protocol.Message) {
	t.Helper()
	data, err := protocol.EncodeText(msg)
	require.NoError(t, err)
	command(t, d, CmdSendMessage, SendMessagePayload{Data: string(data)})
}

func shellRequest(id, msgType string) *protocol.Message {
	return &protocol.Message{
		Header:  protocol.Header{MsgID: id, MsgType: msgType, Session: "s1"},
		Content: map[string]any{},
		Channel: protocol.ChannelShell,
	}
}

func iopubMsg(id, msgType, parent string, content map[string]any) *protocol.Message {
	return &protocol.Message{
		Header:       protocol.Header{MsgID: id, MsgType: msgType},
		ParentHeader: protocol.Header{MsgID: parent},
		Content:      content,
		Channel:      protocol.ChannelIOPub,
	}
}

func outputWidgetOpen(id, commID string) *protocol.Message {
	return iopubMsg(id, protocol.MsgCommOpen, "exec-1", map[string]any{
		"comm_id":     commID,
		"target_name": protocol.DefaultCommTarget,
		"data": map[string]any{
			"state": map[string]any{
				"_model_module": protocol.OutputModelModule,
				"_model_name":   protocol.OutputModelName,
			},
		},
	})
}

func sliderOpen(id, commID string) *protocol.Message {
	return iopubMsg(id, protocol.MsgCommOpen, "exec-1", map[string]any{
		"comm_id":     commID,
		"target_name": protocol.DefaultCommTarget,
		"data": map[string]any{
			"state": map[string]any{
				"_model_module": "@jupyter-widgets/controls",
				"_model_name":   "IntSliderModel",
			},
		},
	})
}

func commUpdate(id, commID string) *protocol.Message {
	return iopubMsg(id, protocol.MsgCommMsg, "exec-2", map[string]any{
		"comm_id": commID,
		"data":    map[string]any{"method": "update", "state": map[string]any{"outputs": []any{}}},
	})
}

func commClose(id, commID string) *protocol.Message {
	return iopubMsg(id, protocol.MsgCommClose, "exec-3", map[string]any{"comm_id": commID})
}

// nextPost reads events until one of kind arrives.
func nextPost(t *testing.T, ch <-chan events.Event, kind string) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "post channel closed waiting for %s", kind)
			if ev.Type == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s post", kind)
		}
	}
}

func countPosts(h *events.Hub, kind string) int {
	n := 0
	for _, ev := range h.SnapshotSince(0) {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

func assertBlocked(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
		t.Fatal("expected call to still be blocked")
	case <-time.After(50 * time.Millisecond):
	}
}

func assertDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return")
	}
}
