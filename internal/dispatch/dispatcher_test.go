package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/kernel/mocks"
)

func TestNewWatchesProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	prov := mocks.NewMockProvider(ctrl)

	stopped := false
	prov.EXPECT().Watch(gomock.Any()).Return(func() { stopped = true })
	prov.EXPECT().Current().Return(nil)

	d := New(Config{Document: "doc"}, prov)
	assert.False(t, d.Stats().Connected)

	d.Dispose()
	assert.True(t, stopped)
}

func TestKernelOptionsPostedOnAttach(t *testing.T) {
	k := newFakeKernel("k1")
	d, _ := newTestDispatcher(t, k)

	var opts kernel.Options
	for _, ev := range d.PostMessages().SnapshotSince(0) {
		if ev.Type == KindKernelOptions {
			require.NoError(t, ev.Decode(&opts))
		}
	}
	assert.Equal(t, k.Options(), opts)

	stats := d.Stats()
	assert.True(t, stats.Connected)
	assert.Equal(t, "k1", stats.KernelID)
	assert.Equal(t, "notebook.ipynb", stats.Document)
}

func TestSameKernelReattachIsNotRestart(t *testing.T) {
	k := newFakeKernel("k1")
	d, p := newTestDispatcher(t, k)

	p.Set(k)
	assert.Zero(t, countPosts(d.PostMessages(), KindRestartKernel))
	assert.Equal(t, 1, countPosts(d.PostMessages(), KindKernelOptions))
	assert.Zero(t, k.unsubscribed())
}

func TestRestartResolvesOutstandingWaits(t *testing.T) {
	k1 := newFakeKernel("k1")
	d, p := newTestDispatcher(t, k1)
	posts, cancel := d.PostMessages().Subscribe()
	defer cancel()

	// Held Output widget update.
	k1.receive(t, outputWidgetOpen("open-1", "out-1"))
	updateDone := make(chan struct{})
	go func() {
		k1.receive(t, commUpdate("upd-1", "out-1"))
		close(updateDone)
	}()
	nextPost(t, posts, KindMessage)
	nextPost(t, posts, KindMessage)

	// Pending hook decision.
	command(t, d, CmdRegisterMessageHook, RegisterMessageHookPayload{RequestID: "r1", HookMsgID: "exec-1"})
	hookResult := fireAsync(k1, "m1", "stream", "exec-1")
	nextPost(t, posts, KindMessageHookCall)

	assertBlocked(t, updateDone)

	k2 := newFakeKernel("k2")
	p.Set(k2)

	assertDone(t, updateDone)
	assert.True(t, <-hookResult, "pending hook resolves as proceed")
	nextPost(t, posts, KindRestartKernel)

	assert.Equal(t, []string{"exec-1"}, k1.removedHooks())
	assert.Equal(t, 1, k1.unsubscribed())

	stats := d.Stats()
	assert.Zero(t, stats.Waiting)
	assert.Zero(t, stats.MessageHooks)
	assert.Zero(t, stats.OutputWidgets)
	assert.False(t, stats.GateOpen)
	assert.Equal(t, "k2", stats.KernelID)

	// Output widget tracking was reset, so updates flow freely.
	done := make(chan struct{})
	go func() {
		k2.receive(t, commUpdate("upd-2", "out-1"))
		close(done)
	}()
	assertDone(t, done)
}

func TestSameKernelReattachAfterDetachKeepsCommTargets(t *testing.T) {
	k := newFakeKernel("k1")
	d, p := newTestDispatcher(t, k)
	command(t, d, CmdRegisterCommTarget, RegisterCommTargetPayload{TargetName: "my.target"})
	require.Equal(t, []string{"my.target"}, d.CommTargetsRegistered())

	p.Set(nil)
	p.Set(k)

	assert.True(t, d.Stats().Connected)
	assert.Equal(t, []string{"my.target"}, d.CommTargetsRegistered())
	assert.Equal(t, []string{"my.target"}, k.registeredTargets())
	assert.Zero(t, countPosts(d.PostMessages(), KindRestartKernel))
	assert.Equal(t, 2, countPosts(d.PostMessages(), KindKernelOptions))

	k2 := newFakeKernel("k2")
	p.Set(k2)
	assert.Equal(t, 1, countPosts(d.PostMessages(), KindRestartKernel))
	assert.Equal(t, []string{"my.target"}, k2.registeredTargets())
}

func TestRestartDropsOutputUpdateWaitingForGate(t *testing.T) {
	k1 := newFakeKernel("k1")
	d, p := newTestDispatcher(t, k1)
	posts, cancel := d.PostMessages().Subscribe()
	defer cancel()

	k1.receive(t, outputWidgetOpen("open-1", "out-1"))
	k1.receive(t, outputWidgetOpen("open-2", "out-2"))
	nextPost(t, posts, KindMessage)
	nextPost(t, posts, KindMessage)

	first := make(chan struct{})
	go func() {
		k1.receive(t, commUpdate("upd-1", "out-1"))
		close(first)
	}()
	nextPost(t, posts, KindMessage)

	second := make(chan struct{})
	go func() {
		k1.receive(t, commUpdate("upd-2", "out-2"))
		close(second)
	}()
	require.Eventually(t, func() bool { return d.Stats().Waiting == 4 }, 2*time.Second, 5*time.Millisecond)
	assertBlocked(t, second)

	k2 := newFakeKernel("k2")
	p.Set(k2)
	assertDone(t, first)
	assertDone(t, second)
	nextPost(t, posts, KindRestartKernel)

	stats := d.Stats()
	assert.False(t, stats.GateOpen)
	assert.Zero(t, stats.Waiting)
	for _, ev := range d.PostMessages().SnapshotSince(0) {
		if ev.Type != KindMessage {
			continue
		}
		var fwd ForwardedMessage
		require.NoError(t, ev.Decode(&fwd))
		assert.NotContains(t, fwd.Data, `"msg_id":"upd-2"`)
	}

	// The new kernel's Output updates get their own gate.
	k2.receive(t, outputWidgetOpen("open-3", "out-3"))
	nextPost(t, posts, KindMessage)
	done := make(chan struct{})
	go func() {
		k2.receive(t, commUpdate("upd-3", "out-3"))
		close(done)
	}()
	ev := nextPost(t, posts, KindMessage)
	var fwd ForwardedMessage
	require.NoError(t, ev.Decode(&fwd))
	assert.Contains(t, fwd.Data, `"msg_id":"upd-3"`)

	command(t, d, CmdMessageReceived, AckPayload{ID: fwd.ID})
	command(t, d, CmdIOPubHandled, AckPayload{ID: "upd-3"})
	assertDone(t, done)
	assert.False(t, d.Stats().GateOpen)
}

func TestOldKernelFramesIgnoredAfterRestart(t *testing.T) {
	k1 := newFakeKernel("k1")
	d, p := newTestDispatcher(t, k1)
	p.Set(newFakeKernel("k2"))

	k1.receive(t, sliderOpen("open-1", "slider-1"))
	assert.Zero(t, countPosts(d.PostMessages(), KindMessage))
}

func TestDetachResolvesWaits(t *testing.T) {
	k1 := newFakeKernel("k1")
	d, p := newTestDispatcher(t, k1)
	posts, cancel := d.PostMessages().Subscribe()
	defer cancel()

	k1.receive(t, outputWidgetOpen("open-1", "out-1"))
	done := make(chan struct{})
	go func() {
		k1.receive(t, commUpdate("upd-1", "out-1"))
		close(done)
	}()
	nextPost(t, posts, KindMessage)
	nextPost(t, posts, KindMessage)
	assertBlocked(t, done)

	p.Set(nil)
	assertDone(t, done)
	assert.False(t, d.Stats().Connected)
	assert.Zero(t, countPosts(d.PostMessages(), KindRestartKernel))
}

func TestDisposeResolvesWaitsAndCloses(t *testing.T) {
	k := newFakeKernel("k1")
	p := kernel.NewStaticProvider(k)
	d := New(Config{}, p, WithCommTargetRegistry(kernel.NewCommTargetRegistry()))
	posts, cancel := d.PostMessages().Subscribe()
	defer cancel()

	k.receive(t, outputWidgetOpen("open-1", "out-1"))
	done := make(chan struct{})
	go func() {
		k.receive(t, commUpdate("upd-1", "out-1"))
		close(done)
	}()
	nextPost(t, posts, KindMessage)
	nextPost(t, posts, KindMessage)

	d.Dispose()
	d.Dispose()
	assertDone(t, done)
	assert.Equal(t, 1, k.unsubscribed())

	for range posts {
	}

	cmd, err := NewCommand(CmdMessageReceived, AckPayload{ID: "x"})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Dispatch(context.Background(), cmd), ErrDisposed)

	p.Set(newFakeKernel("k2"))
	assert.False(t, d.Stats().Connected, "disposed dispatcher ignores new kernels")
}

func TestDispatchRejectsBadCommands(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{name: "unknown type", cmd: Command{Type: "teleport"}, wantErr: ErrUnknownCommand},
		{name: "missing payload", cmd: Command{Type: CmdSendMessage}},
		{name: "bad payload", cmd: Command{Type: CmdMessageReceived, Payload: json.RawMessage(`[1,2]`)}},
		{name: "empty target", cmd: Command{Type: CmdRegisterCommTarget, Payload: json.RawMessage(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.Dispatch(ctx, tt.cmd)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDispatchLogAndUnknownAcks(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	command(t, d, CmdLog, LogPayload{Level: "warning", Message: "widget manager ready", Category: "manager"})
	command(t, d, CmdMessageReceived, AckPayload{ID: "never-forwarded"})
	command(t, d, CmdIOPubHandled, AckPayload{ID: "never-gated"})

	assert.False(t, d.Stats().GateOpen)
}

func TestCommandJSONShape(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"type":"msg_received","payload":{"id":"abc"}}`), &cmd))
	assert.Equal(t, CmdMessageReceived, cmd.Type)

	var ack AckPayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &ack))
	assert.Equal(t, "abc", ack.ID)
}

func TestIDGeneratorUsedForCorrelation(t *testing.T) {
	var n atomic.Int64
	gen := func() string { return fmt.Sprintf("id-%d", n.Add(1)) }

	k := newFakeKernel("k1")
	d, _ := newTestDispatcher(t, k, WithIDGenerator(gen))
	posts, cancel := d.PostMessages().Subscribe()
	defer cancel()

	k.receive(t, sliderOpen("open-1", "comm-1"))
	var fwd ForwardedMessage
	require.NoError(t, nextPost(t, posts, KindMessage).Decode(&fwd))
	assert.Equal(t, "id-1", fwd.ID)

	command(t, d, CmdRegisterMessageHook, RegisterMessageHookPayload{RequestID: "r1", HookMsgID: "exec-1"})
	result := fireAsync(k, "m1", "stream", "exec-1")
	call := hookCall(t, posts)
	assert.Equal(t, "id-2", call.RequestID)

	command(t, d, CmdMessageHookResult, MessageHookResultPayload{RequestID: "id-2", MsgType: "stream", Result: false})
	assert.False(t, <-result)
}

func TestLoggerCarriesComponentAndDocument(t *testing.T) {
	var buf bytes.Buffer
	d, _ := newTestDispatcher(t, nil, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	command(t, d, CmdLog, LogPayload{Level: "warning", Message: "widget manager ready", Category: "manager"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "widget manager ready", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "dispatch", line["component"])
	assert.Equal(t, "notebook.ipynb", line["document"])
	assert.Equal(t, "surface", line["source"])
}
