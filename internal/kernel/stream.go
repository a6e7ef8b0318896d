package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/widgetsync/internal/log"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// maxLineBytes caps a single frame line read from the kernel bridge.
const maxLineBytes = 64 * 1024 * 1024

// streamFrame is one line of the bridge protocol. Exactly one of Text or
// Binary is set; Binary is base64 in JSON.
type streamFrame struct {
	Channel protocol.Channel `json:"channel,omitempty"`
	Text    string           `json:"text,omitempty"`
	Binary  []byte           `json:"binary,omitempty"`
}

type hookEntry struct {
	id int
	fn MessageHook
}

// Stream is a Connection over a pair of byte streams carrying one JSON frame
// per line, typically the stdin/stdout of a kernel bridge process. Comm
// targets and message hooks are evaluated locally before a frame is
// considered delivered.
type Stream struct {
	opts   Options
	r      io.Reader
	w      io.Writer
	logger *slog.Logger

	wmu sync.Mutex // serialises writes to w

	mu        sync.Mutex
	onReceive ReceiveHook
	onSend    SendHook
	subID     int
	targets   map[string]CommTargetFunc
	hooks     map[string][]hookEntry // newest first
	nextHook  int
}

// NewStream builds a Stream. Missing ID and ClientID are generated.
func NewStream(r io.Reader, w io.Writer, opts Options) *Stream {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.ClientID == "" {
		opts.ClientID = uuid.NewString()
	}
	return &Stream{
		opts:    opts,
		r:       r,
		w:       w,
		logger:  log.WithKernel(opts.ID).With("component", "kernel"),
		targets: make(map[string]CommTargetFunc),
		hooks:   make(map[string][]hookEntry),
	}
}

func (s *Stream) ID() string {
	return s.opts.ID
}

func (s *Stream) Options() Options {
	return s.opts
}

// Run reads frames until the reader is exhausted or fails. Malformed lines are
// logged and skipped.
func (s *Stream) Run(ctx context.Context) error {
	s.logger.Info("kernel stream started")
	defer s.logger.Info("kernel stream stopped")

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var sf streamFrame
		if err := json.Unmarshal(line, &sf); err != nil {
			s.logger.Warn("dropping malformed stream line", "error", err)
			continue
		}
		frame := protocol.TextFrame(sf.Text)
		if sf.Binary != nil {
			frame = protocol.BinaryFrame(sf.Binary)
		}
		s.deliver(ctx, frame)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read kernel stream: %w", err)
	}
	return nil
}

// deliver runs the receive hook, then message hooks and comm targets.
func (s *Stream) deliver(ctx context.Context, frame protocol.Frame) {
	s.mu.Lock()
	onReceive := s.onReceive
	needDecode := len(s.hooks) > 0 || len(s.targets) > 0
	s.mu.Unlock()

	if onReceive != nil {
		if err := onReceive(ctx, frame); err != nil {
			s.logger.Warn("receive hook failed", "error", err)
		}
	}
	if !needDecode {
		return
	}

	msg, err := protocol.Deserialize(frame, s.opts.Protocol)
	if err != nil {
		s.logger.Debug("frame not decodable for local delivery", "error", err)
		return
	}

	if msg.Channel == protocol.ChannelIOPub && msg.ParentID() != "" {
		s.mu.Lock()
		chain := append([]hookEntry(nil), s.hooks[msg.ParentID()]...)
		s.mu.Unlock()
		for _, h := range chain {
			if !h.fn(ctx, msg) {
				s.logger.Debug("message suppressed by hook", "msg_id", msg.MsgID(), "parent_id", msg.ParentID())
				return
			}
		}
	}

	if msg.MsgType() == protocol.MsgCommOpen {
		s.mu.Lock()
		cb := s.targets[msg.TargetName()]
		s.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (s *Stream) Subscribe(onReceive ReceiveHook, onSend SendHook) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subID++
	id := s.subID
	s.onReceive = onReceive
	s.onSend = onSend
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.subID == id {
			s.onReceive = nil
			s.onSend = nil
		}
	}
}

func (s *Stream) SendShell(ctx context.Context, msg *protocol.Message) error {
	return s.send(ctx, protocol.ChannelShell, msg)
}

func (s *Stream) SendControl(ctx context.Context, msg *protocol.Message) error {
	return s.send(ctx, protocol.ChannelControl, msg)
}

func (s *Stream) send(ctx context.Context, channel protocol.Channel, msg *protocol.Message) error {
	out := *msg
	out.Channel = channel
	frame, err := protocol.Serialize(&out, s.opts.Protocol)
	if err != nil {
		return fmt.Errorf("serialize %s message: %w", channel, err)
	}

	s.mu.Lock()
	onSend := s.onSend
	s.mu.Unlock()
	if onSend != nil {
		if err := onSend(ctx, frame); err != nil {
			return fmt.Errorf("send hook: %w", err)
		}
	}

	sf := streamFrame{Channel: channel, Text: frame.Text}
	if frame.IsBinary() {
		sf = streamFrame{Channel: channel, Binary: frame.Binary}
	}
	line, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("encode stream line: %w", err)
	}
	line = append(line, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("write %s message: %w", channel, err)
	}
	return nil
}

func (s *Stream) RegisterCommTarget(name string, cb CommTargetFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[name]; ok {
		return fmt.Errorf("comm target %q already registered", name)
	}
	s.targets[name] = cb
	return nil
}

func (s *Stream) RemoveCommTarget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.targets, name)
}

func (s *Stream) RegisterMessageHook(msgID string, hook MessageHook) (func(), error) {
	if msgID == "" {
		return nil, fmt.Errorf("message hook needs a msg id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHook++
	id := s.nextHook
	s.hooks[msgID] = append([]hookEntry{{id: id, fn: hook}}, s.hooks[msgID]...)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		chain := s.hooks[msgID]
		for i, h := range chain {
			if h.id == id {
				chain = append(chain[:i:i], chain[i+1:]...)
				break
			}
		}
		if len(chain) == 0 {
			delete(s.hooks, msgID)
			return
		}
		s.hooks[msgID] = chain
	}, nil
}
