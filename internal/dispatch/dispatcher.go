package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mattjoyce/widgetsync/internal/events"
	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/log"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// Config holds per-document dispatcher settings.
type Config struct {
	Document          string
	DefaultCommTarget string
	WidgetMimeType    string
	EventBuffer       int
}

// DefaultConfig returns the standard widget markers and a 256 event buffer.
func DefaultConfig() Config {
	return Config{
		DefaultCommTarget: protocol.DefaultCommTarget,
		WidgetMimeType:    protocol.WidgetMimeType,
		EventBuffer:       256,
	}
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithMirrorPredicate replaces protocol.ShouldMirror.
func WithMirrorPredicate(fn protocol.MirrorPredicate) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.shouldMirror = fn
		}
	}
}

// WithCommTargetRegistry replaces kernel.DefaultCommTargets.
func WithCommTargetRegistry(r *kernel.CommTargetRegistry) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithIDGenerator replaces uuid.NewString for correlation ids.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

// WithLogger replaces the base logger. The dispatcher adds its component and
// document fields either way.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Stats is a point-in-time view of dispatcher state.
type Stats struct {
	Document        string   `json:"document,omitempty"`
	Connected       bool     `json:"connected"`
	KernelID        string   `json:"kernel_id,omitempty"`
	UsingWidgets    bool     `json:"using_widgets"`
	PendingOutbound int      `json:"pending_outbound"`
	Waiting         int      `json:"waiting"`
	MessageHooks    int      `json:"message_hooks"`
	OutputWidgets   int      `json:"output_widgets"`
	GateOpen        bool     `json:"gate_open"`
	CommTargets     []string `json:"comm_targets"`
	DroppedPosts    int64    `json:"dropped_posts"`
}

// Dispatcher mediates between one kernel connection and one render surface.
type Dispatcher struct {
	cfg          Config
	provider     kernel.Provider
	registry     *kernel.CommTargetRegistry
	shouldMirror protocol.MirrorPredicate
	markers      protocol.Markers
	newID        func() string
	logger       *slog.Logger

	posts     *events.Hub
	displays  *events.Hub
	stopWatch func()

	mu           sync.Mutex
	disposed     bool
	conn         kernel.Connection
	unsubscribe  func()
	lastKernelID string // id of the most recently attached kernel
	usingWidgets bool

	outbound   []outboundPayload
	generation uint64
	flushing   bool

	waiting       map[string]*waitingMessage
	gate          *fullHandleGate
	outputWidgets map[string]struct{}

	hooks               map[string]func() // hook msg id -> remover, nil while installing
	pendingHookRemovals map[string]string // trigger msg id -> hook msg id
	hookRequests        map[string]*signal[bool]

	pendingTargets    []string
	registeredTargets []string
	knownTargets      map[string]struct{} // pending or registered
}

// New creates a Dispatcher and attaches whatever kernel provider currently
// holds. Later kernel changes arrive through provider.Watch.
func New(cfg Config, provider kernel.Provider, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.DefaultCommTarget == "" {
		cfg.DefaultCommTarget = def.DefaultCommTarget
	}
	if cfg.WidgetMimeType == "" {
		cfg.WidgetMimeType = def.WidgetMimeType
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}

	d := &Dispatcher{
		cfg:          cfg,
		provider:     provider,
		registry:     kernel.DefaultCommTargets,
		shouldMirror: protocol.ShouldMirror,
		markers:      protocol.Markers{MimeType: cfg.WidgetMimeType, CommTarget: cfg.DefaultCommTarget},
		newID:        uuid.NewString,
		logger:       log.Get(),
		posts:        events.NewHub(cfg.EventBuffer),
		displays:     events.NewHub(cfg.EventBuffer),

		waiting:             make(map[string]*waitingMessage),
		outputWidgets:       make(map[string]struct{}),
		hooks:               make(map[string]func()),
		pendingHookRemovals: make(map[string]string),
		hookRequests:        make(map[string]*signal[bool]),
		knownTargets:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(slog.String("component", "dispatch"), slog.String("document", cfg.Document))

	d.stopWatch = provider.Watch(d.attach)
	if conn := provider.Current(); conn != nil {
		d.attach(conn)
	}
	return d
}

// PostMessages carries notifications for the render surface.
func (d *Dispatcher) PostMessages() *events.Hub {
	return d.posts
}

// DisplayMessages carries display_data messages seen on the kernel stream.
func (d *Dispatcher) DisplayMessages() *events.Hub {
	return d.displays
}

// IsUsingWidgets reports whether any kernel frame has mentioned widgets.
func (d *Dispatcher) IsUsingWidgets() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usingWidgets
}

// CommTargetsRegistered returns registered comm target names in request order.
func (d *Dispatcher) CommTargetsRegistered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.registeredTargets...)
}

// PendingOutbound returns the number of queued surface payloads.
func (d *Dispatcher) PendingOutbound() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.outbound)
}

// Stats returns counters and flags for health and monitoring endpoints.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		Document:        d.cfg.Document,
		Connected:       d.conn != nil,
		UsingWidgets:    d.usingWidgets,
		PendingOutbound: len(d.outbound),
		Waiting:         len(d.waiting),
		MessageHooks:    len(d.hooks),
		OutputWidgets:   len(d.outputWidgets),
		GateOpen:        d.gate != nil,
		CommTargets:     append([]string{}, d.registeredTargets...),
		DroppedPosts:    d.posts.Dropped(),
	}
	if d.conn != nil {
		s.KernelID = d.conn.ID()
	}
	return s
}

// attach switches the dispatcher to conn. A nil conn detaches. A conn whose
// id differs from the last attached kernel is a restart; the same kernel
// coming back after a detach is not.
func (d *Dispatcher) attach(conn kernel.Connection) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	if conn != nil && d.conn != nil && conn.ID() == d.conn.ID() {
		d.mu.Unlock()
		return
	}
	if conn == nil && d.conn == nil {
		d.mu.Unlock()
		return
	}

	oldConn, oldUnsub := d.conn, d.unsubscribe
	d.conn, d.unsubscribe = nil, nil
	prevID := d.lastKernelID
	restarted := conn != nil && prevID != "" && conn.ID() != prevID

	teardown := d.releaseLocked()
	if restarted {
		d.outbound = nil
		d.generation++
		d.outputWidgets = make(map[string]struct{})
		d.pendingTargets = append(d.registeredTargets, d.pendingTargets...)
		d.registeredTargets = nil
	}
	if conn != nil {
		d.conn = conn
		d.lastKernelID = conn.ID()
	}
	d.mu.Unlock()

	if oldUnsub != nil {
		oldUnsub()
	}
	teardown()
	if restarted {
		d.registry.Release(prevID)
	}

	if conn == nil {
		d.logger.Info("kernel detached", "kernel_id", oldConn.ID())
		return
	}

	unsub := conn.Subscribe(d.receiverFor(conn), d.onKernelSend)
	d.mu.Lock()
	stale := d.disposed || d.conn != conn
	if !stale {
		d.unsubscribe = unsub
	}
	d.mu.Unlock()
	if stale {
		unsub()
		return
	}

	opts := conn.Options()
	if restarted {
		d.logger.Info("kernel restarted", "kernel_id", conn.ID())
		d.posts.Publish(KindRestartKernel, nil)
	} else {
		d.logger.Info("kernel attached", "kernel_id", conn.ID(), "protocol", opts.Protocol)
	}
	d.posts.Publish(KindKernelOptions, opts)

	d.registerPendingCommTargets()
	d.flush(context.Background())
}

// releaseLocked discards per-kernel waiting state and returns a func that
// resolves every outstanding wait and removes installed hooks. Call the
// returned func after unlocking.
func (d *Dispatcher) releaseLocked() func() {
	waits := make([]*signal[struct{}], 0, len(d.waiting)+1)
	for _, w := range d.waiting {
		waits = append(waits, w.sig)
	}
	if d.gate != nil {
		waits = append(waits, d.gate.sig)
	}
	requests := make([]*signal[bool], 0, len(d.hookRequests))
	for _, sig := range d.hookRequests {
		requests = append(requests, sig)
	}
	removers := make([]func(), 0, len(d.hooks))
	for _, remove := range d.hooks {
		if remove != nil {
			removers = append(removers, remove)
		}
	}

	d.waiting = make(map[string]*waitingMessage)
	d.gate = nil
	d.hookRequests = make(map[string]*signal[bool])
	d.hooks = make(map[string]func())
	d.pendingHookRemovals = make(map[string]string)

	return func() {
		for _, remove := range removers {
			remove()
		}
		for _, sig := range waits {
			sig.resolve(struct{}{})
		}
		for _, sig := range requests {
			sig.resolve(true)
		}
	}
}

// Dispose detaches from the provider and kernel, resolves outstanding waits
// and closes both hubs. Safe to call more than once.
func (d *Dispatcher) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	unsub := d.unsubscribe
	d.conn, d.unsubscribe = nil, nil
	d.outbound = nil
	d.generation++
	teardown := d.releaseLocked()
	d.mu.Unlock()

	if d.stopWatch != nil {
		d.stopWatch()
	}
	if unsub != nil {
		unsub()
	}
	teardown()
	d.posts.Close()
	d.displays.Close()
	d.logger.Info("dispatcher disposed")
}

func (d *Dispatcher) current() (kernel.Connection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn, d.disposed
}

func (d *Dispatcher) wsProtocol() string {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return protocol.ProtocolLegacy
	}
	return conn.Options().Protocol
}
