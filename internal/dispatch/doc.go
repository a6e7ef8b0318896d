// Package dispatch keeps a sandboxed widget render surface in step with a
// Jupyter kernel connection.
//
// One Dispatcher serves one document. Frames arriving from the kernel are
// pre-checked, decoded only when they may concern widgets, filtered by the
// mirroring predicate and forwarded to the surface. Commands from the surface
// (raw sends, comm target and message hook registration, acknowledgements)
// enter through Dispatch.
//
// Synchronisation:
//   - Forwarded frames register a waiting message keyed by a fresh uuid; the
//     kernel read loop continues unless a full handle is required
//   - An update to an Output widget holds the read loop until the surface
//     reports the message handled (one gate at a time)
//   - Shell execute_requests are mirrored before they leave; once widgets are
//     in use the send waits for the surface to acknowledge
//   - Message hooks ask the surface whether an iopub message is delivered
//
// Outbound queue:
//   - Strict FIFO, flushed only with a live kernel, a payload is removed only
//     after the connection accepted it
//   - A send failure halts the flush and keeps the queue
//
// Restart (a kernel with a new id after any previous kernel):
//   - Queue, hooks, Output widget tracking and the gate are discarded
//   - Every outstanding wait is resolved, never rejected
//   - Registered comm targets are re-registered on the new kernel
//   - The surface gets one restart notice
//
// Known limitation: the full-handle gate is a single slot. A second Output
// widget update waits for the first gate to clear instead of being tracked
// independently.
package dispatch
