// Package batch provides a rate-limiting request scheduler that coalesces
// concurrently submitted operations into fixed-size batches separated by
// cooldown pauses.
//
// Motivation
//
// Upstream APIs frequently enforce request-rate limits while callers hold
// many logically independent requests (for example one RPC call per epoch
// in a range). Firing those requests concurrently trips the limit;
// serializing them naively wastes the allowed burst. The scheduler sits
// between the two: callers submit freely and block on their own result,
// while a single drain loop executes the backlog in controlled bursts.
//
// Model
//
// A Scheduler owns a FIFO queue of pending requests and at most one active
// drain loop. Submit enqueues an operation, starts the drain loop if it is
// idle, and blocks until the request's one-shot completion channel is
// resolved. The drain loop repeatedly removes up to BatchSize requests
// from the front of the queue, executes them sequentially, resolves each
// completion with the operation's value or error, and sleeps for Cooldown
// before the next batch whenever requests remain queued. When the queue
// empties the loop exits; a later submission restarts it.
//
// Ordering and isolation
//
//   - Requests execute in submission order, batched as B, B, ..., N mod B.
//   - A failing operation resolves only its own submitter's result; the
//     rest of the batch and all later batches proceed unaffected.
//   - A failure in the loop's own bookkeeping resolves the unresolved
//     remainder of the in-flight batch with that error and parks the
//     scheduler; the next submission starts a fresh drain cycle.
//
// Teardown
//
// Shutdown marks the scheduler closed, wakes any cooldown sleep, waits for
// the drain loop under the caller's context, and resolves every request
// still queued with ErrSchedulerClosed. No accepted request is ever
// silently dropped.
package batch
