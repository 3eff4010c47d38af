// Package mailer provides asynchronous delivery of verification emails over a
// bounded, ordered, single-consumer queue.
//
// # Delivery model
//
// Producers enqueue without blocking; a full queue is a synchronous error. One
// background worker drains the queue in FIFO order, opening exactly one
// transport connection per drain cycle and closing it when the queue runs dry.
// The worker blocks on queue availability between cycles, it never spins. A
// failed send is reported through the result hook and never aborts the worker.
//
// # Architecture boundaries
//
// This package owns the [Dispatcher], the [Transport] abstraction, and the SMTP
// transport implementations. It does NOT compose verification URLs or decide
// who receives mail; those responsibilities belong to the Engine.
package mailer
