package mailer

import (
	"errors"
	"log"
	"sync"
)

// ErrQueueFull is an exported constant or variable used by the email authentication engine.
var ErrQueueFull = errors.New("mail queue full")

// ErrDispatcherClosed is an exported constant or variable used by the email authentication engine.
var ErrDispatcherClosed = errors.New("mail dispatcher closed")

// ErrEmptyRecipient is an exported constant or variable used by the email authentication engine.
var ErrEmptyRecipient = errors.New("mail recipient empty")

// Message defines a public type used by emailauth APIs.
//
// Message instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport is a single open mail connection. Send delivers one message over
// it; Close releases the connection.
type Transport interface {
	Send(msg Message) error
	Close() error
}

// TransportFactory opens one Transport per drain cycle.
type TransportFactory interface {
	Connect() (Transport, error)
}

// DispatcherConfig defines a public type used by emailauth APIs.
//
// DispatcherConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DispatcherConfig struct {
	QueueSize int

	// OnResult, when set, observes every delivery attempt. err is nil on
	// success. Called from the worker goroutine.
	OnResult func(msg Message, err error)
}

// Dispatcher defines a public type used by emailauth APIs.
//
// Dispatcher instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Dispatcher struct {
	factory  TransportFactory
	onResult func(Message, error)

	ch   chan Message
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
}

// NewDispatcher starts the single worker goroutine and returns the running
// dispatcher. Close must be called to drain and stop it.
func NewDispatcher(factory TransportFactory, cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}

	d := &Dispatcher{
		factory:  factory,
		onResult: cfg.OnResult,
		ch:       make(chan Message, size),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue queues one message for delivery. It never blocks: a full queue
// returns ErrQueueFull and a closed dispatcher returns ErrDispatcherClosed.
// Messages accepted before Close are delivered before the worker exits.
func (d *Dispatcher) Enqueue(msg Message) error {
	if msg.To == "" {
		return ErrEmptyRecipient
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages, waits for the worker to deliver everything
// already queued, and shuts the worker down.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.done)
		d.wg.Wait()
	})
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.drainCycle(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.drainCycle(msg)
				default:
					return
				}
			}
		}
	}
}

// drainCycle opens one connection, sends first and everything else already
// queued over it in FIFO order, then closes the connection.
func (d *Dispatcher) drainCycle(first Message) {
	transport, err := d.factory.Connect()
	if err != nil {
		d.report(first, err)
		d.failQueued(err)
		return
	}
	defer func() {
		if err := transport.Close(); err != nil {
			log.Print("emailauth: mail transport close failed: ", err)
		}
	}()

	d.report(first, transport.Send(first))

	for {
		select {
		case msg := <-d.ch:
			d.report(msg, transport.Send(msg))
		default:
			return
		}
	}
}

// failQueued reports a connect error against every message already queued so
// a dead transport does not leave producers waiting on silence.
func (d *Dispatcher) failQueued(connectErr error) {
	for {
		select {
		case msg := <-d.ch:
			d.report(msg, connectErr)
		default:
			return
		}
	}
}

func (d *Dispatcher) report(msg Message, err error) {
	if err != nil {
		log.Print("emailauth: mail send failed: ", err)
	}
	if d.onResult != nil {
		d.onResult(msg, err)
	}
}
