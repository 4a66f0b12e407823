package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrDispatcherClosed is returned when a message is submitted after Close.
var ErrDispatcherClosed = errors.New("mail dispatcher is closed")

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 30 * time.Second
)

type job struct {
	ctx  context.Context
	to   string
	link string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithResultHook registers fn to be called after every delivery attempt.
// err is nil on success.
func WithResultHook(fn func(err error)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// WithSendTimeout bounds every background delivery attempt.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.sendTimeout = timeout
	}
}

// Dispatcher sends reset emails in the background through a bounded queue.
// Delivery failures are logged and reported to the result hook, never to the caller.
type Dispatcher struct {
	sender      Sender
	logger      *slog.Logger
	onResult    func(err error)
	queue       chan job
	done        chan struct{}
	sendTimeout time.Duration
	mu          sync.RWMutex
	closed      bool
}

// NewDispatcher starts a dispatcher with one worker goroutine.
func NewDispatcher(sender Sender, queueSize int, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	d := &Dispatcher{
		sender:      sender,
		logger:      logger,
		onResult:    func(error) {},
		queue:       make(chan job, queueSize),
		done:        make(chan struct{}),
		sendTimeout: DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.run()

	return d
}

// SendResetEmail enqueues the message and returns immediately.
func (d *Dispatcher) SendResetEmail(ctx context.Context, to, link string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	// Контекст запроса отменится после ответа, значения (request id) сохраняем
	j := job{ctx: context.WithoutCancel(ctx), to: to, link: link}

	select {
	case d.queue <- j:
	default:
		d.logger.WarnContext(ctx, "mail queue is full, dropping reset email", slog.String("to", to))
		d.onResult(errors.New("mail queue is full"))
	}

	return nil
}

// Close stops accepting messages and waits until queued ones are sent or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.sendTimeout)
	defer cancel()

	err := d.sender.SendResetEmail(ctx, j.to, j.link)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to send reset email",
			slog.String("to", j.to),
			slog.String("error", err.Error()),
		)
	}
	d.onResult(err)
}
