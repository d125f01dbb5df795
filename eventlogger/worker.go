package eventlogger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// drainTimeout bounds how long shutdown waits on the database while
// flushing queued events.
const drainTimeout = 10 * time.Second

// Worker decouples request handling from event persistence: handlers drop
// events on a buffered channel and move on; the worker writes them behind
// the scenes and flushes whatever is left on shutdown.
type Worker struct {
	eventCh chan Event
	logger  EventLogger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorker(logger EventLogger, bufferSize int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				w.drain()
				return
			case event := <-w.eventCh:
				if err := w.logger.Save(w.ctx, event); err != nil {
					slog.Error("failed to save event", "error", err, "event_type", event.Type)
				}
			}
		}
	}()
}

func (w *Worker) drain() {
	slog.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for len(w.eventCh) > 0 {
		event := <-w.eventCh
		if err := w.logger.Save(ctx, event); err != nil {
			slog.Error("failed to save event during shutdown", "error", err, "event_type", event.Type)
		}
	}
}

// Log queues an event without blocking; when the buffer is full the event
// is dropped and a warning logged, never the request held up.
func (w *Worker) Log(event Event) {
	select {
	case w.eventCh <- event:
	default:
		slog.Warn("event channel full, dropping event", "event_type", event.Type)
	}
}

func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
	close(w.eventCh)
}
