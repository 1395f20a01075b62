package telemetry

import (
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink receives telemetry records. Emit must never block the caller.
type Sink interface {
	Emit(r Record)
}

// Nop discards every record.
type Nop struct{}

func (Nop) Emit(Record) {}

// Fanout forwards each record to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(r Record) {
	for _, s := range f {
		s.Emit(r)
	}
}

// Recorder keeps every record in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *Recorder) Emit(rec Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Lines returns the encoded records.
func (r *Recorder) Lines() []string {
	recs := r.Records()
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Encode()
	}
	return out
}

// Has reports whether a record with the given key was emitted.
func (r *Recorder) Has(key Key) bool {
	for _, rec := range r.Records() {
		if rec.Key == key {
			return true
		}
	}
	return false
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// Writer is a best-effort line writer. Emit queues the record; a background
// goroutine writes it to the underlying writer. When the queue is full the
// record is dropped and counted.
type Writer struct {
	out    io.Writer
	logger *zap.Logger
	queue  chan Record

	dropped atomic.Uint64
	written atomic.Uint64

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

func NewWriter(out io.Writer, buffer int, logger *zap.Logger) *Writer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Writer{
		out:    out,
		logger: logger,
		queue:  make(chan Record, buffer),
	}
}

func (w *Writer) Emit(r Record) {
	select {
	case w.queue <- r:
	default:
		w.dropped.Add(1)
	}
}

func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.wg.Add(1)
	go w.writeLoop(w.stopChan)
}

// Stop writes what is still queued and stops the writer. A stopped writer
// can be started again.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stop := w.stopChan
	w.mu.Unlock()

	close(stop)
	w.wg.Wait()

	w.logger.Info("Telemetry writer stopped",
		zap.Uint64("written", w.written.Load()),
		zap.Uint64("dropped", w.dropped.Load()))
}

func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

func (w *Writer) Written() uint64 { return w.written.Load() }

func (w *Writer) writeLoop(stop <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case r := <-w.queue:
			w.write(r)
		case <-stop:
			for {
				select {
				case r := <-w.queue:
					w.write(r)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(r Record) {
	if _, err := io.WriteString(w.out, r.Encode()+"\r\n"); err != nil {
		w.dropped.Add(1)
		w.logger.Warn("Telemetry write failed", zap.String("key", string(r.Key)), zap.Error(err))
		return
	}
	w.written.Add(1)
}
