package telemetry

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type blockingWriter struct {
	release chan struct{}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("port gone") }

func TestWriterWritesLinesInOrder(t *testing.T) {
	out := &lockedBuffer{}
	w := NewWriter(out, 8, zap.NewNop())
	w.Start()

	w.Emit(Log(KeyStartTension))
	w.Emit(Log(KeyCycleTotal, 7))
	w.Stop()

	assert.Equal(t, "LOG;START_TENSION;\r\nLOG;CYCLE_TOTAL;7;\r\n", out.String())
	assert.Equal(t, uint64(2), w.Written())
	assert.Zero(t, w.Dropped())
}

func TestWriterRestartsAfterStop(t *testing.T) {
	out := &lockedBuffer{}
	w := NewWriter(out, 8, zap.NewNop())

	w.Start()
	w.Emit(Log(KeyCycleTotal, 1))
	w.Stop()

	w.Start()
	w.Emit(Log(KeyCycleTotal, 2))
	w.Stop()
	w.Stop()

	assert.Equal(t, "LOG;CYCLE_TOTAL;1;\r\nLOG;CYCLE_TOTAL;2;\r\n", out.String())
	assert.Equal(t, uint64(2), w.Written())
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := NewWriter(&blockingWriter{release: make(chan struct{})}, 2, zap.NewNop())

	// Not started: nothing drains the queue.
	for i := 0; i < 5; i++ {
		w.Emit(Log(KeyCycleTotal, i))
	}
	assert.Equal(t, uint64(3), w.Dropped())
}

func TestWriterCountsFailedWrites(t *testing.T) {
	w := NewWriter(failingWriter{}, 4, zap.NewNop())
	w.Start()
	w.Emit(Log(KeyCycleTotal, 1))
	w.Stop()
	assert.Equal(t, uint64(1), w.Dropped())
	assert.Zero(t, w.Written())
}

func TestFanoutAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	sink := Fanout{a, b, Nop{}}
	sink.Emit(Email(KeyButtonPushed))

	assert.Equal(t, []string{"EMAIL;BUTTON_PUSHED;"}, a.Lines())
	assert.True(t, b.Has(KeyButtonPushed))
	assert.False(t, b.Has(KeyCycleTotal))

	a.Reset()
	assert.Empty(t, a.Records())
}
