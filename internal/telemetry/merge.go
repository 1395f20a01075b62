package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Summary aggregates the records of one machine cycle from the controller
// line and the current logger line.
type Summary struct {
	Started        time.Time `json:"started"`
	CycleTotal     int64     `json:"cycle_total"`
	CycleReset     int64     `json:"cycle_reset"`
	ForceN         int64     `json:"force_n"`
	TensionCurrent float64   `json:"tension_current_a"`
	CrimpCurrent   float64   `json:"crimp_current_a"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%s total=%d reset=%d force=%dN tension=%.2fA crimp=%.2fA",
		s.Started.Format("02/01/2006 15:04:05"), s.CycleTotal, s.CycleReset,
		s.ForceN, s.TensionCurrent, s.CrimpCurrent)
}

type toolPhase int

const (
	phaseIdle toolPhase = iota
	phaseTension
	phaseCrimp
)

// Merger folds a record stream into per-cycle summaries. A CYCLE_TOTAL record
// closes the summary collected so far and opens the next one. Current peaks
// are attributed to tensioning or crimping by the last START_* record seen.
type Merger struct {
	now     func() time.Time
	current Summary
	phase   toolPhase
	dirty   bool
}

func NewMerger(now func() time.Time) *Merger {
	m := &Merger{now: now}
	m.current.Started = now()
	return m
}

// Feed consumes one record and returns a completed summary when the record
// closes a cycle.
func (m *Merger) Feed(r Record) (Summary, bool) {
	if r.Kind != KindLog {
		return Summary{}, false
	}

	var (
		done    Summary
		emitted bool
	)
	switch r.Key {
	case KeyCycleTotal:
		done, emitted = m.Flush()
		if n, err := r.Int(0); err == nil {
			m.current.CycleTotal = n
			m.dirty = true
		}
	case KeyCycleReset:
		if n, err := r.Int(0); err == nil {
			m.current.CycleReset = n
			m.dirty = true
		}
	case KeyForceTension, "FORCE":
		if n, err := r.Int(0); err == nil {
			m.current.ForceN = n
			m.dirty = true
		}
	case KeyStartTension:
		m.phase = phaseTension
	case KeyStartCrimp:
		m.phase = phaseCrimp
	case KeyCurrentMax:
		f, err := r.Float(0)
		if err != nil {
			break
		}
		switch m.phase {
		case phaseTension:
			m.current.TensionCurrent = f
			m.dirty = true
		case phaseCrimp:
			m.current.CrimpCurrent = f
			m.dirty = true
		}
	}
	return done, emitted
}

// Flush returns the summary collected so far, if any, and starts a new one.
func (m *Merger) Flush() (Summary, bool) {
	done, ok := m.current, m.dirty
	m.current = Summary{Started: m.now()}
	m.phase = phaseIdle
	m.dirty = false
	return done, ok
}

// Merge reads lines from every source concurrently and feeds them to a single
// Merger. It returns when all sources are exhausted or ctx is done; the last
// partial cycle is flushed.
func Merge(ctx context.Context, sources []io.Reader, m *Merger, onSummary func(Summary), logger *zap.Logger) error {
	lines := make(chan string, 64)

	var wg sync.WaitGroup
	errs := make(chan error, len(sources))
	for i, src := range sources {
		wg.Add(1)
		go func(idx int, r io.Reader) {
			defer wg.Done()
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
			if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
				errs <- fmt.Errorf("source %d: %w", idx, err)
			}
		}(i, src)
	}
	go func() {
		wg.Wait()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			if s, ok := m.Flush(); ok {
				onSummary(s)
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if s, ok := m.Flush(); ok {
					onSummary(s)
				}
				select {
				case err := <-errs:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			r, err := Parse(line)
			if err != nil {
				logger.Debug("Skipping line", zap.String("line", line), zap.Error(err))
				continue
			}
			if s, ok := m.Feed(r); ok {
				onSummary(s)
			}
		}
	}
}
