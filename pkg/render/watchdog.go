// ABOUTME: Render timing watchdog
// ABOUTME: Accumulates callback timings on the audio thread and reports overruns
package render

import (
	"sync/atomic"
	"time"
)

const minTimingResults = 10

// Watchdog compares time spent rendering with the audio time produced. Record
// runs on the audio goroutine, Check on the update goroutine.
type Watchdog struct {
	calls  atomic.Int64
	budget atomic.Int64 // nanoseconds of audio rendered
	spent  atomic.Int64 // nanoseconds spent rendering

	overruns atomic.Int64
}

// TimingReport summarizes the render calls since the previous check
type TimingReport struct {
	Calls  int64
	Budget time.Duration
	Spent  time.Duration
}

// Overrun reports whether rendering took longer than the audio it produced
func (r TimingReport) Overrun() bool {
	return r.Spent > r.Budget
}

// Record adds one render call of frames at sampleRate that took elapsed
func (w *Watchdog) Record(frames, sampleRate int, elapsed time.Duration) {
	if sampleRate <= 0 {
		return
	}
	w.budget.Add(int64(frames) * int64(time.Second) / int64(sampleRate))
	w.spent.Add(int64(elapsed))
	w.calls.Add(1)
}

// Check returns and resets the accumulated timings once enough calls were recorded
func (w *Watchdog) Check() (TimingReport, bool) {
	if w.calls.Load() < minTimingResults {
		return TimingReport{}, false
	}
	r := TimingReport{
		Calls:  w.calls.Swap(0),
		Budget: time.Duration(w.budget.Swap(0)),
		Spent:  time.Duration(w.spent.Swap(0)),
	}
	if r.Overrun() {
		w.overruns.Add(1)
	}
	return r, true
}

// Overruns counts checks that found rendering too slow
func (w *Watchdog) Overruns() int64 {
	return w.overruns.Load()
}
