package replay

import (
	"sync"
	"time"

	"github.com/rashdiman/ridepulse/internal/metrics"
)

const (
	// defaultTickDelay is used only for the synthetic final tick, when no
	// next point exists to derive a delay from.
	defaultTickDelay = time.Second
	// minTickDelay keeps duplicate timestamps from busy-looping.
	minTickDelay = 10 * time.Millisecond
)

// Data is one scheduled emission.
type Data struct {
	ReplayID string                `json:"replayId"`
	Data     metrics.SensorReading `json:"data"`
	Progress float64               `json:"progress"`
}

// Info is a control-state snapshot of a replay.
type Info struct {
	ReplayID    string  `json:"replayId"`
	SessionID   string  `json:"sessionId"`
	Speed       float64 `json:"speed"`
	IsPlaying   bool    `json:"isPlaying"`
	Progress    float64 `json:"progress"`
	TotalPoints int     `json:"totalPoints"`
}

// Replay re-emits a frozen, timestamp-ordered reading sequence on its own
// time axis. Exactly one timer chain owns currentIndex while playing;
// control calls only flip state under the mutex.
type Replay struct {
	id        string
	sessionID string
	owner     string

	mu           sync.Mutex
	speed        float64
	isPlaying    bool
	currentIndex int
	dataPoints   []metrics.SensorReading
	timer        *time.Timer
	emit         func(typ string, payload any)
	onFinished   func()
}

// Start begins the scheduling loop. A no-op if already playing. Emissions
// and the finished transition go through emit; onFinished fires once after
// natural exhaustion.
func (r *Replay) Start(emit func(typ string, payload any), onFinished func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isPlaying || len(r.dataPoints) == 0 {
		return
	}
	r.emit = emit
	r.onFinished = onFinished
	r.isPlaying = true
	r.timer = time.AfterFunc(0, r.tick)
}

func (r *Replay) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isPlaying {
		return
	}
	if r.currentIndex >= len(r.dataPoints) {
		r.finishLocked()
		return
	}

	point := r.dataPoints[r.currentIndex]
	progress := float64(r.currentIndex) / float64(len(r.dataPoints)) * 100
	r.currentIndex++

	delay := defaultTickDelay
	if r.currentIndex < len(r.dataPoints) {
		gap := r.dataPoints[r.currentIndex].Timestamp - point.Timestamp
		delay = time.Duration(float64(gap)/r.speed) * time.Millisecond
	}
	if delay < minTickDelay {
		delay = minTickDelay
	}
	r.timer = time.AfterFunc(delay, r.tick)

	if r.emit != nil {
		r.emit(EvtReplayData, Data{ReplayID: r.id, Data: point, Progress: progress})
	}
}

func (r *Replay) finishLocked() {
	r.isPlaying = false
	r.currentIndex = 0
	r.stopTimerLocked()
	if r.emit != nil {
		r.emit(EvtReplayFinished, map[string]string{"replayId": r.id})
	}
	if r.onFinished != nil {
		r.onFinished()
	}
}

// Pause cancels the pending tick without resetting the position.
func (r *Replay) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isPlaying = false
	r.stopTimerLocked()
}

// Stop cancels the pending tick and rewinds to the beginning.
func (r *Replay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isPlaying = false
	r.currentIndex = 0
	r.stopTimerLocked()
}

func (r *Replay) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// ChangeSpeed applies to delays computed after the call; an in-flight wait
// keeps its original duration.
func (r *Replay) ChangeSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	r.mu.Lock()
	r.speed = speed
	r.mu.Unlock()
}

// Seek repositions by percentage. While playing, the in-flight wait
// continues; the next tick emits from the new index.
func (r *Replay) Seek(positionPercent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dataPoints) == 0 {
		return
	}
	idx := int(positionPercent / 100 * float64(len(r.dataPoints)))
	if idx < 0 {
		idx = 0
	}
	if idx > len(r.dataPoints)-1 {
		idx = len(r.dataPoints) - 1
	}
	r.currentIndex = idx
}

func (r *Replay) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	progress := 0.0
	if len(r.dataPoints) > 0 {
		progress = float64(r.currentIndex) / float64(len(r.dataPoints)) * 100
	}
	return Info{
		ReplayID:    r.id,
		SessionID:   r.sessionID,
		Speed:       r.speed,
		IsPlaying:   r.isPlaying,
		Progress:    progress,
		TotalPoints: len(r.dataPoints),
	}
}

// CurrentIndex is exposed for control-flow checks and tests.
func (r *Replay) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentIndex
}
