// Package timectrl drives the simulation loop at a wall-clock rate.
package timectrl

import (
	"fmt"
	"sync"
	"time"
)

// Stepper advances the simulation by one tick. The sim state satisfies
// this interface.
type Stepper interface {
	Step()
}

const (
	// MinSpeed and MaxSpeed bound the speed multiplier accepted by
	// SetSpeed.
	MinSpeed = 0.1
	MaxSpeed = 100.0
)

// TimeController runs a stepper on a wall-clock cadence derived from a
// base tick interval and a speed multiplier. A multiplier of 2 drives
// ticks twice as fast as the base interval.
type TimeController struct {
	mu       sync.RWMutex
	stepper  Stepper
	interval time.Duration
	speed    float64
	running  bool
	stop     chan struct{}
	done     chan struct{}

	listeners []func(uint64)
	ticks     uint64
}

// NewTimeController constructs a controller around the given stepper.
// interval is the wall-clock duration of one tick at speed 1.
func NewTimeController(stepper Stepper, interval time.Duration) *TimeController {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimeController{
		stepper:  stepper,
		interval: interval,
		speed:    1.0,
	}
}

// AddListener registers a callback invoked after every driven tick with
// the number of ticks driven so far. Listeners must be registered
// before Start.
func (tc *TimeController) AddListener(fn func(uint64)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// SetSpeed adjusts the speed multiplier. The new cadence takes effect
// on the next tick.
func (tc *TimeController) SetSpeed(mult float64) error {
	if mult < MinSpeed || mult > MaxSpeed {
		return fmt.Errorf("speed %v out of range [%v, %v]", mult, MinSpeed, MaxSpeed)
	}
	tc.mu.Lock()
	tc.speed = mult
	tc.mu.Unlock()
	return nil
}

// Speed returns the current multiplier.
func (tc *TimeController) Speed() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.speed
}

// Running reports whether the drive loop is active.
func (tc *TimeController) Running() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.running
}

// Ticks returns the number of ticks driven since construction.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// Start launches the drive loop in its own goroutine. Starting an
// already running controller is a no-op.
func (tc *TimeController) Start() {
	tc.mu.Lock()
	if tc.running {
		tc.mu.Unlock()
		return
	}
	tc.running = true
	tc.stop = make(chan struct{})
	tc.done = make(chan struct{})
	stop, done := tc.stop, tc.done
	tc.mu.Unlock()

	go tc.loop(stop, done)
}

// Stop halts the drive loop and waits for it to exit. Stopping a
// controller that is not running is a no-op.
func (tc *TimeController) Stop() {
	tc.mu.Lock()
	if !tc.running {
		tc.mu.Unlock()
		return
	}
	tc.running = false
	stop, done := tc.stop, tc.done
	tc.mu.Unlock()

	close(stop)
	<-done
}

func (tc *TimeController) loop(stop, done chan struct{}) {
	defer close(done)

	// A fresh timer per tick so speed changes apply without waiting
	// out the previous cadence.
	timer := time.NewTimer(tc.tickInterval())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			tc.stepper.Step()

			tc.mu.Lock()
			tc.ticks++
			n := tc.ticks
			listeners := tc.listeners
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(n)
			}
			timer.Reset(tc.tickInterval())
		}
	}
}

func (tc *TimeController) tickInterval() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return time.Duration(float64(tc.interval) / tc.speed)
}
