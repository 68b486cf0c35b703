package notify

import (
	"sync"
	"time"
)

// DefaultSnooze is how long a snoozed dose waits before alerting again
const DefaultSnooze = 10 * time.Minute

// Snoozer holds one-shot re-alert timers keyed by patient and occurrence.
// Snoozing again replaces the pending timer.
type Snoozer struct {
	delay time.Duration
	fire  func(patientID, occurrenceID string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSnoozer creates a snoozer that calls fire when a timer elapses
func NewSnoozer(delay time.Duration, fire func(patientID, occurrenceID string)) *Snoozer {
	if delay <= 0 {
		delay = DefaultSnooze
	}
	return &Snoozer{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*time.Timer),
	}
}

func snoozeKey(patientID, occurrenceID string) string {
	return patientID + "|" + occurrenceID
}

// Snooze (re)arms the timer and returns the delay used
func (s *Snoozer) Snooze(patientID, occurrenceID string) time.Duration {
	key := snoozeKey(patientID, occurrenceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.timers[key] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		s.fire(patientID, occurrenceID)
	})
	s.timers[key] = timer

	return s.delay
}

// Cancel stops a pending snooze
func (s *Snoozer) Cancel(patientID, occurrenceID string) {
	key := snoozeKey(patientID, occurrenceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// Pending returns the number of armed timers
func (s *Snoozer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer
func (s *Snoozer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}
