package notify

import (
	"strings"
	"sync"
)

// Flags records which alerts already fired for one occurrence
type Flags struct {
	Notified     bool
	ReminderSent bool
}

// Ledger holds the alert flags of one scheduler, keyed by occurrence and
// schedule day. Occurrence ids repeat every day, so a session left open past
// midnight alerts again for the new day. It is owned by whoever constructs
// the scheduler; two schedulers never share one unless the caller passes the
// same ledger to both.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Flags
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]Flags)}
}

func ledgerKey(occurrenceID, day string) string {
	return day + "|" + occurrenceID
}

// MarkNotified sets the due flag and reports whether it was previously unset
func (l *Ledger) MarkNotified(occurrenceID, day string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(occurrenceID, day)
	f := l.entries[key]
	if f.Notified {
		return false
	}
	f.Notified = true
	l.entries[key] = f
	return true
}

// MarkReminder sets the reminder flag and reports whether it was previously
// unset
func (l *Ledger) MarkReminder(occurrenceID, day string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(occurrenceID, day)
	f := l.entries[key]
	if f.ReminderSent {
		return false
	}
	f.ReminderSent = true
	l.entries[key] = f
	return true
}

// Get returns the flags for an occurrence on a day
func (l *Ledger) Get(occurrenceID, day string) Flags {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[ledgerKey(occurrenceID, day)]
}

// Len returns the number of tracked occurrence-days
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// PruneBefore drops the flags of days earlier than day (YYYY-MM-DD)
func (l *Ledger) PruneBefore(day string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.entries {
		d, _, _ := strings.Cut(key, "|")
		if d < day {
			delete(l.entries, key)
		}
	}
}

// Reset forgets every flag, as an app reload would
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = make(map[string]Flags)
	l.mu.Unlock()
}
