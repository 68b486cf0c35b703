package push

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gmsas95/dosekeeper/internal/schedule"
)

const ledgerPrefix = "push:"

// Ledger remembers which (occurrence, subscription) pairs were already pushed
type Ledger interface {
	// Claim records key and returns false when it was already present
	Claim(key string) (bool, error)
	// Release forgets key so a failed send can be retried
	Release(key string) error
	Close() error
}

// LedgerKey identifies one push of one occurrence to one endpoint inside the
// current push window.
func LedgerKey(occ schedule.Occurrence, endpoint string) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		occ.ID,
		schedule.DateKey(occ.ScheduledAt),
		occ.ScheduledAt.Format("1504"),
		endpoint,
	)
}

// BadgerLedger keeps claimed keys in BadgerDB with a TTL that outlives the
// push window.
type BadgerLedger struct {
	db  *badger.DB
	ttl time.Duration
	mu  sync.Mutex
}

// OpenLedger opens (or creates) the ledger at path. An empty path keeps the
// ledger in memory.
func OpenLedger(path string, ttl time.Duration) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	if ttl <= 0 {
		ttl = 2*schedule.PushWindow + time.Minute
	}
	return &BadgerLedger{db: db, ttl: ttl}, nil
}

// Claim implements Ledger
func (l *BadgerLedger) Claim(key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	claimed := false
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(ledgerPrefix + key))
		switch {
		case err == nil:
			return nil
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		claimed = true
		e := badger.NewEntry([]byte(ledgerPrefix+key), []byte(time.Now().UTC().Format(time.RFC3339))).WithTTL(l.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Release implements Ledger
func (l *BadgerLedger) Release(key string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(ledgerPrefix + key))
	})
}

// Close closes the underlying database
func (l *BadgerLedger) Close() error {
	return l.db.Close()
}
