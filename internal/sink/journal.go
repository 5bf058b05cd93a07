package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/efreitasn/tradesim/internal/domain"
)

const (
	journalPrefix = "tx/"
	journalUpper  = "tx/~"
)

// Journal is an append-only pebble log of executed transactions, keyed by
// a global position so iteration returns execution order.
type Journal struct {
	mu   sync.Mutex
	db   *pebble.DB
	next uint64
}

// OpenJournal opens or creates a journal at dir and resumes numbering
// after the last stored entry.
func OpenJournal(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", dir, err)
	}

	j := &Journal{db: db}
	last, err := j.lastPosition()
	if err != nil {
		db.Close()
		return nil, err
	}
	j.next = last + 1
	return j, nil
}

// Name identifies the sink in logs.
func (j *Journal) Name() string { return "journal" }

// Publish appends txs in one synced batch.
func (j *Journal) Publish(_ context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	batch := j.db.NewBatch()
	defer batch.Close()

	pos := j.next
	for _, tx := range txs {
		val, err := json.Marshal(toRecord(tx))
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", tx.TransactionID, err)
		}
		if err := batch.Set(journalKey(pos), val, nil); err != nil {
			return err
		}
		pos++
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit journal batch: %w", err)
	}
	j.next = pos
	return nil
}

// History returns the journaled transactions of owner in execution order.
// An empty owner returns every entry.
func (j *Journal) History(owner string) ([]domain.Transaction, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(journalPrefix),
		UpperBound: []byte(journalUpper),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]domain.Transaction, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var r record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		if owner != "" && r.Owner != owner {
			continue
		}
		tx, err := r.transaction()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, iter.Error()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) lastPosition() (uint64, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(journalPrefix),
		UpperBound: []byte(journalUpper),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseJournalKey(iter.Key())
}

func journalKey(pos uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", journalPrefix, pos))
}

func parseJournalKey(k []byte) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(string(k), journalPrefix), 10, 64)
}
