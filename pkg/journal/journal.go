// Package journal persists settlement transactions by idempotency
// reference. It is the guard against double-execution: if the keeper
// restarts, or a receipt wait times out after the transaction was sent,
// the next attempt for the same pairing finds the recorded transaction
// and resolves it instead of swapping again.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/arbelos/dexkeeper/pkg/engine"
)

type Journal struct {
	db *pebble.DB
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// keys: s:<32-byte idempotency ref>
func kSettlement(ref common.Hash) []byte { return append([]byte("s:"), ref[:]...) }

type entry struct {
	Tx         common.Hash `json:"tx"`
	Settled    bool        `json:"settled"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Lookup returns the settlement record for ref, if any.
func (j *Journal) Lookup(ref common.Hash) (engine.SettlementRecord, bool, error) {
	val, closer, err := j.db.Get(kSettlement(ref))
	if err != nil {
		if err == pebble.ErrNotFound {
			return engine.SettlementRecord{}, false, nil
		}
		return engine.SettlementRecord{}, false, fmt.Errorf("journal get: %w", err)
	}
	defer closer.Close()

	var e entry
	if err := json.Unmarshal(val, &e); err != nil {
		return engine.SettlementRecord{}, false, fmt.Errorf("journal decode: %w", err)
	}
	return engine.SettlementRecord{Tx: e.Tx, Settled: e.Settled}, true, nil
}

// Record stores the settlement record for ref, overwriting any earlier
// entry (an in-flight record upgrades to settled in place). Synced write:
// a crash between send and journal must not lose the dedupe record.
func (j *Journal) Record(ref common.Hash, rec engine.SettlementRecord) error {
	val, err := json.Marshal(entry{Tx: rec.Tx, Settled: rec.Settled, RecordedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("journal encode: %w", err)
	}
	if err := j.db.Set(kSettlement(ref), val, pebble.Sync); err != nil {
		return fmt.Errorf("journal set: %w", err)
	}
	return nil
}
