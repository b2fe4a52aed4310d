package forge

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// historyIndex is a derived, rebuildable badger index over atom history,
// keyed by zero-padded atom index. It exists purely to make
// Store.GetHistory(limit) fast without a linear scan of chain.json once a
// chain grows large; chain.json remains the source of truth. The option
// tuning mirrors the teacher's getBadgerOptions for the same reasons: small
// value log, small in-memory tables, checksum verification on every read.
type historyIndex struct {
	db *badger.DB
}

type historyIndexRecord struct {
	Index      int    `json:"index"`
	When       int64  `json:"when"`
	Proof      string `json:"proof"`
	ActionHash string `json:"action_hash"`
}

func badgerOptionsFor(path string) badger.Options {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20
	opts.MemTableSize = 8 << 20
	opts.BlockCacheSize = 1 << 20
	opts.NumVersionsToKeep = 1
	opts.VerifyValueChecksum = true
	opts.DetectConflicts = true
	return opts
}

func openHistoryIndex(path string) (*historyIndex, error) {
	db, err := badger.Open(badgerOptionsFor(path))
	if err != nil {
		return nil, fmt.Errorf("forge: open history index: %w", err)
	}
	return &historyIndex{db: db}, nil
}

func indexKey(i int) []byte {
	return []byte(fmt.Sprintf("atom:%010d", i))
}

func (h *historyIndex) put(index int, a *Atom) error {
	rec := historyIndexRecord{Index: index, When: a.When, Proof: a.Proof, ActionHash: a.Action}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(index), data)
	})
}

// rangeRead returns the indexed records for atom indices [start, end),
// ordered by index, by seeking directly to the first key in range instead
// of scanning the whole keyspace — this is the query GetHistory actually
// serves its reads from when the index is available.
func (h *historyIndex) rangeRead(start, end int) ([]historyIndexRecord, error) {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil, nil
	}
	out := make([]historyIndexRecord, 0, end-start)
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		endKey := indexKey(end)
		for it.Seek(indexKey(start)); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(endKey) {
				break
			}
			var rec historyIndexRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// rebuildIfEmpty rebuilds the index from atoms only when the index has no
// entries yet, so a store that already has an index doesn't pay the cost
// of a full rebuild on every open.
func (h *historyIndex) rebuildIfEmpty(atoms []*Atom) error {
	empty := true
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		it.Rewind()
		empty = !it.Valid()
		return nil
	})
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	return h.rebuild(atoms)
}

func (h *historyIndex) rebuild(atoms []*Atom) error {
	return h.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var toDelete [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			toDelete = append(toDelete, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for i, a := range atoms {
			rec := historyIndexRecord{Index: i, When: a.When, Proof: a.Proof, ActionHash: a.Action}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(indexKey(i), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *historyIndex) close() error {
	return h.db.Close()
}
