package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Key prefixes for the record store.
var (
	prefixRecord = []byte("r/") // r/<hash> -> record JSON
	prefixHeight = []byte("n/") // n/<height BE><hash> -> empty
	keyTip       = []byte("s/tip")
)

// Store persists block records, including the stake modifier fields, so
// that an index can be rebuilt on restart without recomputing them.
type Store struct {
	db storage.DB
}

// NewStore creates a record store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// PutRecord stores a committed record and advances the stored tip when the
// record is the index's new tip.
func (s *Store) PutRecord(rec *BlockRecord, isTip bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	b := storage.NewBatch(s.db)
	if err := b.Put(recordKey(rec.Hash), data); err != nil {
		return err
	}
	if err := b.Put(heightKey(rec.Height, rec.Hash), []byte{}); err != nil {
		return err
	}
	if isTip {
		if err := b.Put(keyTip, rec.Hash[:]); err != nil {
			return err
		}
	}
	return b.Commit()
}

// GetRecord loads a stored record by hash. The returned record is not
// linked into any index.
func (s *Store) GetRecord(hash types.Hash) (*BlockRecord, error) {
	data, err := s.db.Get(recordKey(hash))
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", hash, err)
	}
	var rec BlockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", hash, err)
	}
	return &rec, nil
}

// GetTip returns the stored tip hash. ok is false for an empty store.
func (s *Store) GetTip() (types.Hash, bool, error) {
	data, err := s.db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, err
	}
	var h types.Hash
	copy(h[:], data)
	return h, true, nil
}

// Load replays every stored record into idx in height order, restores the
// stored tip and returns the number of records loaded.
func (s *Store) Load(idx *Index) (int, error) {
	var n int
	err := s.db.ForEach(prefixHeight, func(key, _ []byte) error {
		if len(key) != len(prefixHeight)+8+types.HashSize {
			return fmt.Errorf("malformed height key %x", key)
		}
		var h types.Hash
		copy(h[:], key[len(prefixHeight)+8:])
		rec, err := s.GetRecord(h)
		if err != nil {
			return err
		}
		if _, err := idx.Commit(rec); err != nil {
			return fmt.Errorf("replay %s: %w", rec, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}

	tip, ok, err := s.GetTip()
	if err != nil {
		return n, fmt.Errorf("get tip: %w", err)
	}
	if ok {
		if err := idx.SetTip(tip); err != nil {
			return n, fmt.Errorf("restore tip: %w", err)
		}
	}
	return n, nil
}

func recordKey(hash types.Hash) []byte {
	key := make([]byte, len(prefixRecord)+types.HashSize)
	copy(key, prefixRecord)
	copy(key[len(prefixRecord):], hash[:])
	return key
}

func heightKey(height uint64, hash types.Hash) []byte {
	key := make([]byte, len(prefixHeight)+8+types.HashSize)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	copy(key[len(prefixHeight)+8:], hash[:])
	return key
}
