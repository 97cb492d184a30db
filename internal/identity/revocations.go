package identity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
)

const revokedPrefix = "revoked/"

// Revocations is the ledger of ended sessions, keyed by session id. Entries
// keep the token expiry so they can be pruned once the token is dead anyway.
type Revocations struct {
	db *pebble.DB
}

func OpenRevocations(dir string) (*Revocations, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Revocations{db: d}, nil
}

func (r *Revocations) Close() error { return r.db.Close() }

func revokedKey(sessionID string) []byte { return []byte(revokedPrefix + sessionID) }

func (r *Revocations) Revoke(sessionID string, until time.Time) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(until.Unix()))
	if err := r.db.Set(revokedKey(sessionID), val, pebble.Sync); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *Revocations) IsRevoked(sessionID string) (bool, error) {
	_, closer, err := r.db.Get(revokedKey(sessionID))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read revocation: %w", err)
	}
	_ = closer.Close()
	return true, nil
}

// Prune drops entries whose token expired before now and returns how many
// were removed.
func (r *Revocations) Prune(now time.Time) (int, error) {
	it, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(revokedPrefix),
		UpperBound: []byte("revoked0"), // '0' sorts right after '/'
	})
	if err != nil {
		return 0, fmt.Errorf("open iterator: %w", err)
	}

	var expired [][]byte
	for it.First(); it.Valid(); it.Next() {
		v := it.Value()
		if len(v) == 8 && int64(binary.BigEndian.Uint64(v)) < now.Unix() {
			expired = append(expired, append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Close(); err != nil {
		return 0, fmt.Errorf("close iterator: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := r.db.NewBatch()
	defer wb.Close()
	for _, k := range expired {
		if err := wb.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return len(expired), nil
}
