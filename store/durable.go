package store

import (
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/ethdb/pebble"
	"github.com/gofrs/flock"
)

const lockFileName = "LOCK.mnemosyne"

// OpenDurable opens the on-disk backend variant: an ordered key-value
// store backed by Pebble (the same engine go-ethereum's ethdb/pebble
// wraps), guarded by an advisory lock file so two logger processes never
// open the same database_path concurrently.
func OpenDurable(path string, cache, handles int, backupFreq uint64) (*Backend, error) {
	lock := flock.New(filepath.Join(path, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring lock file: %v", ErrBackendOpenFailed, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: database_path %q is already locked by another process", ErrBackendOpenFailed, path)
	}

	db, err := pebble.New(path, cache, handles, "mnemosyne/", false)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrBackendOpenFailed, err)
	}

	return newBackend(db, backupFreq, func() error {
		closeErr := db.Close()
		unlockErr := lock.Unlock()
		if closeErr != nil {
			return closeErr
		}
		return unlockErr
	}), nil
}
