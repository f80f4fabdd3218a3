package store

import "github.com/ethereum/go-ethereum/ethdb/memorydb"

// OpenMemory opens the in-memory backend variant: an ordered map with no
// persistence. seq_no_backup_freq is infinite for this variant (its
// backup frequency is 0, so TriggerBackup never fires the callbacks).
func OpenMemory() *Backend {
	return newBackend(memorydb.New(), 0, func() error {
		return nil
	})
}
