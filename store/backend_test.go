package store

import (
	"errors"
	"testing"

	"github.com/mnemosyne/mnemosyne/record"
)

func sealedGenesisChild(producer string, seq uint64, parent record.FullName) *record.Record {
	r := record.New([]record.FullName{parent, record.GenesisFullName("/other")}, nil)
	full := record.FullName{Name: record.Name{Producer: producer, Seq: seq}}
	copy(full.Digest[:], []byte(producer))
	_ = r.Seal(full)
	return r
}

func TestBackendPutGetRecord(t *testing.T) {
	b := OpenMemory()
	r := sealedGenesisChild("/a", 1, record.GenesisFullName("/a"))

	inserted, err := b.PutRecord(r)
	if err != nil || !inserted {
		t.Fatalf("PutRecord() = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = b.PutRecord(r)
	if err != nil || inserted {
		t.Fatalf("second PutRecord() = (%v, %v), want (false, nil)", inserted, err)
	}

	got, ok, err := b.GetRecord(r.FullName())
	if err != nil || !ok {
		t.Fatalf("GetRecord() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if got.FullName() != r.FullName() {
		t.Fatalf("got full name %v, want %v", got.FullName(), r.FullName())
	}
}

func TestBackendMetaRejectsSlashPrefix(t *testing.T) {
	b := OpenMemory()
	if _, err := b.PlaceMeta("/reserved", []byte("x")); !errors.Is(err, ErrMetaKeyReserved) {
		t.Fatalf("PlaceMeta error = %v, want ErrMetaKeyReserved", err)
	}
	if _, err := b.PlaceMeta("SeqNoBackup", []byte("x")); err != nil {
		t.Fatalf("PlaceMeta: %v", err)
	}
	v, ok, err := b.GetMeta("SeqNoBackup")
	if err != nil || !ok || string(v) != "x" {
		t.Fatalf("GetMeta() = (%q, %v, %v), want (\"x\", true, nil)", v, ok, err)
	}
}

func TestBackendListRecordOrdered(t *testing.T) {
	b := OpenMemory()
	for i := uint64(1); i <= 3; i++ {
		r := sealedGenesisChild("/a", i, record.GenesisFullName("/a"))
		if _, err := b.PutRecord(r); err != nil {
			t.Fatalf("PutRecord: %v", err)
		}
	}
	names, err := b.ListRecord("/a", 0)
	if err != nil {
		t.Fatalf("ListRecord: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("got %d names, want 3", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1].Seq > names[i].Seq {
			t.Fatalf("names not ordered ascending: %v", names)
		}
	}
	limited, err := b.ListRecord("/a", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("ListRecord(count=2) = (%v, %v), want 2 entries", limited, err)
	}
}

func TestTriggerBackupCoalesces(t *testing.T) {
	b := OpenMemory()
	b.backupFreq = 3
	var fired int
	b.AddBackupCallback(func() bool { fired++; return true })

	for i := 0; i < 2; i++ {
		if err := b.TriggerBackup(); err != nil {
			t.Fatalf("TriggerBackup: %v", err)
		}
	}
	if fired != 0 {
		t.Fatalf("fired = %d before reaching threshold, want 0", fired)
	}
	if err := b.TriggerBackup(); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d at threshold, want 1", fired)
	}
	if err := b.TriggerBackup(); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	if err := b.TriggerBackup(); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	if err := b.TriggerBackup(); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	if fired != 2 {
		t.Fatalf("fired = %d after second cycle, want 2", fired)
	}
}

func TestTriggerBackupFatalOnFailure(t *testing.T) {
	b := OpenMemory()
	b.backupFreq = 1
	b.AddBackupCallback(func() bool { return false })
	if err := b.TriggerBackup(); !errors.Is(err, ErrCheckpointWriteFailed) {
		t.Fatalf("TriggerBackup error = %v, want ErrCheckpointWriteFailed", err)
	}
}

func TestRemoveBackupCallback(t *testing.T) {
	b := OpenMemory()
	b.backupFreq = 1
	var calls int
	cb := func() bool { calls++; return true }
	b.AddBackupCallback(cb)
	b.RemoveBackupCallback(cb)
	if err := b.TriggerBackup(); err != nil {
		t.Fatalf("TriggerBackup: %v", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 after removal", calls)
	}
}
