package state

import (
	"testing"

	"github.com/holiman/uint256"

	"remitlend/core/types"
	"remitlend/storage"
)

type record struct {
	Amount uint256.Int
	Count  uint64
	Label  string
}

func TestKVPutGetCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	in := record{Amount: *uint256.NewInt(1_000), Count: 3, Label: "lender"}
	if err := mgr.KVPut([]byte("pool/lender/a"), &in); err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(db.Keys()) != 0 {
		t.Fatalf("writes must stay in memory before commit")
	}

	var out record
	ok, err := mgr.KVGet([]byte("pool/lender/a"), &out)
	if err != nil || !ok {
		t.Fatalf("get before commit: ok=%v err=%v", ok, err)
	}
	if out.Amount.Uint64() != 1_000 || out.Count != 3 || out.Label != "lender" {
		t.Fatalf("unexpected record %+v", out)
	}

	if _, err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(db.Keys()) != 1 {
		t.Fatalf("expected one persisted key, got %d", len(db.Keys()))
	}

	fresh := NewManager(db)
	var reloaded record
	ok, err = fresh.KVGet([]byte("pool/lender/a"), &reloaded)
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	if reloaded.Amount.Uint64() != 1_000 {
		t.Fatalf("unexpected reloaded amount %s", reloaded.Amount.Dec())
	}
}

func TestRevertToSnapshotDropsWritesAndEvents(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Emit(types.NewEvent("first"))

	snap := mgr.Snapshot()
	if err := mgr.KVPut([]byte("a"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVPut([]byte("b"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVDelete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mgr.Emit(types.NewEvent("second"))

	if err := mgr.RevertToSnapshot(snap); err != nil {
		t.Fatalf("revert: %v", err)
	}

	var a uint64
	if ok, _ := mgr.KVGet([]byte("a"), &a); !ok || a != 1 {
		t.Fatalf("expected a=1 after revert, got ok=%v a=%d", ok, a)
	}
	if ok, _ := mgr.KVGet([]byte("b"), nil); ok {
		t.Fatalf("expected b to be reverted")
	}
	pending := mgr.PendingEvents()
	if len(pending) != 1 || pending[0].Type != "first" {
		t.Fatalf("unexpected pending events %+v", pending)
	}
	if err := mgr.RevertToSnapshot(snap); err == nil {
		t.Fatalf("expected reverted snapshot id to be invalid")
	}
}

func TestDiscardLeavesDatabaseUntouched(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	_ = mgr.KVPut([]byte("x"), uint64(9))
	mgr.Emit(types.NewEvent("x"))
	mgr.Discard()
	if mgr.Dirty() || len(mgr.PendingEvents()) != 0 {
		t.Fatalf("discard must clear pending state")
	}
	committed, err := mgr.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(committed) != 0 || len(db.Keys()) != 0 {
		t.Fatalf("expected nothing committed after discard")
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("loans/borrower/x")
	for _, v := range [][]byte{{1}, {2}, {1}} {
		if err := mgr.KVAppend(key, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	list, err := mgr.KVGetList(key)
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	empty, err := mgr.KVGetList([]byte("missing"))
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list for missing key, got %v err=%v", empty, err)
	}
}
