package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestNonceLedgerEnsureAndPrune(t *testing.T) {
	ledger, err := OpenNonceLedger(filepath.Join(t.TempDir(), "nonces"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	ctx := context.Background()
	base := time.Unix(1_760_000_000, 0).UTC()
	old := NonceRecord{APIKey: "oracle", Timestamp: "1", Nonce: "a", ObservedAt: base}
	fresh := NonceRecord{APIKey: "oracle", Timestamp: "2", Nonce: "b", ObservedAt: base.Add(5 * time.Minute)}

	for _, rec := range []NonceRecord{old, fresh} {
		existed, err := ledger.EnsureNonce(ctx, rec)
		if err != nil || existed {
			t.Fatalf("first ensure of %s: existed=%v err=%v", rec.Nonce, existed, err)
		}
	}
	existed, err := ledger.EnsureNonce(ctx, old)
	if err != nil || !existed {
		t.Fatalf("expected duplicate, existed=%v err=%v", existed, err)
	}

	recent, err := ledger.RecentNonces(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Nonce != "b" || !recent[0].ObservedAt.Equal(fresh.ObservedAt) {
		t.Fatalf("unexpected recent nonces %+v", recent)
	}

	if err := ledger.PruneNonces(ctx, base.Add(time.Minute)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	existed, err = ledger.EnsureNonce(ctx, old)
	if err != nil || existed {
		t.Fatalf("pruned nonce should be new again, existed=%v err=%v", existed, err)
	}
	if _, err := ledger.EnsureNonce(ctx, NonceRecord{APIKey: "oracle"}); err == nil {
		t.Fatalf("expected incomplete record to fail")
	}
}
