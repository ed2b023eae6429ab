package indexer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"remitlend/core"
	"remitlend/core/events"
	"remitlend/core/types"
	"remitlend/crypto"
)

func openTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	idx, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	if err != nil {
		t.Fatalf("open indexer: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func sealedReceipt(t *testing.T, seq uint64, op string, evts ...*types.Event) *core.Receipt {
	t.Helper()
	r := &core.Receipt{
		Sequence:  seq,
		Operation: op,
		Caller:    crypto.BytesToAddress([]byte{byte(seq)}),
		Timestamp: 1_700_000_000 + seq,
		Events:    evts,
	}
	h, err := r.ComputeHash()
	if err != nil {
		t.Fatalf("hash receipt: %v", err)
	}
	r.Hash = h
	return r
}

func event(typ string, attrs map[string]string) *types.Event {
	evt := types.NewEvent(typ)
	for k, v := range attrs {
		evt.Attributes[k] = v
	}
	return evt
}

func TestIndexAndQueryByLoan(t *testing.T) {
	idx := openTestIndexer(t)
	ctx := context.Background()

	receipts := []*core.Receipt{
		sealedReceipt(t, 1, "deposit", event("pool.deposited", map[string]string{"lender": "a", "amount": "100"})),
		sealedReceipt(t, 2, "approve_loan",
			event("loans.approved", map[string]string{"loanId": "1"}),
			event("collateral.staked", map[string]string{"tokenId": "7", "loanId": "1"}),
			event("pool.borrowed", map[string]string{"loanId": "1", "amount": "50"})),
		sealedReceipt(t, 3, "make_payment", event("loans.paymentMade", map[string]string{"loanId": "2"})),
	}
	for _, r := range receipts {
		if err := idx.Index(ctx, r); err != nil {
			t.Fatalf("index %d: %v", r.Sequence, err)
		}
	}
	if err := idx.Index(ctx, receipts[1]); err != nil {
		t.Fatalf("re-index should be a no-op: %v", err)
	}

	loanID := uint64(1)
	got, err := idx.Events(ctx, Filter{LoanID: &loanID})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events for loan 1, got %d", len(got))
	}
	for pos, evt := range got {
		if evt.Sequence != 2 || evt.Position != pos || evt.Operation != "approve_loan" {
			t.Fatalf("unexpected event %d: %+v", pos, evt)
		}
	}
	if got[1].Attributes["tokenId"] != "7" {
		t.Fatalf("attributes not round-tripped: %+v", got[1].Attributes)
	}

	typed, err := idx.Events(ctx, Filter{Type: "loans.paymentMade"})
	if err != nil || len(typed) != 1 || typed[0].Sequence != 3 {
		t.Fatalf("type filter: %+v (%v)", typed, err)
	}
	after, err := idx.Events(ctx, Filter{AfterSequence: 2, Limit: 10})
	if err != nil || len(after) != 1 {
		t.Fatalf("after filter: %+v (%v)", after, err)
	}

	last, err := idx.LastSequence(ctx)
	if err != nil || last != 3 {
		t.Fatalf("last sequence %d (%v)", last, err)
	}
	header, err := idx.Receipt(ctx, 2)
	if err != nil || header == nil || header.EventCount != 3 || header.Hash != receipts[1].Hash.Hex() {
		t.Fatalf("receipt header %+v (%v)", header, err)
	}
	missing, err := idx.Receipt(ctx, 99)
	if err != nil || missing != nil {
		t.Fatalf("expected missing receipt, got %+v (%v)", missing, err)
	}
}

func TestIndexRejectsTamperedReceipt(t *testing.T) {
	idx := openTestIndexer(t)
	r := sealedReceipt(t, 1, "deposit", event("pool.deposited", map[string]string{"amount": "100"}))
	r.Events[0].Attributes["amount"] = "1000000"
	if err := idx.Index(context.Background(), r); err == nil {
		t.Fatalf("expected tampered receipt to be rejected")
	}
}

func TestRunConsumesBus(t *testing.T) {
	idx := openTestIndexer(t)
	bus := events.NewBus()
	running := goleak.IgnoreCurrent()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		idx.Run(ctx, bus, 8)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("indexer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bus.Emit(sealedReceipt(t, 1, "deposit", event("pool.deposited", map[string]string{"amount": "1"})))
	bus.Emit(types.NewEvent("not.a.receipt"))

	for {
		last, err := idx.LastSequence(context.Background())
		if err != nil {
			t.Fatalf("last sequence: %v", err)
		}
		if last == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("receipt never indexed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if bus.Subscribers() != 0 {
		t.Fatalf("indexer left its subscription behind")
	}
	goleak.VerifyNone(t, running)
}
