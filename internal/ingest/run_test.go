package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/expense-etl/internal/mailbox"
	"github.com/dvloznov/expense-etl/internal/objectstore"
)

func newTestRunner(mail *fakeMailSource, exec *fakeExecutor, store objectstore.Store) *Runner {
	return &Runner{
		Mail:     mail,
		Exec:     exec,
		Store:    store,
		Database: "finances",
		Bucket:   "staging-bucket",
	}
}

func TestBankPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()

	mail := &fakeMailSource{
		searchIDs: []string{"msg-1", "msg-2"},
		messages: map[string]*mailbox.Message{
			"msg-1": {
				ID:           "msg-1",
				InternalDate: time.Date(2025, 6, 9, 18, 5, 0, 0, time.UTC),
				Subject:      "Pagaste",
				HTMLBody:     bankEmailHTML("$45.000,00", "09/06/25", "18:05", "MERPAGO*CAFE", "1234"),
			},
			"msg-2": {
				ID:           "msg-2",
				InternalDate: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
				Subject:      "Pagaste",
				HTMLBody:     bankEmailHTML("U$S 20,50", "10/06/25", "12:00", "SPOTIFY", "1234"),
			},
		},
	}
	exec := newFakeExecutor()
	runner := newTestRunner(mail, exec, objectstore.NewMemory())

	state := &RunState{Family: FamilyBankEmail}
	if err := NewFamilyPipeline(runner, FamilyBankEmail).Execute(ctx, state); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	summary := state.Summary()
	if summary.Fetched != 2 || summary.Parsed != 2 || summary.Loaded != 2 {
		t.Errorf("summary = %+v, want 2 fetched, parsed and loaded", summary)
	}
	if summary.Failed != 0 {
		t.Errorf("summary reports %d failures: %v", summary.Failed, summary.Messages)
	}

	inserts := exec.inserts()
	if len(inserts) != 2 {
		t.Fatalf("issued %d inserts, want 2", len(inserts))
	}
	joined := strings.Join(inserts, "\n")
	for _, want := range []string{"'MERPAGO*CAFE'", "'SPOTIFY'", "'ARS'", "'USD'", "'2025-06-09'", "'18:05:00'"} {
		if !strings.Contains(joined, want) {
			t.Errorf("inserts missing %q", want)
		}
	}

	// The empty warehouse falls back to the fixed horizon.
	if !strings.Contains(mail.lastQuery, `after:2024/10/01`) {
		t.Errorf("search query = %q, want fixed fallback horizon", mail.lastQuery)
	}
	if !strings.Contains(mail.lastQuery, `from:`+DefaultBankSender) || !strings.Contains(mail.lastQuery, `subject:"Pagaste"`) {
		t.Errorf("search query = %q", mail.lastQuery)
	}
}

func TestBankPipelineRerunLoadsNothingNew(t *testing.T) {
	ctx := context.Background()

	mail := &fakeMailSource{
		searchIDs: []string{"msg-1"},
		messages: map[string]*mailbox.Message{
			"msg-1": {
				ID:           "msg-1",
				InternalDate: time.Date(2025, 6, 9, 18, 5, 0, 0, time.UTC),
				Subject:      "Pagaste",
				HTMLBody:     bankEmailHTML("$45.000,00", "09/06/25", "18:05", "MERPAGO*CAFE", "1234"),
			},
		},
	}
	exec := newFakeExecutor()
	runner := newTestRunner(mail, exec, objectstore.NewMemory())

	if err := NewFamilyPipeline(runner, FamilyBankEmail).Execute(ctx, &RunState{Family: FamilyBankEmail}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	firstInserts := len(exec.inserts())
	if firstInserts != 1 {
		t.Fatalf("first run issued %d inserts, want 1", firstInserts)
	}

	// The second run sees the message id and the row identity in the warehouse.
	exec.results["SELECT DISTINCT message_id FROM bank_payments"] = stringRows("msg-1")
	p, err := ParseBankEmail(bankDoc(mail.messages["msg-1"].HTMLBody))
	if err != nil {
		t.Fatalf("ParseBankEmail failed: %v", err)
	}
	exec.results["SELECT DISTINCT id FROM bank_payments"] = stringRows(p.ID)

	state := &RunState{Family: FamilyBankEmail}
	if err := NewFamilyPipeline(runner, FamilyBankEmail).Execute(ctx, state); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if got := len(exec.inserts()); got != firstInserts {
		t.Errorf("second run issued %d new inserts, want 0", got-firstInserts)
	}
	summary := state.Summary()
	if summary.Fetched != 0 {
		t.Errorf("second run fetched %d messages, want 0", summary.Fetched)
	}
	if summary.Loaded != 0 {
		t.Errorf("second run loaded %d rows, want 0", summary.Loaded)
	}
}

func TestTransformContinuesPastBadDocument(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	exec := newFakeExecutor()
	runner := newTestRunner(&fakeMailSource{}, exec, store)

	relay := NewRelay(store, "staging-bucket")
	good := &RawEnvelope{
		MessageID: "msg-ok",
		Date:      "2025-06-09T18:05:00Z",
		Subject:   "Pagaste",
		HTMLBody:  string(bankEmailHTML("$100,00", "09/06/25", "18:05", "KIOSCO", "1234")),
	}
	bad := &RawEnvelope{
		MessageID: "msg-bad",
		Date:      "2025-06-09T19:00:00Z",
		Subject:   "Pagaste",
		HTMLBody:  "<html><body>sin los campos esperados</body></html>",
	}
	for _, env := range []*RawEnvelope{good, bad} {
		if _, err := relay.StageRaw(ctx, env); err != nil {
			t.Fatalf("StageRaw failed: %v", err)
		}
	}

	summary, err := runner.Transform(ctx, FamilyBankEmail)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if summary.Parsed != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 parsed and 1 failed", summary)
	}

	staged, err := relay.ListStaged(ctx, FamilyBankEmail)
	if err != nil {
		t.Fatalf("ListStaged failed: %v", err)
	}
	if len(staged) != 1 {
		t.Errorf("staged %d artifacts, want 1", len(staged))
	}
}

func TestTransformRetiresRawArtifacts(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	exec := newFakeExecutor()
	runner := newTestRunner(&fakeMailSource{}, exec, store)

	relay := NewRelay(store, "staging-bucket")
	env := &RawEnvelope{
		MessageID: "msg-1",
		Date:      "2025-06-09T18:05:00Z",
		Subject:   "Pagaste",
		HTMLBody:  string(bankEmailHTML("$100,00", "09/06/25", "18:05", "KIOSCO", "1234")),
	}
	if _, err := relay.StageRaw(ctx, env); err != nil {
		t.Fatalf("StageRaw failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := runner.Transform(ctx, FamilyBankEmail); err != nil {
			t.Fatalf("Transform run %d failed: %v", i+1, err)
		}
	}

	raw, err := relay.ListRaw(ctx, FamilyBankEmail)
	if err != nil {
		t.Fatalf("ListRaw failed: %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("raw area holds %d artifacts after transform, want 0", len(raw))
	}

	staged, err := relay.ListStaged(ctx, FamilyBankEmail)
	if err != nil {
		t.Fatalf("ListStaged failed: %v", err)
	}
	if len(staged) != 1 {
		t.Errorf("staged %d artifacts after 3 transform runs of 1 raw doc, want 1", len(staged))
	}
}

func TestTransformKeepsUnparseableRawArtifact(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	runner := newTestRunner(&fakeMailSource{}, newFakeExecutor(), store)

	relay := NewRelay(store, "staging-bucket")
	bad := &RawEnvelope{
		MessageID: "msg-bad",
		Date:      "2025-06-09T19:00:00Z",
		Subject:   "Pagaste",
		HTMLBody:  "<html><body>sin los campos esperados</body></html>",
	}
	if _, err := relay.StageRaw(ctx, bad); err != nil {
		t.Fatalf("StageRaw failed: %v", err)
	}

	if _, err := runner.Transform(ctx, FamilyBankEmail); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	raw, err := relay.ListRaw(ctx, FamilyBankEmail)
	if err != nil {
		t.Fatalf("ListRaw failed: %v", err)
	}
	if len(raw) != 1 {
		t.Errorf("rejected document retired from raw area, want it kept (%d artifacts)", len(raw))
	}
}

func TestSettlementPipelineFromRawArea(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	exec := newFakeExecutor()
	runner := newTestRunner(&fakeMailSource{}, exec, store)

	csv := strings.Join([]string{
		"SOURCE_ID;SETTLEMENT_DATE;PAYMENT_METHOD_TYPE;TRANSACTION_TYPE;TRANSACTION_AMOUNT;TRANSACTION_DATE;REAL_AMOUNT;POS_ID;STORE_ID;STORE_NAME;PAYER_NAME;BUSINESS_UNIT;SUB_UNIT",
		"op-1;2025-06-02;credit_card;SETTLEMENT;1500.00;2025-06-01;1452.30;pos-9;store-1;Sucursal;Juan;online;checkout",
		"op-2;2025-06-03;debit_card;SETTLEMENT;800.00;2025-06-02;790.10;pos-9;store-1;Sucursal;Ana;online;checkout",
	}, "\n")
	key := "raw/SETTLEMENT_REPORT/settlement-report_2025-06-08_12345678.csv"
	if err := store.Put(ctx, "staging-bucket", key, []byte(csv)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	state := &RunState{Family: FamilySettlementReport}
	if err := NewFamilyPipeline(runner, FamilySettlementReport).Execute(ctx, state); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	summary := state.Summary()
	if summary.Parsed != 1 || summary.Loaded != 2 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 parsed document and 2 loaded rows", summary)
	}
	joined := strings.Join(exec.inserts(), "\n")
	for _, want := range []string{"INSERT INTO mp_data", "'op-1'", "'op-2'", "'12345678'", "'2025-06-08'"} {
		if !strings.Contains(joined, want) {
			t.Errorf("inserts missing %q", want)
		}
	}
}

func TestSettlementSchemaMismatchLoadsNothing(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()
	exec := newFakeExecutor()
	runner := newTestRunner(&fakeMailSource{}, exec, store)

	csv := "COLUMNA_A;COLUMNA_B\n1;2\n"
	key := "raw/SETTLEMENT_REPORT/settlement-report_2025-06-08_99.csv"
	if err := store.Put(ctx, "staging-bucket", key, []byte(csv)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	state := &RunState{Family: FamilySettlementReport}
	if err := NewFamilyPipeline(runner, FamilySettlementReport).Execute(ctx, state); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	summary := state.Summary()
	if summary.Failed != 1 || summary.Loaded != 0 {
		t.Errorf("summary = %+v, want one rejected document and no loads", summary)
	}
	if got := len(exec.inserts()); got != 0 {
		t.Errorf("issued %d inserts for a rejected report", got)
	}
}
