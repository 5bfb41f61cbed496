package ingest

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestWatermarkDayAfterMaxDate(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["bank_payments"] = stringRows("2025-06-10")

	tracker := NewTracker(exec, "finances")
	got := tracker.Watermark(context.Background(), FamilyBankEmail)

	want := civil.Date{Year: 2025, Month: time.June, Day: 11}
	if got != want {
		t.Errorf("Watermark = %v, want %v", got, want)
	}
}

func TestWatermarkWidensTwoDigitYears(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["receipt_items"] = stringRows("09/03/25")

	tracker := NewTracker(exec, "finances")
	got := tracker.Watermark(context.Background(), FamilyReceiptPDF)

	want := civil.Date{Year: 2025, Month: time.March, Day: 10}
	if got != want {
		t.Errorf("Watermark = %v, want %v", got, want)
	}
}

func TestWatermarkFallbackOnFailedStatement(t *testing.T) {
	exec := newFakeExecutor()
	exec.failures["bank_payments"] = "table not found"

	tracker := NewTracker(exec, "finances")
	got := tracker.Watermark(context.Background(), FamilyBankEmail)

	if got != bankFallbackDate {
		t.Errorf("Watermark = %v, want fixed fallback %v", got, bankFallbackDate)
	}
}

func TestWatermarkFallbackOnEmptyResult(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	exec := newFakeExecutor()
	tracker := NewTracker(exec, "finances")
	tracker.now = func() time.Time { return now }

	got := tracker.Watermark(context.Background(), FamilyReceiptPDF)
	want := civil.DateOf(now.AddDate(0, 0, -receiptFallbackDays))
	if got != want {
		t.Errorf("receipt Watermark = %v, want %v", got, want)
	}

	got = tracker.Watermark(context.Background(), FamilySettlementReport)
	want = civil.DateOf(now.AddDate(0, 0, -settlementFallbackDays))
	if got != want {
		t.Errorf("settlement Watermark = %v, want %v", got, want)
	}
}

func TestParseWatermarkDate(t *testing.T) {
	tests := []struct {
		in      string
		want    civil.Date
		wantErr bool
	}{
		{in: "2025-06-10", want: civil.Date{Year: 2025, Month: time.June, Day: 10}},
		{in: "09/03/25", want: civil.Date{Year: 2025, Month: time.March, Day: 9}},
		{in: "09/03/2025", want: civil.Date{Year: 2025, Month: time.March, Day: 9}},
		{in: "not a date", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseWatermarkDate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseWatermarkDate(%q) succeeded, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseWatermarkDate(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseWatermarkDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
