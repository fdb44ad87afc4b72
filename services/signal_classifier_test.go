package services

import (
	"testing"
	"time"

	"fno-signals/interfaces"
)

func TestClassifyQuadrant(t *testing.T) {
	tests := []struct {
		price, oi float64
		want      string
	}{
		{1.5, 2.0, QuadrantOIUpPriceUp},
		{-1.5, 2.0, QuadrantOIUpPriceDown},
		{1.5, -2.0, QuadrantOIDownPriceUp},
		{-1.5, -2.0, QuadrantOIDownPriceDown},
		{0, 2.0, ""},
		{1.5, 0, ""},
	}

	for _, tt := range tests {
		if got := ClassifyQuadrant(tt.price, tt.oi); got != tt.want {
			t.Errorf("ClassifyQuadrant(%v, %v) = %q, want %q", tt.price, tt.oi, got, tt.want)
		}
	}
}

func TestClassifyPriceSignal(t *testing.T) {
	level := func(latest float64) *ReferenceRecord {
		return &ReferenceRecord{CashCloseLatest: latest, PrevExpiryHigh: 105, PrevExpiryLow: 95, PrevExpiryClose: 100}
	}

	tests := []struct {
		name   string
		latest float64
		want   string
	}{
		{"above high wins over above close", 106, SignalAboveHigh},
		{"above close", 102, SignalAboveClose},
		{"below low wins over below close", 94, SignalBelowLow},
		{"below close", 98, SignalBelowClose},
		{"at close", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPriceSignal(level(tt.latest)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanPrevExpiryCross(t *testing.T) {
	ref := func(yesterday float64) *ReferenceRecord {
		return &ReferenceRecord{CashCloseLatest: yesterday, PrevExpiryHigh: 105, PrevExpiryLow: 95, PrevExpiryClose: 100}
	}
	refs := map[string]*ReferenceRecord{
		"UPCLOSE": ref(99),
		"UPHIGH":  ref(104),
		"DNCLOSE": ref(101),
		"DNLOW":   ref(96),
		"ALREADY": ref(101),
	}

	open := time.Date(2024, 2, 6, 9, 15, 0, 0, time.UTC)
	later := open.Add(time.Minute)
	live := []*interfaces.IntradayBar{
		{Symbol: "UPCLOSE", Datetime: open, Close: 99.5},
		{Symbol: "UPCLOSE", Datetime: later, Close: 101},
		{Symbol: "UPHIGH", Datetime: later, Close: 106},
		{Symbol: "DNCLOSE", Datetime: later, Close: 99},
		{Symbol: "DNLOW", Datetime: later, Close: 94},
		{Symbol: "ALREADY", Datetime: later, Close: 102},
		{Symbol: "UNKNOWN", Datetime: later, Close: 500},
	}

	scan := ScanPrevExpiryCross(live, refs)

	expect := map[string][]string{
		CrossBreakoutClose:  {"UPCLOSE"},
		CrossBreakoutHigh:   {"UPHIGH"},
		CrossBreakdownClose: {"DNCLOSE"},
		CrossBreakdownLow:   {"DNLOW"},
	}
	for kind, rows := range scan.Kinds() {
		want := expect[kind]
		if len(rows) != len(want) {
			t.Errorf("%s: got %d rows, want %v", kind, len(rows), want)
			continue
		}
		for i, r := range rows {
			if r.Symbol != want[i] {
				t.Errorf("%s[%d] = %s, want %s", kind, i, r.Symbol, want[i])
			}
		}
	}

	if scan.BreakoutClose[0].LiveClose != 101 {
		t.Errorf("expected the last tick to be used, got %v", scan.BreakoutClose[0].LiveClose)
	}
}

func TestScanPrevExpiryCrossEmpty(t *testing.T) {
	scan := ScanPrevExpiryCross(nil, nil)
	if scan.BreakoutClose == nil || scan.BreakoutHigh == nil || scan.BreakdownClose == nil || scan.BreakdownLow == nil {
		t.Error("expected empty, non-nil row sets")
	}
}
