package services

import (
	"context"
	"testing"
	"time"
)

func TestAlertDeduper(t *testing.T) {
	d := NewAlertDeduper()
	now := time.Date(2024, 2, 6, 10, 0, 0, 0, ist)
	session := day(2024, 2, 6)

	row := CrossRow{Symbol: "RELIANCE", LiveClose: 2960, PrevExpiryHigh: 2955, PrevExpiryClose: 2900}
	scan := CrossScan{
		BreakoutClose: []CrossRow{row},
		BreakoutHigh:  []CrossRow{row},
	}

	first := d.Fresh(scan, session, now)
	if len(first) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(first))
	}
	if first[0].Kind != CrossBreakoutClose || first[0].Level != 2900 {
		t.Errorf("first alert = %+v", first[0])
	}
	if first[1].Kind != CrossBreakoutHigh || first[1].Level != 2955 {
		t.Errorf("second alert = %+v", first[1])
	}

	if again := d.Fresh(scan, session, now.Add(time.Minute)); len(again) != 0 {
		t.Errorf("expected repeated crosses to be suppressed, got %d", len(again))
	}

	next := d.Fresh(scan, day(2024, 2, 7), now.Add(24*time.Hour))
	if len(next) != 2 {
		t.Errorf("expected alerts to re-arm on a new session, got %d", len(next))
	}
}

func TestNoopAlertSink(t *testing.T) {
	var sink AlertSink = NoopAlertSink{}
	if err := sink.Publish(context.Background(), []Alert{{Symbol: "TCS"}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	sink.Close()
}
