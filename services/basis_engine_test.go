package services

import (
	"testing"
	"time"

	"fno-signals/interfaces"
)

func TestBasisOf(t *testing.T) {
	pts, pct := basisOf(22100, 22000)
	if *pts != 100 || *pct != 0.45 {
		t.Errorf("basisOf = %v, %v", *pts, *pct)
	}

	pts, pct = basisOf(50, 0)
	if *pts != 50 || pct != nil {
		t.Errorf("expected nil percent for a zero spot, got %v", pct)
	}
}

func TestIndexSpotName(t *testing.T) {
	if IndexSpotName("NIFTY") != "NIFTY 50" || IndexSpotName("BANKNIFTY") != "NIFTY BANK" {
		t.Error("index aliases not applied")
	}
	if IndexSpotName("RELIANCE") != "RELIANCE" {
		t.Error("stocks keep their own name")
	}
}

func TestCurrentBasis(t *testing.T) {
	t1 := time.Date(2024, 2, 6, 9, 15, 0, 0, ist)
	t2 := t1.Add(time.Minute)

	spot := []*interfaces.Bar{
		{Symbol: "NIFTY 50", Date: day(2024, 2, 5), Close: 21800},
		{Symbol: "NIFTY 50", Date: day(2024, 2, 6), Close: 22000},
		{Symbol: "RELIANCE", Date: day(2024, 2, 6), Close: 2950},
	}
	futBars := []*interfaces.IntradayBar{
		{Symbol: "NIFTY24FEBFUT", Datetime: t2, Close: 22100},
		{Symbol: "NIFTY24FEBFUT", Datetime: t1, Close: 22050},
		{Symbol: "NIFTY24MARFUT", Datetime: t1, Close: 22200},
		{Symbol: "RELIANCE24FEBFUT", Datetime: t1, Close: 2960},
		{Symbol: "ZEE24FEBFUT", Datetime: t1, Close: 150},
	}
	reference := append(futuresMaster(), &interfaces.Contract{
		Tradingsymbol: "ZEE24FEBFUT", Name: "ZEE", Expiry: day(2024, 2, 29), InstrumentType: interfaces.InstrumentFuture,
	})

	rows := CurrentBasis(spot, futBars, reference, day(2024, 2, 6))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	nifty := rows[0]
	if nifty.Symbol != "NIFTY" || *nifty.Spot != 22000 {
		t.Fatalf("nifty row = %+v", nifty)
	}
	if *nifty.FrontPx != 22100 || *nifty.FrontPts != 100 || *nifty.FrontPct != 0.45 {
		t.Errorf("front basis = %v %v %v", *nifty.FrontPx, *nifty.FrontPts, *nifty.FrontPct)
	}
	if *nifty.BackPx != 22200 || *nifty.BackPts != 200 || *nifty.BackPct != 0.91 {
		t.Errorf("back basis = %v %v %v", *nifty.BackPx, *nifty.BackPts, *nifty.BackPct)
	}
	if nifty.FarPx != nil {
		t.Errorf("expected no far contract, got %v", *nifty.FarPx)
	}

	rel := rows[1]
	if rel.Symbol != "RELIANCE" || *rel.FrontPts != 10 || *rel.FrontPct != 0.34 {
		t.Errorf("reliance row = %+v", rel)
	}

	zee := rows[2]
	if zee.Spot != nil || zee.FrontPts != nil || zee.FrontPct != nil || *zee.FrontPx != 150 {
		t.Errorf("row without spot should carry only the futures price, got %+v", zee)
	}
}

func TestDailyBasis(t *testing.T) {
	spot := []*interfaces.Bar{
		{Symbol: "RELIANCE", Date: day(2023, 10, 2), Close: 2300},
		{Symbol: "RELIANCE", Date: day(2024, 2, 1), Open: 2890, High: 2910, Low: 2880, Close: 2900},
		{Symbol: "RELIANCE", Date: day(2024, 2, 2), Close: 2920},
		{Symbol: "RELIANCE", Date: day(2024, 2, 5), Close: 2950},
		{Symbol: "TCS", Date: day(2024, 2, 5), Close: 3900},
	}
	snaps := []*interfaces.DerivSnapshot{
		{Symbol: "RELIANCE", Date: day(2024, 2, 1), FrontFutClose: ptr(2910), BackFutClose: ptr(2920)},
		{Symbol: "RELIANCE", Date: day(2024, 2, 5), FrontFutClose: ptr(2960)},
	}

	rows := DailyBasis("RELIANCE", spot, snaps, 3)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows inside the window, got %d", len(rows))
	}

	if rows[0].Open != 2890 || *rows[0].FrontFut != 2910 {
		t.Errorf("first row = %+v", rows[0])
	}
	if !approx(*rows[0].FrontPct, 10.0/2900*100) {
		t.Errorf("front pct = %v", *rows[0].FrontPct)
	}
	if *rows[1].FrontFut != 2910 || *rows[1].BackFut != 2920 {
		t.Errorf("missing futures closes should be forward-filled, got %+v", rows[1])
	}
	if *rows[2].FrontFut != 2960 || *rows[2].BackFut != 2920 {
		t.Errorf("last row = %+v", rows[2])
	}
	if rows[2].FarFut != nil || rows[2].FarPct != nil {
		t.Error("expected no far futures")
	}
}

func TestIntradayBasis(t *testing.T) {
	t1 := time.Date(2024, 2, 6, 9, 15, 0, 0, ist)
	t2 := t1.Add(time.Minute)

	bars := []*interfaces.IntradayBar{
		{Symbol: "NIFTY24MARFUT", Datetime: t1, Close: 22200},
		{Symbol: "NIFTY24FEBFUT", Datetime: t2, Close: 22110},
		{Symbol: "NIFTY24FEBFUT", Datetime: t1, Close: 22100},
		{Symbol: "BANKNIFTY24FEBFUT", Datetime: t1, Close: 46000},
		{Symbol: "NIFTY 50", Datetime: t1, Close: 22000},
		{Symbol: "NIFTY 50", Datetime: t2, Close: 22010},
	}

	res := IntradayBasis("NIFTY", bars, bars)

	if len(res.Contracts) != 2 || res.Contracts[0] != "NIFTY24FEBFUT" || res.Contracts[1] != "NIFTY24MARFUT" {
		t.Errorf("contracts = %v", res.Contracts)
	}
	if len(res.Spot) != 2 || res.Spot[0].Close != 22000 {
		t.Errorf("spot = %+v", res.Spot)
	}
	if pts := res.Futures["NIFTY24FEBFUT"]; len(pts) != 2 || !pts[0].Datetime.Equal(t1) {
		t.Errorf("front series not ordered: %+v", pts)
	}
	if len(res.FrontBasis) != 2 || *res.FrontBasis[0].Pts != 100 || *res.FrontBasis[1].Pts != 100 {
		t.Errorf("front basis = %+v", res.FrontBasis)
	}
}
