package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fno-signals/models"
)

func TestSignalsUpsertAndOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	signals := []*models.DBSignal{
		{Symbol: "RELIANCE", Date: day(2024, 2, 5), Quadrant: "OI Down/Price Up", PriceChange: 10},
		{Symbol: "TCS", Date: day(2024, 2, 5), Quadrant: "OI Up/Price Up"},
		{Symbol: "RELIANCE", Date: day(2024, 2, 2), Quadrant: "OI Up/Price Down"},
	}
	if err := s.SaveSignals(ctx, signals); err != nil {
		t.Fatalf("failed to save signals: %v", err)
	}

	// rebuilding the same session replaces its row
	again := []*models.DBSignal{{Symbol: "RELIANCE", Date: day(2024, 2, 5), Quadrant: "OI Up/Price Up", PriceChange: 12}}
	if err := s.SaveSignals(ctx, again); err != nil {
		t.Fatalf("failed to upsert signals: %v", err)
	}

	all, err := s.GetSignals(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(all))
	}
	if all[0].Symbol != "RELIANCE" || !all[0].Date.Equal(day(2024, 2, 5)) || all[0].PriceChange != 12 {
		t.Errorf("first signal = %+v", all[0])
	}
	if all[1].Symbol != "TCS" || !all[2].Date.Equal(day(2024, 2, 2)) {
		t.Errorf("signals not ordered newest first: %+v %+v", all[1], all[2])
	}

	one, err := s.GetSignals(ctx, "RELIANCE", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].Quadrant != "OI Up/Price Up" {
		t.Errorf("unexpected filtered signals %+v", one)
	}
}

func TestParseConstituents(t *testing.T) {
	input := "\ufeffSYMBOL, Company ,sector\n" +
		"RELIANCE,Reliance Industries,ENERGY\n" +
		"TCS,Tata Consultancy,IT\n" +
		",Blank,IT\n" +
		"INFY,Infosys,\n" +
		"RELIANCE,Duplicate,METAL\n" +
		"SHORT\n"

	got, err := ParseConstituents(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 constituents, got %+v", got)
	}
	if got[0].Symbol != "RELIANCE" || got[0].Sector != "ENERGY" || got[1].Symbol != "TCS" {
		t.Errorf("unexpected constituents %+v %+v", got[0], got[1])
	}
}

func TestParseConstituentsMissingColumns(t *testing.T) {
	if _, err := ParseConstituents(strings.NewReader("Symbol,Industry\nTCS,IT\n")); err == nil {
		t.Error("expected an error without a Sector column")
	}
	if _, err := ParseConstituents(strings.NewReader("")); err == nil {
		t.Error("expected an error for an empty file")
	}
}

func TestSeedConstituents(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "constituents.csv")
	if err := os.WriteFile(path, []byte("Symbol,Sector\nTCS,IT\nRELIANCE,ENERGY\nINFY,IT\n"), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := s.SeedConstituents(ctx, path)
	if err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	if n != 3 {
		t.Errorf("seeded %d, want 3", n)
	}

	// a later file moves a symbol to another sector
	if err := os.WriteFile(path, []byte("Symbol,Sector\nRELIANCE,OIL\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SeedConstituents(ctx, path); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConstituents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 constituents, got %d", len(got))
	}
	if got[0].Symbol != "INFY" || got[1].Symbol != "TCS" || got[2].Symbol != "RELIANCE" || got[2].Sector != "OIL" {
		t.Errorf("constituents not ordered by sector and symbol: %+v", got)
	}

	if _, err := s.SeedConstituents(ctx, filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
