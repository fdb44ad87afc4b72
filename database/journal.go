package database

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"fno-signals/interfaces"
	"fno-signals/models"
)

// SaveSignals journals classified reference records, one row per (symbol, date)
func (s *LocalStorage) SaveSignals(ctx context.Context, signals []*models.DBSignal) error {
	if len(signals) == 0 {
		return nil
	}

	result := s.upsert(ctx, &signals, "symbol", "date")
	if result.Error != nil {
		return fmt.Errorf("failed to save signals: %w", result.Error)
	}

	s.logger.WithField("rows", result.RowsAffected).Debug("Signals journaled")
	return nil
}

// GetSignals retrieves journaled signals, newest first, optionally for one symbol
func (s *LocalStorage) GetSignals(ctx context.Context, symbol string, limit int) ([]*models.DBSignal, error) {
	var signals []*models.DBSignal

	query := s.db.WithContext(ctx).Model(&models.DBSignal{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	result := query.Order("date DESC, symbol ASC").Find(&signals)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get signals: %w", result.Error)
	}

	return signals, nil
}

// SaveConstituents replaces the sector of each given symbol
func (s *LocalStorage) SaveConstituents(ctx context.Context, constituents []*interfaces.Constituent) error {
	if len(constituents) == 0 {
		return nil
	}

	rows := make([]*models.DBConstituent, len(constituents))
	for i, c := range constituents {
		rows[i] = &models.DBConstituent{Symbol: c.Symbol, Sector: c.Sector}
	}

	if err := s.upsert(ctx, &rows, "symbol").Error; err != nil {
		return fmt.Errorf("failed to save constituents: %w", err)
	}
	return nil
}

// GetConstituents retrieves the symbol to sector mapping
func (s *LocalStorage) GetConstituents(ctx context.Context) ([]*interfaces.Constituent, error) {
	var rows []*models.DBConstituent

	if err := s.db.WithContext(ctx).Order("sector ASC, symbol ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get constituents: %w", err)
	}

	constituents := make([]*interfaces.Constituent, len(rows))
	for i, row := range rows {
		constituents[i] = &interfaces.Constituent{Symbol: row.Symbol, Sector: row.Sector}
	}
	return constituents, nil
}

// SeedConstituents loads a constituents CSV into the constituents table
func (s *LocalStorage) SeedConstituents(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open constituents file: %w", err)
	}
	defer f.Close()

	constituents, err := ParseConstituents(f)
	if err != nil {
		return 0, err
	}

	if err := s.SaveConstituents(ctx, constituents); err != nil {
		return 0, err
	}

	s.logger.WithField("count", len(constituents)).WithField("file", path).Info("Constituents seeded")
	return len(constituents), nil
}

// ParseConstituents reads a CSV with "Symbol" and "Sector" header columns.
// Rows missing either value are skipped.
func ParseConstituents(r io.Reader) ([]*interfaces.Constituent, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read constituents header: %w", err)
	}

	symbolCol, sectorCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "symbol":
			symbolCol = i
		case "sector":
			sectorCol = i
		}
	}
	if symbolCol < 0 || sectorCol < 0 {
		return nil, fmt.Errorf("constituents file needs Symbol and Sector columns, got %v", header)
	}

	var constituents []*interfaces.Constituent
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read constituents row: %w", err)
		}
		if symbolCol >= len(record) || sectorCol >= len(record) {
			continue
		}

		symbol := strings.TrimSpace(record[symbolCol])
		sector := strings.TrimSpace(record[sectorCol])
		if symbol == "" || sector == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		constituents = append(constituents, &interfaces.Constituent{Symbol: symbol, Sector: sector})
	}

	return constituents, nil
}
