package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fno-signals/interfaces"
	"fno-signals/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/clickhouse"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported storage drivers
const (
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"
)

const (
	kindStock = "stock"
	kindIndex = "index"
)

// LocalStorage serves bars, derivatives snapshots and constituents from a gorm database
type LocalStorage struct {
	db     *gorm.DB
	driver string
	logger *logrus.Logger
}

// NewLocalStorage opens the database behind driver and dsn.
// SQLite databases are created and migrated on open; ClickHouse tables are owned by the collector.
func NewLocalStorage(driver, dsn string) (*LocalStorage, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		// Ensure the directory exists
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dialector = sqlite.Open(dsn)
	case DriverClickHouse:
		dialector = clickhouse.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	// Open database
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate schemas
	if driver == DriverSQLite {
		if err := db.AutoMigrate(
			&models.DBCashBar{},
			&models.DBIndexBar{},
			&models.DBDerivSnapshot{},
			&models.DBIntradayBar{},
			&models.DBConstituent{},
			&models.DBSignal{},
		); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return &LocalStorage{
		db:     db,
		driver: driver,
		logger: log,
	}, nil
}

// SetLogger replaces the storage logger
func (s *LocalStorage) SetLogger(l *logrus.Logger) {
	s.logger = l
}

// upsert inserts rows, replacing rows that collide on the given unique columns.
// ClickHouse has no ON CONFLICT; its ReplacingMergeTree tables deduplicate on merge.
func (s *LocalStorage) upsert(ctx context.Context, rows interface{}, columns ...string) *gorm.DB {
	tx := s.db.WithContext(ctx)
	if s.driver == DriverSQLite {
		cols := make([]clause.Column, len(columns))
		for i, c := range columns {
			cols[i] = clause.Column{Name: c}
		}
		tx = tx.Clauses(clause.OnConflict{Columns: cols, UpdateAll: true})
	}
	return tx.Create(rows)
}

// SaveCashBars saves daily cash bars, replacing existing (symbol, date) rows
func (s *LocalStorage) SaveCashBars(ctx context.Context, bars []*interfaces.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Convert interface bars to DB bars
	dbBars := make([]*models.DBCashBar, len(bars))
	for i, bar := range bars {
		dbBars[i] = &models.DBCashBar{
			Symbol:   bar.Symbol,
			Date:     bar.Date,
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			Volume:   bar.Volume,
			DelivPct: bar.DelivPct,
		}
	}

	result := s.upsert(ctx, &dbBars, "symbol", "date")
	if result.Error != nil {
		return fmt.Errorf("failed to save cash bars: %w", result.Error)
	}

	s.logger.WithField("saved", result.RowsAffected).Debug("Cash bars saved")
	return nil
}

// SaveIndexBars saves daily index bars, replacing existing (symbol, date) rows
func (s *LocalStorage) SaveIndexBars(ctx context.Context, bars []*interfaces.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Convert to DB rows
	dbBars := make([]*models.DBIndexBar, len(bars))
	for i, bar := range bars {
		dbBars[i] = &models.DBIndexBar{
			Symbol: bar.Symbol,
			Date:   bar.Date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		}
	}

	if err := s.upsert(ctx, &dbBars, "symbol", "date").Error; err != nil {
		return fmt.Errorf("failed to save index bars: %w", err)
	}
	return nil
}

// SaveStockDerivSnapshots saves stock derivatives snapshots
func (s *LocalStorage) SaveStockDerivSnapshots(ctx context.Context, snaps []*interfaces.DerivSnapshot) error {
	return s.saveDerivSnapshots(ctx, kindStock, snaps)
}

// SaveIndexDerivSnapshots saves index derivatives snapshots
func (s *LocalStorage) SaveIndexDerivSnapshots(ctx context.Context, snaps []*interfaces.DerivSnapshot) error {
	return s.saveDerivSnapshots(ctx, kindIndex, snaps)
}

func (s *LocalStorage) saveDerivSnapshots(ctx context.Context, kind string, snaps []*interfaces.DerivSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	// IVs are stored unscaled, as the collector writes them
	rows := make([]*models.DBDerivSnapshot, len(snaps))
	for i, snap := range snaps {
		rows[i] = &models.DBDerivSnapshot{
			Kind:                      kind,
			Symbol:                    snap.Symbol,
			Date:                      snap.Date,
			FrontExpiry:               snap.FrontExpiry,
			FrontWeeklyExpiry:         snap.FrontWeeklyExpiry,
			FrontMonthlyExpiry:        snap.FrontMonthlyExpiry,
			CombinedOI:                snap.CombinedOI,
			FrontFutClose:             snap.FrontFutClose,
			BackFutClose:              snap.BackFutClose,
			FarFutClose:               snap.FarFutClose,
			FrontStraddlePrice:        snap.FrontStraddlePrice,
			FrontStraddleIV:           unscaleIV(snap.FrontStraddleIV),
			FrontWeeklyStraddlePrice:  snap.FrontWeeklyStraddlePrice,
			FrontWeeklyStraddleIV:     unscaleIV(snap.FrontWeeklyStraddleIV),
			FrontMonthlyStraddlePrice: snap.FrontMonthlyStraddlePrice,
			FrontMonthlyStraddleIV:    unscaleIV(snap.FrontMonthlyStraddleIV),
		}
	}

	if err := s.upsert(ctx, &rows, "kind", "symbol", "date").Error; err != nil {
		return fmt.Errorf("failed to save %s derivatives snapshots: %w", kind, err)
	}
	return nil
}

// SaveIntradayBars saves minute bars
func (s *LocalStorage) SaveIntradayBars(ctx context.Context, bars []*interfaces.IntradayBar) error {
	if len(bars) == 0 {
		return nil
	}

	rows := make([]*models.DBIntradayBar, len(bars))
	for i, bar := range bars {
		rows[i] = &models.DBIntradayBar{
			Symbol:   bar.Symbol,
			Datetime: bar.Datetime,
			Open:     bar.Open,
			High:     bar.High,
			Low:      bar.Low,
			Close:    bar.Close,
			Volume:   bar.Volume,
		}
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save intraday bars: %w", err)
	}
	return nil
}

// GetCashBars retrieves all cash bars ordered by symbol and date
func (s *LocalStorage) GetCashBars(ctx context.Context) ([]*interfaces.Bar, error) {
	var dbBars []*models.DBCashBar

	result := s.db.WithContext(ctx).Order("symbol ASC, date ASC").Find(&dbBars)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get cash bars: %w", result.Error)
	}

	// Convert DB bars to interface bars
	bars := make([]*interfaces.Bar, len(dbBars))
	for i, dbBar := range dbBars {
		bars[i] = &interfaces.Bar{
			Symbol:   dbBar.Symbol,
			Date:     dbBar.Date,
			Open:     dbBar.Open,
			High:     dbBar.High,
			Low:      dbBar.Low,
			Close:    dbBar.Close,
			Volume:   dbBar.Volume,
			DelivPct: dbBar.DelivPct,
		}
	}

	return bars, nil
}

// GetIndexBars retrieves all index bars ordered by symbol and date
func (s *LocalStorage) GetIndexBars(ctx context.Context) ([]*interfaces.Bar, error) {
	var dbBars []*models.DBIndexBar

	result := s.db.WithContext(ctx).Order("symbol ASC, date ASC").Find(&dbBars)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get index bars: %w", result.Error)
	}

	bars := make([]*interfaces.Bar, len(dbBars))
	for i, dbBar := range dbBars {
		bars[i] = &interfaces.Bar{
			Symbol: dbBar.Symbol,
			Date:   dbBar.Date,
			Open:   dbBar.Open,
			High:   dbBar.High,
			Low:    dbBar.Low,
			Close:  dbBar.Close,
			Volume: dbBar.Volume,
		}
	}

	return bars, nil
}

// GetStockDerivSnapshots retrieves all stock derivatives snapshots, IV scaled to percent
func (s *LocalStorage) GetStockDerivSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return s.getDerivSnapshots(ctx, kindStock)
}

// GetIndexDerivSnapshots retrieves all index derivatives snapshots, IV scaled to percent
func (s *LocalStorage) GetIndexDerivSnapshots(ctx context.Context) ([]*interfaces.DerivSnapshot, error) {
	return s.getDerivSnapshots(ctx, kindIndex)
}

func (s *LocalStorage) getDerivSnapshots(ctx context.Context, kind string) ([]*interfaces.DerivSnapshot, error) {
	var rows []*models.DBDerivSnapshot

	result := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("symbol ASC, date ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get %s derivatives snapshots: %w", kind, result.Error)
	}

	// Scale IV back to percent
	snaps := make([]*interfaces.DerivSnapshot, len(rows))
	for i, row := range rows {
		snaps[i] = &interfaces.DerivSnapshot{
			Symbol:                    row.Symbol,
			Date:                      row.Date,
			FrontExpiry:               row.FrontExpiry,
			FrontWeeklyExpiry:         row.FrontWeeklyExpiry,
			FrontMonthlyExpiry:        row.FrontMonthlyExpiry,
			CombinedOI:                row.CombinedOI,
			FrontFutClose:             row.FrontFutClose,
			BackFutClose:              row.BackFutClose,
			FarFutClose:               row.FarFutClose,
			FrontStraddlePrice:        row.FrontStraddlePrice,
			FrontStraddleIV:           scaleIV(row.FrontStraddleIV),
			FrontWeeklyStraddlePrice:  row.FrontWeeklyStraddlePrice,
			FrontWeeklyStraddleIV:     scaleIV(row.FrontWeeklyStraddleIV),
			FrontMonthlyStraddlePrice: row.FrontMonthlyStraddlePrice,
			FrontMonthlyStraddleIV:    scaleIV(row.FrontMonthlyStraddleIV),
		}
	}

	return snaps, nil
}

// GetIntradayBars retrieves minute bars for symbols (all when empty) over the trailing days
func (s *LocalStorage) GetIntradayBars(ctx context.Context, symbols []string, days int) ([]*interfaces.IntradayBar, error) {
	if days <= 0 {
		days = 1
	}
	since := time.Now().AddDate(0, 0, -days)

	// Build query with optional symbol filter
	query := s.db.WithContext(ctx).Where("datetime >= ?", since)
	if len(symbols) > 0 {
		query = query.Where("symbol IN ?", symbols)
	}

	var rows []*models.DBIntradayBar
	if err := query.Order("datetime ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get intraday bars: %w", err)
	}

	bars := make([]*interfaces.IntradayBar, len(rows))
	for i, row := range rows {
		bars[i] = &interfaces.IntradayBar{
			Symbol:   row.Symbol,
			Datetime: row.Datetime,
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			Volume:   row.Volume,
		}
	}
	return bars, nil
}

// CleanupIntraday removes minute bars of previous sessions
func (s *LocalStorage) CleanupIntraday(ctx context.Context, before time.Time) error {
	s.logger.WithField("before", before).Info("Cleaning up intraday bars")

	if err := s.db.WithContext(ctx).Where("datetime < ?", before).Delete(&models.DBIntradayBar{}).Error; err != nil {
		return fmt.Errorf("failed to delete old intraday bars: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func scaleIV(v *float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * 100
	return &scaled
}

func unscaleIV(v *float64) *float64 {
	if v == nil {
		return nil
	}
	raw := *v / 100
	return &raw
}
