package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Signal statuses
const (
	StatusActive    = "ACTIVE"
	StatusWon       = "WON"
	StatusLost      = "LOST"
	StatusCancelled = "CANCELLED"
)

// Watchlist statuses
const (
	WatchStatusWatching = "WATCHING"
	WatchStatusPromoted = "PROMOTED"
	WatchStatusExpired  = "EXPIRED"
)

type Database struct {
	db *gorm.DB
}

// Models

// Signal is a trade signal through its whole lifecycle: created ACTIVE on a
// trigger, closed WON/LOST/CANCELLED. EffectiveSL tracks breakeven/trailing
// moves so a restart can restore stop state.
type Signal struct {
	ID              uint    `gorm:"primaryKey;autoIncrement"`
	Symbol          string  `gorm:"index"`
	Direction       string  // LONG or SHORT
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	EffectiveSL     float64
	Status          string `gorm:"index"`
	EntryMode       string // always MARKET in v4
	Confidence      int
	ConfluenceScore int
	Components      string // comma-joined trigger component tags
	HTFBias         string
	RRRatio         float64
	Timeframe       string
	TriggerType     string
	Quality         string
	EntryTime       time.Time
	CloseTime       *time.Time
	ClosePrice      float64
	PnlPct          float64
	CloseReason     string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// WatchlistEntry is a formed-but-untriggered setup under observation.
// StoredContext holds the serialized narrative + POI used for re-checks.
type WatchlistEntry struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	Symbol          string `gorm:"index"`
	Direction       string
	PotentialEntry  float64
	PotentialSL     float64
	PotentialTP     float64
	WatchReason     string
	CandlesWatched  int
	MaxWatchCandles int
	Last5mCandleTS  int64  `gorm:"column:last_5m_candle_ts"`
	Status          string `gorm:"index"`
	ExpireReason    string
	StoredContext   string // JSON, versioned
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BotParam is one tunable strategy parameter.
type BotParam struct {
	Name         string `gorm:"primaryKey"`
	Value        float64
	DefaultValue float64
	UpdatedAt    time.Time
}

// OptimizationLog is an append-only record of every parameter change.
// WRAfter stays zero until the next completed cycle measures the win rate
// the change produced.
type OptimizationLog struct {
	ID             uint  `gorm:"primaryKey;autoIncrement"`
	RunID          int64 `gorm:"index"`
	ParamName      string
	OldValue       float64
	NewValue       float64
	Reason         string
	WRBefore       float64
	WRAfter        float64
	TradesAnalyzed int
	CreatedAt      time.Time
}

// OptimizerState is a single-row stash of the previous optimiser run, the
// rollback target. ID is always 1.
type OptimizerState struct {
	ID             uint `gorm:"primaryKey"`
	LastRunWR      float64
	LastRunTrades  int
	LastRunChanges string // JSON: [{param, old, new}]
	UpdatedAt      time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Signal{}, &WatchlistEntry{}, &BotParam{}, &OptimizationLog{}, &OptimizerState{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// ============ SIGNAL OPERATIONS ============

// AddSignal persists a new signal. EffectiveSL starts at the structural SL.
func (d *Database) AddSignal(sig *Signal) error {
	if sig.EffectiveSL == 0 {
		sig.EffectiveSL = sig.StopLoss
	}
	return d.db.Create(sig).Error
}

// UpdateSignalStatus moves a signal to a terminal state. Terminal states are
// never overwritten.
func (d *Database) UpdateSignalStatus(id uint, status string, closePrice, pnlPct float64, closeReason string) error {
	now := time.Now()
	res := d.db.Model(&Signal{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]interface{}{
			"status":       status,
			"close_price":  closePrice,
			"pnl_pct":      pnlPct,
			"close_reason": closeReason,
			"close_time":   &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("signal %d is not ACTIVE", id)
	}
	return nil
}

// UpdateSignalSL persists a breakeven/trailing stop move.
func (d *Database) UpdateSignalSL(id uint, newSL float64) error {
	return d.db.Model(&Signal{}).Where("id = ?", id).Update("effective_sl", newSL).Error
}

func (d *Database) GetActiveSignals() ([]Signal, error) {
	var signals []Signal
	err := d.db.Where("status = ?", StatusActive).Order("entry_time ASC").Find(&signals).Error
	return signals, err
}

func (d *Database) GetActiveTradeCount() (int64, error) {
	var count int64
	err := d.db.Model(&Signal{}).Where("status = ?", StatusActive).Count(&count).Error
	return count, err
}

// GetActiveSignalForSymbol returns the open signal for a symbol, nil if none.
func (d *Database) GetActiveSignalForSymbol(symbol string) (*Signal, error) {
	var sig Signal
	err := d.db.Where("symbol = ? AND status = ?", symbol, StatusActive).First(&sig).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (d *Database) GetSignalHistory(limit int) ([]Signal, error) {
	var signals []Signal
	err := d.db.Order("entry_time DESC").Limit(limit).Find(&signals).Error
	return signals, err
}

// GetCompletedSignals returns the most recent terminal signals, newest first.
func (d *Database) GetCompletedSignals(limit int) ([]Signal, error) {
	var signals []Signal
	err := d.db.
		Where("status IN ?", []string{StatusWon, StatusLost, StatusCancelled}).
		Order("close_time DESC").Limit(limit).Find(&signals).Error
	return signals, err
}

func (d *Database) GetCompletedSignalCount() (int64, error) {
	var count int64
	err := d.db.Model(&Signal{}).
		Where("status IN ?", []string{StatusWon, StatusLost, StatusCancelled}).
		Count(&count).Error
	return count, err
}

// GetLastTerminalSignal returns the most recently closed signal for a symbol,
// nil if the symbol has never traded. Used by the entry cooldown gate.
func (d *Database) GetLastTerminalSignal(symbol string) (*Signal, error) {
	var sig Signal
	err := d.db.
		Where("symbol = ? AND status IN ?", symbol, []string{StatusWon, StatusLost, StatusCancelled}).
		Order("close_time DESC").First(&sig).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

// ============ WATCHLIST OPERATIONS ============

func (d *Database) AddToWatchlist(entry *WatchlistEntry) error {
	entry.Status = WatchStatusWatching
	return d.db.Create(entry).Error
}

func (d *Database) GetWatchingItems() ([]WatchlistEntry, error) {
	var items []WatchlistEntry
	err := d.db.Where("status = ?", WatchStatusWatching).Order("created_at ASC").Find(&items).Error
	return items, err
}

// HasWatching reports whether a (symbol, direction) pair is already under
// observation.
func (d *Database) HasWatching(symbol, direction string) (bool, error) {
	var count int64
	err := d.db.Model(&WatchlistEntry{}).
		Where("symbol = ? AND direction = ? AND status = ?", symbol, direction, WatchStatusWatching).
		Count(&count).Error
	return count > 0, err
}

func (d *Database) UpdateWatchlistItem(id uint, candlesWatched int, last5mTS int64) error {
	return d.db.Model(&WatchlistEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"candles_watched":   candlesWatched,
		"last_5m_candle_ts": last5mTS,
	}).Error
}

func (d *Database) PromoteWatchlistItem(id uint) error {
	return d.db.Model(&WatchlistEntry{}).Where("id = ?", id).Update("status", WatchStatusPromoted).Error
}

func (d *Database) ExpireWatchlistItem(id uint, reason string) error {
	return d.db.Model(&WatchlistEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        WatchStatusExpired,
		"expire_reason": reason,
	}).Error
}

// ============ PARAMETER OPERATIONS ============

// GetBotParam returns the stored value for name, or the default when the
// parameter has never been written.
func (d *Database) GetBotParam(name string, defaultValue float64) (float64, error) {
	var p BotParam
	err := d.db.First(&p, "name = ?", name).Error
	if err == gorm.ErrRecordNotFound {
		return defaultValue, nil
	}
	if err != nil {
		return defaultValue, err
	}
	return p.Value, nil
}

func (d *Database) GetAllBotParams() (map[string]float64, error) {
	var params []BotParam
	if err := d.db.Find(&params).Error; err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(params))
	for _, p := range params {
		out[p.Name] = p.Value
	}
	return out, nil
}

func (d *Database) SaveBotParam(name string, value, defaultValue float64) error {
	p := BotParam{Name: name, Value: value, DefaultValue: defaultValue, UpdatedAt: time.Now()}
	return d.db.Save(&p).Error
}

// ============ OPTIMISATION OPERATIONS ============

func (d *Database) AddOptimizationLog(entry *OptimizationLog) error {
	return d.db.Create(entry).Error
}

func (d *Database) GetOptimizationLogs(limit int) ([]OptimizationLog, error) {
	var logs []OptimizationLog
	err := d.db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// BackfillOptimizationWR writes the currently measured win rate into log
// entries from earlier runs that have not seen a follow-up measurement yet.
func (d *Database) BackfillOptimizationWR(wrAfter float64) error {
	return d.db.Model(&OptimizationLog{}).Where("wr_after = 0").Update("wr_after", wrAfter).Error
}

// SaveOptimizerState overwrites the single rollback-target row.
func (d *Database) SaveOptimizerState(state *OptimizerState) error {
	state.ID = 1
	state.UpdatedAt = time.Now()
	return d.db.Save(state).Error
}

// GetOptimizerState returns the previous run's stash, nil when no run has
// committed changes yet.
func (d *Database) GetOptimizerState() (*OptimizerState, error) {
	var state OptimizerState
	err := d.db.First(&state, "id = ?", 1).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ClearOptimizerState removes the rollback target after a rollback fires.
func (d *Database) ClearOptimizerState() error {
	return d.db.Delete(&OptimizerState{}, "id = ?", 1).Error
}
