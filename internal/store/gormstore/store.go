// Package gormstore implements the store interfaces on SQLite via GORM.
// Claims are conditional UPDATEs guarded on the current status; a zero
// RowsAffected result means another worker won the claim.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"sniper/internal/store"
	"sniper/internal/types"
)

// Store owns the database handle and hands out per-entity repositories.
type Store struct {
	db *gorm.DB
}

// Open initializes the SQLite store at path, creating directories and
// running migrations. The modernc driver keeps the binary cgo-free.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gormstore: path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&targetModel{},
		&positionModel{},
		&executionModel{},
		&eventModel{},
		&preferenceModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep the pool small to avoid writer lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// OpenInMemory returns a throwaway store for tests.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Targets() store.TargetStore        { return &targetRepo{db: s.db} }
func (s *Store) Positions() store.PositionStore    { return &positionRepo{db: s.db} }
func (s *Store) Executions() store.ExecutionStore  { return &executionRepo{db: s.db} }
func (s *Store) Events() store.EventStore          { return &eventRepo{db: s.db} }
func (s *Store) Preferences() store.PreferenceStore { return &prefRepo{db: s.db} }

// Stores returns the repository bundle consumed by the engine constructors.
func (s *Store) Stores() *store.Stores {
	return &store.Stores{
		Targets:     s.Targets(),
		Positions:   s.Positions(),
		Executions:  s.Executions(),
		Events:      s.Events(),
		Preferences: s.Preferences(),
	}
}

// --------------------------- targets ---------------------------

type targetRepo struct{ db *gorm.DB }

var _ store.TargetStore = (*targetRepo)(nil)

func (r *targetRepo) Insert(ctx context.Context, t *types.Target) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("gormstore: target id is required")
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m := newTargetModel(t)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *targetRepo) Get(ctx context.Context, id string) (*types.Target, error) {
	var m targetModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := m.toTarget()
	return &t, nil
}

func (r *targetRepo) ListDue(ctx context.Context, owner string, retryCap int, now time.Time) ([]types.Target, error) {
	var models []targetModel
	err := r.db.WithContext(ctx).
		Where("retry_count < ?", retryCap).
		Where("user_id = ? OR user_id = ''", owner).
		Where(
			r.db.Where("status = ?", types.TargetStatusReady).
				Or("status = ? AND execute_at > 0 AND execute_at <= ?", types.TargetStatusActive, now.UnixMilli()),
		).
		Order("execute_at ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Target, 0, len(models))
	for _, m := range models {
		out = append(out, m.toTarget())
	}
	return out, nil
}

func (r *targetRepo) Claim(ctx context.Context, id string, from, to types.TargetStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&targetModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *targetRepo) SetStatus(ctx context.Context, id string, status types.TargetStatus, errMsg string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UnixMilli(),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	res := r.db.WithContext(ctx).Model(&targetModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *targetRepo) Complete(ctx context.Context, id string, execPrice, execQty float64) error {
	res := r.db.WithContext(ctx).Model(&targetModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         string(types.TargetStatusCompleted),
			"executed_price": execPrice,
			"executed_qty":   execQty,
			"error_message":  "",
			"updated_at":     time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *targetRepo) IncrementRetry(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&targetModel{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now().UnixMilli(),
		}).Error
}

func (r *targetRepo) ListRecent(ctx context.Context, limit int) ([]types.Target, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []targetModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Target, 0, len(models))
	for _, m := range models {
		out = append(out, m.toTarget())
	}
	return out, nil
}

// --------------------------- positions ---------------------------

type positionRepo struct{ db *gorm.DB }

var _ store.PositionStore = (*positionRepo)(nil)

func (r *positionRepo) Insert(ctx context.Context, p *types.Position) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("gormstore: position id is required")
	}
	now := time.Now()
	if p.OpenedAt.IsZero() {
		p.OpenedAt = now
	}
	p.UpdatedAt = now
	m := newPositionModel(p)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *positionRepo) Get(ctx context.Context, id string) (*types.Position, error) {
	var m positionModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := m.toPosition()
	return &p, nil
}

func (r *positionRepo) ListOpen(ctx context.Context) ([]types.Position, error) {
	var models []positionModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND quantity > 0", types.PositionStatusOpen).
		Order("opened_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(models))
	for _, m := range models {
		out = append(out, m.toPosition())
	}
	return out, nil
}

func (r *positionRepo) Claim(ctx context.Context, id string, from, to types.PositionStatus) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now().UnixMilli(),
	}
	if to == types.PositionStatusPartial {
		updates["claimed_at"] = time.Now().UnixMilli()
	}
	res := r.db.WithContext(ctx).Model(&positionModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *positionRepo) ApplyFill(ctx context.Context, id string, qty, entry, stopLoss, takeProfit float64) error {
	res := r.db.WithContext(ctx).Model(&positionModel{}).
		Where("id = ? AND status = ?", id, types.PositionStatusOpen).
		Updates(map[string]interface{}{
			"quantity":          qty,
			"entry_price":       entry,
			"stop_loss_price":   stopLoss,
			"take_profit_price": takeProfit,
			"updated_at":        time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *positionRepo) Close(ctx context.Context, id string, exitPrice float64, reason string, pnl, pnlPct float64) error {
	now := time.Now().UnixMilli()
	res := r.db.WithContext(ctx).Model(&positionModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           string(types.PositionStatusClosed),
			"exit_price":       exitPrice,
			"exit_reason":      reason,
			"realized_pnl":     pnl,
			"realized_pnl_pct": pnlPct,
			"closed_at":        now,
			"claimed_at":       0,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *positionRepo) Revert(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&positionModel{}).
		Where("id = ? AND status = ?", id, types.PositionStatusPartial).
		Updates(map[string]interface{}{
			"status":     string(types.PositionStatusOpen),
			"claimed_at": 0,
			"updated_at": time.Now().UnixMilli(),
		}).Error
}

func (r *positionRepo) RevertStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res := r.db.WithContext(ctx).Model(&positionModel{}).
		Where("status = ? AND claimed_at > 0 AND claimed_at < ?", types.PositionStatusPartial, cutoff).
		Updates(map[string]interface{}{
			"status":     string(types.PositionStatusOpen),
			"claimed_at": 0,
			"updated_at": time.Now().UnixMilli(),
		})
	return int(res.RowsAffected), res.Error
}

func (r *positionRepo) ListRecent(ctx context.Context, limit int) ([]types.Position, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []positionModel
	err := r.db.WithContext(ctx).Order("opened_at DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Position, 0, len(models))
	for _, m := range models {
		out = append(out, m.toPosition())
	}
	return out, nil
}

// --------------------------- executions ---------------------------

type executionRepo struct{ db *gorm.DB }

var _ store.ExecutionStore = (*executionRepo)(nil)

func (r *executionRepo) Insert(ctx context.Context, rec *types.ExecutionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("gormstore: execution id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := newExecutionModel(rec)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *executionRepo) FindSuccessfulBuy(ctx context.Context, targetID string) (*types.ExecutionRecord, error) {
	var m executionModel
	err := r.db.WithContext(ctx).
		Where("target_id = ? AND side = ? AND outcome = ?", targetID, types.SideBuy, types.OutcomeSuccess).
		Order("created_at ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := m.toRecord()
	return &rec, nil
}

func (r *executionRepo) ListUnreconciled(ctx context.Context, limit int) ([]types.ExecutionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []executionModel
	err := r.db.WithContext(ctx).
		Where("outcome = ? AND order_id != ''", types.OutcomeSuccess).
		Where("exchange_status IN ('', 'NEW', 'PENDING', 'PARTIALLY_FILLED') OR executed_qty <= 0").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.ExecutionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, nil
}

func (r *executionRepo) ApplyReconciliation(ctx context.Context, id, status string, qty, quote, price float64) error {
	updates := map[string]interface{}{"exchange_status": status}
	if qty > 0 {
		updates["executed_qty"] = qty
	}
	if quote > 0 {
		updates["total_cost"] = quote
	}
	if price > 0 {
		updates["executed_price"] = price
	}
	return r.db.WithContext(ctx).Model(&executionModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *executionRepo) ListByTarget(ctx context.Context, targetID string) ([]types.ExecutionRecord, error) {
	var models []executionModel
	err := r.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.ExecutionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, nil
}

func (r *executionRepo) ListRecent(ctx context.Context, limit int) ([]types.ExecutionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []executionModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.ExecutionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, nil
}

// --------------------------- events ---------------------------

type eventRepo struct{ db *gorm.DB }

var _ store.EventStore = (*eventRepo)(nil)

func (r *eventRepo) AppendEvent(ctx context.Context, ev *types.EngineEvent) error {
	if ev == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	detail, _ := json.Marshal(ev.Details)
	m := eventModel{
		TargetID: ev.TargetID,
		Symbol:   strings.ToUpper(strings.TrimSpace(ev.Symbol)),
		Kind:     ev.Kind,
		Details:  datatypes.JSON(detail),
		At:       ev.At.UnixMilli(),
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *eventRepo) ListEvents(ctx context.Context, targetID string, limit int) ([]types.EngineEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&eventModel{})
	if targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}
	var models []eventModel
	if err := q.Order("at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.EngineEvent, 0, len(models))
	for _, m := range models {
		ev := types.EngineEvent{
			ID:       m.ID,
			TargetID: m.TargetID,
			Symbol:   m.Symbol,
			Kind:     m.Kind,
			At:       fromMs(m.At),
		}
		if len(m.Details) > 0 {
			_ = json.Unmarshal(m.Details, &ev.Details)
		}
		out = append(out, ev)
	}
	return out, nil
}

// --------------------------- preferences ---------------------------

type prefRepo struct{ db *gorm.DB }

var _ store.PreferenceStore = (*prefRepo)(nil)

func (r *prefRepo) GetRiskPreferences(ctx context.Context, userID string) (*types.RiskPreferences, error) {
	var m preferenceModel
	err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.RiskPreferences{
		UserID:           m.UserID,
		DefaultBuyAmount: m.DefaultBuyAmount,
		StopLossPct:      m.StopLossPct,
		TakeProfitPct:    m.TakeProfitPct,
		TakeProfitTier:   m.TakeProfitTier,
		MaxHoldMinutes:   m.MaxHoldMinutes,
	}, nil
}

// SaveRiskPreferences upserts a user's preferences. The preferences API
// itself lives outside this service; this is for seeding and tests.
func (s *Store) SaveRiskPreferences(ctx context.Context, p *types.RiskPreferences) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("gormstore: user id is required")
	}
	m := preferenceModel{
		UserID:           p.UserID,
		DefaultBuyAmount: p.DefaultBuyAmount,
		StopLossPct:      p.StopLossPct,
		TakeProfitPct:    p.TakeProfitPct,
		TakeProfitTier:   p.TakeProfitTier,
		MaxHoldMinutes:   p.MaxHoldMinutes,
		UpdatedAt:        time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Save(&m).Error
}
