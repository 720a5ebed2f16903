package gormstore

import (
	"time"

	"gorm.io/datatypes"

	"sniper/internal/types"
)

// Timestamps are stored as unix milliseconds; zero means unset.

type targetModel struct {
	ID             string  `gorm:"primaryKey;size:64"`
	UserID         string  `gorm:"size:64;index"`
	Symbol         string  `gorm:"size:32;index"`
	PositionSize   float64 `gorm:"column:position_size"`
	Confidence     float64
	Pattern        string `gorm:"size:32"`
	Status         string `gorm:"size:16;index"`
	ExecuteAt      int64
	RetryCount     int
	StopLossPct    float64
	TakeProfitPct  float64
	MaxHoldMinutes int
	ExecutedPrice  float64
	ExecutedQty    float64
	ErrorMessage   string `gorm:"size:512"`
	CreatedAt      int64  `gorm:"autoCreateTime:false"`
	UpdatedAt      int64  `gorm:"autoUpdateTime:false"`
}

func (targetModel) TableName() string { return "targets" }

type positionModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	TargetID        string `gorm:"size:64;index"`
	UserID          string `gorm:"size:64;index"`
	Symbol          string `gorm:"size:32;index"`
	EntryPrice      float64
	Quantity        float64
	StopLossPrice   float64
	TakeProfitPrice float64
	MaxHoldUntil    int64
	Status          string `gorm:"size:16;index"`
	ExitPrice       float64
	ExitReason      string `gorm:"size:32"`
	RealizedPnL     float64 `gorm:"column:realized_pnl"`
	RealizedPnLPct  float64 `gorm:"column:realized_pnl_pct"`
	ClosedAt        int64
	ClaimedAt       int64
	OpenedAt        int64
	UpdatedAt       int64 `gorm:"autoUpdateTime:false"`
}

func (positionModel) TableName() string { return "positions" }

type executionModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	TargetID       string `gorm:"size:64;index"`
	PositionID     string `gorm:"size:64;index"`
	UserID         string `gorm:"size:64"`
	Symbol         string `gorm:"size:32;index"`
	Side           string `gorm:"size:8"`
	RequestedQty   float64
	RequestedPrice float64
	ExecutedQty    float64
	ExecutedPrice  float64
	TotalCost      float64
	OrderID        string `gorm:"size:64"`
	ExchangeStatus string `gorm:"size:32;index"`
	ChildOrders    int
	LatencyMs      int64
	Outcome        string `gorm:"size:16;index"`
	ErrorMessage   string `gorm:"size:512"`
	CreatedAt      int64  `gorm:"autoCreateTime:false"`
}

func (executionModel) TableName() string { return "executions" }

type eventModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	TargetID string `gorm:"size:64;index"`
	Symbol   string `gorm:"size:32"`
	Kind     string `gorm:"size:32;index"`
	Details  datatypes.JSON
	At       int64
}

func (eventModel) TableName() string { return "engine_events" }

type preferenceModel struct {
	UserID           string `gorm:"primaryKey;size:64"`
	DefaultBuyAmount float64
	StopLossPct      float64
	TakeProfitPct    float64
	TakeProfitTier   string `gorm:"size:32"`
	MaxHoldMinutes   int
	UpdatedAt        int64 `gorm:"autoUpdateTime:false"`
}

func (preferenceModel) TableName() string { return "risk_preferences" }

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func fromMsPtr(v int64) *time.Time {
	if v <= 0 {
		return nil
	}
	t := time.UnixMilli(v)
	return &t
}

func newTargetModel(t *types.Target) targetModel {
	return targetModel{
		ID:             t.ID,
		UserID:         t.UserID,
		Symbol:         t.Symbol,
		PositionSize:   t.PositionSize,
		Confidence:     t.Confidence,
		Pattern:        t.Pattern,
		Status:         string(t.Status),
		ExecuteAt:      ms(t.ExecuteAt),
		RetryCount:     t.RetryCount,
		StopLossPct:    t.StopLossPct,
		TakeProfitPct:  t.TakeProfitPct,
		MaxHoldMinutes: t.MaxHoldMinutes,
		ExecutedPrice:  t.ExecutedPrice,
		ExecutedQty:    t.ExecutedQty,
		ErrorMessage:   t.ErrorMessage,
		CreatedAt:      ms(t.CreatedAt),
		UpdatedAt:      ms(t.UpdatedAt),
	}
}

func (m targetModel) toTarget() types.Target {
	return types.Target{
		ID:             m.ID,
		UserID:         m.UserID,
		Symbol:         m.Symbol,
		PositionSize:   m.PositionSize,
		Confidence:     m.Confidence,
		Pattern:        m.Pattern,
		Status:         types.TargetStatus(m.Status),
		ExecuteAt:      fromMs(m.ExecuteAt),
		RetryCount:     m.RetryCount,
		StopLossPct:    m.StopLossPct,
		TakeProfitPct:  m.TakeProfitPct,
		MaxHoldMinutes: m.MaxHoldMinutes,
		ExecutedPrice:  m.ExecutedPrice,
		ExecutedQty:    m.ExecutedQty,
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      fromMs(m.CreatedAt),
		UpdatedAt:      fromMs(m.UpdatedAt),
	}
}

func newPositionModel(p *types.Position) positionModel {
	m := positionModel{
		ID:              p.ID,
		TargetID:        p.TargetID,
		UserID:          p.UserID,
		Symbol:          p.Symbol,
		EntryPrice:      p.EntryPrice,
		Quantity:        p.Quantity,
		StopLossPrice:   p.StopLossPrice,
		TakeProfitPrice: p.TakeProfitPrice,
		MaxHoldUntil:    ms(p.MaxHoldUntil),
		Status:          string(p.Status),
		ExitPrice:       p.ExitPrice,
		ExitReason:      p.ExitReason,
		RealizedPnL:     p.RealizedPnL,
		RealizedPnLPct:  p.RealizedPnLPct,
		OpenedAt:        ms(p.OpenedAt),
		UpdatedAt:       ms(p.UpdatedAt),
	}
	if p.ClosedAt != nil {
		m.ClosedAt = ms(*p.ClosedAt)
	}
	if p.ClaimedAt != nil {
		m.ClaimedAt = ms(*p.ClaimedAt)
	}
	return m
}

func (m positionModel) toPosition() types.Position {
	return types.Position{
		ID:              m.ID,
		TargetID:        m.TargetID,
		UserID:          m.UserID,
		Symbol:          m.Symbol,
		EntryPrice:      m.EntryPrice,
		Quantity:        m.Quantity,
		StopLossPrice:   m.StopLossPrice,
		TakeProfitPrice: m.TakeProfitPrice,
		MaxHoldUntil:    fromMs(m.MaxHoldUntil),
		Status:          types.PositionStatus(m.Status),
		ExitPrice:       m.ExitPrice,
		ExitReason:      m.ExitReason,
		RealizedPnL:     m.RealizedPnL,
		RealizedPnLPct:  m.RealizedPnLPct,
		ClosedAt:        fromMsPtr(m.ClosedAt),
		ClaimedAt:       fromMsPtr(m.ClaimedAt),
		OpenedAt:        fromMs(m.OpenedAt),
		UpdatedAt:       fromMs(m.UpdatedAt),
	}
}

func newExecutionModel(r *types.ExecutionRecord) executionModel {
	return executionModel{
		ID:             r.ID,
		TargetID:       r.TargetID,
		PositionID:     r.PositionID,
		UserID:         r.UserID,
		Symbol:         r.Symbol,
		Side:           string(r.Side),
		RequestedQty:   r.RequestedQty,
		RequestedPrice: r.RequestedPrice,
		ExecutedQty:    r.ExecutedQty,
		ExecutedPrice:  r.ExecutedPrice,
		TotalCost:      r.TotalCost,
		OrderID:        r.OrderID,
		ExchangeStatus: r.ExchangeStatus,
		ChildOrders:    r.ChildOrders,
		LatencyMs:      r.LatencyMs,
		Outcome:        string(r.Outcome),
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      ms(r.CreatedAt),
	}
}

func (m executionModel) toRecord() types.ExecutionRecord {
	return types.ExecutionRecord{
		ID:             m.ID,
		TargetID:       m.TargetID,
		PositionID:     m.PositionID,
		UserID:         m.UserID,
		Symbol:         m.Symbol,
		Side:           types.Side(m.Side),
		RequestedQty:   m.RequestedQty,
		RequestedPrice: m.RequestedPrice,
		ExecutedQty:    m.ExecutedQty,
		ExecutedPrice:  m.ExecutedPrice,
		TotalCost:      m.TotalCost,
		OrderID:        m.OrderID,
		ExchangeStatus: m.ExchangeStatus,
		ChildOrders:    m.ChildOrders,
		LatencyMs:      m.LatencyMs,
		Outcome:        types.Outcome(m.Outcome),
		ErrorMessage:   m.ErrorMessage,
		CreatedAt:      fromMs(m.CreatedAt),
	}
}
