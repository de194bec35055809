package models

import (
	"math"
	"testing"
)

func TestPnLSnapshot_Recalculate(t *testing.T) {
	s := PnLSnapshot{
		OpenFees:            0.4,
		CloseFees:           0.3,
		FirstFundingNet:     1.5,
		SecondFundingNet:    -0.5,
		FirstUnrealizedPnl:  2.0,
		SecondUnrealizedPnl: -0.8,
	}
	s.Recalculate()

	if math.Abs(s.TotalFundingNet-1.0) > 1e-9 {
		t.Errorf("total funding = %v, want 1.0", s.TotalFundingNet)
	}
	if math.Abs(s.GrossPnl-1.2) > 1e-9 {
		t.Errorf("gross pnl = %v, want 1.2", s.GrossPnl)
	}
	// net = 1.2 - 0.4 - 0.3 + 1.0
	if math.Abs(s.NetPnl-1.5) > 1e-9 {
		t.Errorf("net pnl = %v, want 1.5", s.NetPnl)
	}
}

func TestPnLSnapshot_RecalculateIsIdempotent(t *testing.T) {
	s := PnLSnapshot{FirstUnrealizedPnl: 3, OpenFees: 1}
	s.Recalculate()
	first := s.NetPnl
	s.Recalculate()

	if s.NetPnl != first {
		t.Errorf("net pnl changed on repeated recalculation: %v -> %v", first, s.NetPnl)
	}
}

func TestPnLSnapshot_NetPnlPercent(t *testing.T) {
	s := PnLSnapshot{NetPnl: 2.5}

	if got := s.NetPnlPercent(50); math.Abs(got-5) > 1e-9 {
		t.Errorf("percent = %v, want 5", got)
	}
	if got := s.NetPnlPercent(0); got != 0 {
		t.Errorf("percent with zero margin = %v, want 0", got)
	}
	if got := s.NetPnlPercent(-10); got != 0 {
		t.Errorf("percent with negative margin = %v, want 0", got)
	}
}

func TestPnLSnapshot_Clone(t *testing.T) {
	s := &PnLSnapshot{PositionID: "P-0001", NetPnl: 1.5}

	c := s.Clone()
	c.NetPnl = 99

	if s.NetPnl != 1.5 {
		t.Error("clone must not share state with the original")
	}
	if c.PositionID != "P-0001" {
		t.Errorf("clone position id = %s, want P-0001", c.PositionID)
	}
}
