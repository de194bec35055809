package hedge

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{StateOpening, StateValidating, true},
		{StateOpening, StateOpenFailed, true},
		{StateOpening, StateClosed, false},
		{StateValidating, StateOpen, true},
		{StateValidating, StateValidationFailed, true},
		{StateValidating, StateManualIntervention, true},
		{StateOpen, StateMonitoring, true},
		{StateMonitoring, StateClosing, true},
		{StateMonitoring, StateManualIntervention, true},
		{StateMonitoring, StateClosed, false},
		{StateClosing, StateClosed, true},
		{StateClosing, StateMonitoring, true}, // повтор после провала закрытия
		{StateClosing, StateClosing, false},   // повторный Close отвергается
		{StateManualIntervention, StateClosing, true},
		{StateManualIntervention, StateMonitoring, false},
		{StateClosed, StateMonitoring, false},
		{"UNKNOWN", StateClosed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []string{StateClosed, StateOpenFailed, StateValidationFailed}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}

	// MANUAL_INTERVENTION не терминально: оператор может разрешить вручную
	active := []string{StateOpening, StateValidating, StateOpen, StateMonitoring, StateClosing, StateManualIntervention}
	for _, s := range active {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestStateInfo(t *testing.T) {
	known := []string{
		StateOpening, StateValidating, StateOpen, StateMonitoring,
		StateClosing, StateClosed, StateOpenFailed, StateValidationFailed,
		StateManualIntervention,
	}

	unknown := StateInfo("BOGUS")
	for _, s := range known {
		info := StateInfo(s)
		if info == "" || info == unknown {
			t.Errorf("StateInfo(%s) = %q, want a distinct description", s, info)
		}
	}
}
