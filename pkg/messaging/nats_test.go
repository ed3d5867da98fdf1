package messaging

import "testing"

func TestSubjectTick(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BTC/USDT", "ticks.BTC_USDT"},
		{"ETH/USDT", "ticks.ETH_USDT"},
		{"BRK.B", "ticks.BRK_B"},
		{"bad subject*>", "ticks.bad_subject__"},
	}
	for _, tt := range tests {
		if got := SubjectTick(tt.symbol); got != tt.want {
			t.Errorf("SubjectTick(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestSubjectTrigger(t *testing.T) {
	if got := SubjectTrigger("7f9c0a1e"); got != "triggers.7f9c0a1e" {
		t.Errorf("SubjectTrigger() = %q, want triggers.7f9c0a1e", got)
	}
}
