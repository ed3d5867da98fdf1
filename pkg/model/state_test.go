package model

import (
	"testing"
	"time"
)

func TestVerdictAnd(t *testing.T) {
	tests := []struct {
		a, b, want Verdict
	}{
		{VerdictTrue, VerdictTrue, VerdictTrue},
		{VerdictTrue, VerdictFalse, VerdictFalse},
		{VerdictTrue, VerdictUnknown, VerdictUnknown},
		{VerdictFalse, VerdictUnknown, VerdictFalse},
		{VerdictUnknown, VerdictUnknown, VerdictUnknown},
		{VerdictFalse, VerdictFalse, VerdictFalse},
	}
	for _, tt := range tests {
		if got := tt.a.And(tt.b); got != tt.want {
			t.Errorf("%s AND %s = %s, want %s", tt.a, tt.b, got, tt.want)
		}
		// 交换律
		if got := tt.b.And(tt.a); got != tt.want {
			t.Errorf("%s AND %s = %s, want %s", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestVerdictOr(t *testing.T) {
	tests := []struct {
		a, b, want Verdict
	}{
		{VerdictTrue, VerdictTrue, VerdictTrue},
		{VerdictTrue, VerdictFalse, VerdictTrue},
		{VerdictTrue, VerdictUnknown, VerdictTrue},
		{VerdictFalse, VerdictUnknown, VerdictUnknown},
		{VerdictUnknown, VerdictUnknown, VerdictUnknown},
		{VerdictFalse, VerdictFalse, VerdictFalse},
	}
	for _, tt := range tests {
		if got := tt.a.Or(tt.b); got != tt.want {
			t.Errorf("%s OR %s = %s, want %s", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Or(tt.a); got != tt.want {
			t.Errorf("%s OR %s = %s, want %s", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestVerdictNot(t *testing.T) {
	tests := []struct {
		in, want Verdict
	}{
		{VerdictTrue, VerdictFalse},
		{VerdictFalse, VerdictTrue},
		{VerdictUnknown, VerdictUnknown},
	}
	for _, tt := range tests {
		if got := tt.in.Not(); got != tt.want {
			t.Errorf("NOT %s = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEvaluationStateCloneIsolated(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	st := NewEvaluationState("a1")

	v := 50000.0
	st.Leaf("r.0").LastValue = &v
	st.Leaf("r.0").LastSeenAt = &now
	st.Sequence("r").NextStep = 1
	st.Sequence("r").StepAt = &now

	clone := st.Clone()
	if clone.AlertID != "a1" {
		t.Fatalf("clone.AlertID = %q, want a1", clone.AlertID)
	}
	if got := *clone.Leaf("r.0").LastValue; got != 50000 {
		t.Fatalf("clone last_value = %v, want 50000", got)
	}

	// 修改副本不影响原状态
	*clone.Leaf("r.0").LastValue = 1
	clone.Sequence("r").NextStep = 5
	clone.Leaf("r.9").LastValue = &v

	if got := *st.Leaf("r.0").LastValue; got != 50000 {
		t.Errorf("original last_value = %v after clone mutation, want 50000", got)
	}
	if got := st.Sequence("r").NextStep; got != 1 {
		t.Errorf("original next_step = %d after clone mutation, want 1", got)
	}
	if _, ok := st.Leaves["r.9"]; ok {
		t.Error("original gained leaf r.9 from clone mutation")
	}
}

func TestCloneNil(t *testing.T) {
	var st *EvaluationState
	if st.Clone() != nil {
		t.Error("Clone() of nil state should be nil")
	}
}
