// pkg/model/state.go
package model

import (
	"time"
)

// Verdict 三值判定结果。unknown 表示读数缺失导致无法判定，
// 与 false（条件不成立）严格区分。
type Verdict string

const (
	VerdictTrue    Verdict = "true"
	VerdictFalse   Verdict = "false"
	VerdictUnknown Verdict = "unknown"
)

// VerdictOf 把布尔判定包装成 Verdict
func VerdictOf(ok bool) Verdict {
	if ok {
		return VerdictTrue
	}
	return VerdictFalse
}

// And 三值与：有 false 即 false，否则有 unknown 即 unknown
func (v Verdict) And(other Verdict) Verdict {
	if v == VerdictFalse || other == VerdictFalse {
		return VerdictFalse
	}
	if v == VerdictUnknown || other == VerdictUnknown {
		return VerdictUnknown
	}
	return VerdictTrue
}

// Or 三值或：有 true 即 true，否则有 unknown 即 unknown
func (v Verdict) Or(other Verdict) Verdict {
	if v == VerdictTrue || other == VerdictTrue {
		return VerdictTrue
	}
	if v == VerdictUnknown || other == VerdictUnknown {
		return VerdictUnknown
	}
	return VerdictFalse
}

// Not 三值非：unknown 取非仍是 unknown
func (v Verdict) Not() Verdict {
	switch v {
	case VerdictTrue:
		return VerdictFalse
	case VerdictFalse:
		return VerdictTrue
	default:
		return VerdictUnknown
	}
}

// LeafState 叶子条件的历史读数状态，穿越类与新高新低类运算符依赖它
type LeafState struct {
	LastValue  *float64   `json:"last_value,omitempty"`
	LastTarget *float64   `json:"last_target,omitempty"` // 比较对象为指标引用时的上一读数
	MaxSeen    *float64   `json:"max_seen,omitempty"`
	MinSeen    *float64   `json:"min_seen,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// SequenceState THEN/SEQUENCE 节点的推进状态
type SequenceState struct {
	NextStep int        `json:"next_step"`           // 下一个待满足的子节点下标
	StepAt   *time.Time `json:"step_at,omitempty"`   // 最近一步满足的时间
	FirstAt  *time.Time `json:"first_at,omitempty"`  // 第一步满足的时间
}

// EvaluationState 单个预警的全部评估状态，按节点定位键索引。
// 与预警记录分开存取，删除或暂停预警时整体丢弃。
type EvaluationState struct {
	AlertID   string                    `json:"alert_id"`
	Leaves    map[string]*LeafState     `json:"leaves,omitempty"`
	Sequences map[string]*SequenceState `json:"sequences,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// NewEvaluationState 创建空评估状态
func NewEvaluationState(alertID string) *EvaluationState {
	return &EvaluationState{
		AlertID:   alertID,
		Leaves:    make(map[string]*LeafState),
		Sequences: make(map[string]*SequenceState),
	}
}

// Leaf 取指定定位键的叶子状态，不存在则创建
func (s *EvaluationState) Leaf(path string) *LeafState {
	if s.Leaves == nil {
		s.Leaves = make(map[string]*LeafState)
	}
	ls, ok := s.Leaves[path]
	if !ok {
		ls = &LeafState{}
		s.Leaves[path] = ls
	}
	return ls
}

// Sequence 取指定定位键的串联状态，不存在则创建
func (s *EvaluationState) Sequence(path string) *SequenceState {
	if s.Sequences == nil {
		s.Sequences = make(map[string]*SequenceState)
	}
	ss, ok := s.Sequences[path]
	if !ok {
		ss = &SequenceState{}
		s.Sequences[path] = ss
	}
	return ss
}

// Clone 深拷贝，试算评估用它避免污染在线状态
func (s *EvaluationState) Clone() *EvaluationState {
	if s == nil {
		return nil
	}
	out := &EvaluationState{
		AlertID:   s.AlertID,
		UpdatedAt: s.UpdatedAt,
		Leaves:    make(map[string]*LeafState, len(s.Leaves)),
		Sequences: make(map[string]*SequenceState, len(s.Sequences)),
	}
	for path, ls := range s.Leaves {
		copied := &LeafState{}
		copied.LastValue = copyFloat(ls.LastValue)
		copied.LastTarget = copyFloat(ls.LastTarget)
		copied.MaxSeen = copyFloat(ls.MaxSeen)
		copied.MinSeen = copyFloat(ls.MinSeen)
		copied.LastSeenAt = copyTime(ls.LastSeenAt)
		out.Leaves[path] = copied
	}
	for path, ss := range s.Sequences {
		out.Sequences[path] = &SequenceState{
			NextStep: ss.NextStep,
			StepAt:   copyTime(ss.StepAt),
			FirstAt:  copyTime(ss.FirstAt),
		}
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// NodeTrace 单个节点的评估痕迹，组成与条件树同构的诊断树
type NodeTrace struct {
	Path     string      `json:"path"`
	Verdict  Verdict     `json:"verdict"`
	Value    *float64    `json:"value,omitempty"`  // 叶子当前读数
	Target   *float64    `json:"target,omitempty"` // 比较对象读数
	Detail   string      `json:"detail,omitempty"`
	Children []NodeTrace `json:"children,omitempty"`
}

// EvaluationStateRecord evaluation_states 表记录，状态整体存为 JSONB
type EvaluationStateRecord struct {
	AlertID   string           `gorm:"type:uuid;primaryKey" json:"alert_id"`
	State     *EvaluationState `gorm:"type:jsonb;serializer:json" json:"state"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (EvaluationStateRecord) TableName() string {
	return "evaluation_states"
}
