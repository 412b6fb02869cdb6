package group

import "bytes"

// Group: 一段连续同键记录的值集合。
type Group struct {
	Key    []byte
	Values [][]byte
}

// Accumulator 缓冲连续同键记录，是 reduce 路径的核心状态机。
//
// 状态：UNSET（尚未分配键）与 ACCUMULATING（已分配键，缓冲 0..n 个值）。
// 正确分组依赖上游排序：相同键必须连续出现；否则同一逻辑键会被静默地拆成多组。
type Accumulator struct {
	set    bool
	key    []byte
	values [][]byte
}

// New 返回处于 UNSET 状态的累加器。
func New() *Accumulator { return &Accumulator{} }

// IsUnset 报告是否尚未接收任何记录。
func (a *Accumulator) IsUnset() bool { return !a.set }

// Key 返回当前键（UNSET 时为 nil）。
func (a *Accumulator) Key() []byte { return a.key }

// Values 返回当前缓冲的值（只读）。
func (a *Accumulator) Values() [][]byte { return a.values }

// Push 接收一条 (key, value)。
// 键发生变化时返回已完成的上一组与 true；否则返回 false。
// 键比较为逐字节相等。
func (a *Accumulator) Push(key, value []byte) (Group, bool) {
	if !a.set {
		a.set = true
		a.key = key
		a.values = append(a.values[:0], value)
		return Group{}, false
	}
	if bytes.Equal(a.key, key) {
		a.values = append(a.values, value)
		return Group{}, false
	}
	done := a.reset(key)
	a.values = append(a.values, value)
	return done, true
}

// Flush 无条件输出当前缓冲并回到 UNSET。
// 从未接收记录时输出空键与空值列表。
func (a *Accumulator) Flush() Group {
	g := a.reset(nil)
	a.set = false
	return g
}

// reset 交出当前键与缓冲，并以新键开始；缓冲切片不复用，已交出的组保持有效。
func (a *Accumulator) reset(key []byte) Group {
	g := Group{Key: a.key, Values: a.values}
	if g.Key == nil {
		g.Key = []byte{}
	}
	if g.Values == nil {
		g.Values = [][]byte{}
	}
	a.key = key
	a.values = nil
	return g
}
