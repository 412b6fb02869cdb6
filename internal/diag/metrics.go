package diag

import (
	"sort"
	"sync"
)

// CounterSink: 计数器的外部出口（通常为 reporter.Reporter）。
type CounterSink interface {
	IncrCounter(group, label string, amount int64) error
}

// Metrics 在进程内累加驱动计数，任务结束时作为 Hadoop 计数器统一上报。
// 名称约定：
// - <stage>.records / <stage>.bytes / reduce.groups
// - errors.<code>
// nil 接收者上的调用均为 no-op。
type Metrics struct {
	group string
	mu    sync.Mutex
	c     map[string]int64
}

// NewMetrics 构造计数器集合；group 为上报时的计数器组名。
func NewMetrics(group string) *Metrics {
	if group == "" {
		group = "hstream"
	}
	return &Metrics{group: group, c: make(map[string]int64)}
}

// Add 累加 label 计数。
func (m *Metrics) Add(label string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	m.c[label] += n
	m.mu.Unlock()
}

// IncError 按分类累加错误计数。
func (m *Metrics) IncError(code Code) { m.Add("errors."+string(code), 1) }

// Get 返回当前累计值。
func (m *Metrics) Get(label string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c[label]
}

// Flush 按 label 字典序上报全部计数并清零；首个上报错误即返回。
func (m *Metrics) Flush(sink CounterSink) error {
	if m == nil || sink == nil {
		return nil
	}
	m.mu.Lock()
	labels := make([]string, 0, len(m.c))
	for k := range m.c {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	snap := make([]int64, len(labels))
	for i, k := range labels {
		snap[i] = m.c[k]
	}
	m.c = make(map[string]int64)
	m.mu.Unlock()
	for i, k := range labels {
		if err := sink.IncrCounter(m.group, k, snap[i]); err != nil {
			return err
		}
	}
	return nil
}
