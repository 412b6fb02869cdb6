package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"hstream/pkg/contract"
)

// Reporter: Hadoop Streaming 旁路通道（stderr）上的状态与计数器更新。
// 行格式：
//   - reporter:counter:<group>,<label>,<amount>
//   - reporter:status:<status>
//
// 主输出（stdout）只承载记录；所有诊断必须经由本通道或任务日志。
// nil 接收者上的调用均为 no-op。
type Reporter struct {
	w  io.Writer
	mu sync.Mutex

	statuses int
}

// New 构造 Reporter；w 为 nil 时使用 os.Stderr。
func New(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	return &Reporter{w: w}
}

// IncrCounter 累加 group/label 计数器。
// group 与 label 不得包含 ','（Hadoop 以逗号切分该行）。
func (r *Reporter) IncrCounter(group, label string, amount int64) error {
	if r == nil {
		return nil
	}
	if strings.ContainsRune(group, ',') || strings.ContainsRune(label, ',') {
		return fmt.Errorf("%w: counter %q/%q contains ','", contract.ErrInvalidLabel, group, label)
	}
	return r.println(fmt.Sprintf("reporter:counter:%s,%s,%d", safe(group), safe(label), amount))
}

// Status 更新任务状态。换行被替换为空格，保证单行。
func (r *Reporter) Status(status string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.statuses++
	r.mu.Unlock()
	return r.println("reporter:status:" + safe(status))
}

// Statusf 以格式化字符串更新状态。
func (r *Reporter) Statusf(format string, a ...any) error {
	return r.Status(fmt.Sprintf(format, a...))
}

// Log 向任务日志写一行普通文本。
func (r *Reporter) Log(format string, a ...any) error {
	if r == nil {
		return nil
	}
	return r.println(fmt.Sprintf(format, a...))
}

// TaskStatus 是单个任务的起止状态句柄；并发任务共享 Reporter 时各持一份。
type TaskStatus struct {
	r       *Reporter
	stage   string
	started time.Time
}

// TaskStart 上报阶段起点，返回用于 Finish 的句柄。nil 接收者返回的句柄同样为 no-op。
func (r *Reporter) TaskStart(stage string) (*TaskStatus, error) {
	ts := &TaskStatus{r: r, stage: stage, started: time.Now()}
	if r == nil {
		return ts, nil
	}
	return ts, r.Status(fmt.Sprintf("%s | started", stage))
}

// Finish 上报阶段结束：处理记录数与自 TaskStart 起的耗时。
func (ts *TaskStatus) Finish(ok bool, records int64) error {
	if ts == nil || ts.r == nil {
		return nil
	}
	tag := "done"
	if !ok {
		tag = "fail"
	}
	dur := time.Since(ts.started)
	return ts.r.Status(fmt.Sprintf("%s | %s | records %d | %s", ts.stage, tag, records, formatDur(dur)))
}

func (r *Reporter) println(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := io.WriteString(r.w, s+"\n")
	return err
}

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	s := float64(d.Milliseconds()) / 1000.0
	return fmt.Sprintf("%.1fs", s)
}
