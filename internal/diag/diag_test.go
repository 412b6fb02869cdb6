package diag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hstream/pkg/contract"
)

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	_ = w.Close()
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
}

func TestRotatingFileNames(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	for i := 0; i < 5; i++ {
		if err := w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = w.Close()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent, rotated := false, 0
	for _, e := range ents {
		if e.Name() == "hstream-current.log" {
			hasCurrent = true
			continue
		}
		if strings.HasPrefix(e.Name(), "hstream-") && strings.HasSuffix(e.Name(), ".log") {
			rotated++
		}
	}
	if !hasCurrent || rotated != 4 {
		t.Fatalf("current=%v rotated=%d", hasCurrent, rotated)
	}
}

func TestRotatingFileKeep(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10).WithKeep(2)
	for i := 0; i < 6; i++ {
		if err := w.WriteLine([]byte("yyyyyyyyyyyyyyyy")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = w.Close()
	ents, _ := os.ReadDir(dir)
	if len(ents) != 3 { // current + 2 历史
		t.Fatalf("保留个数不符: %d", len(ents))
	}
}

func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	if w.maxBytes != 10*1024*1024 {
		t.Fatalf("默认上限: %d", w.maxBytes)
	}
	if err := w.WriteLine([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	// f==nil 分支：仅重新打开
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "hstream-current.log")); err != nil {
		t.Fatalf("current 不存在: %v", err)
	}
	_ = w.Close()
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{context.Canceled, CodeCancel},
		{fmt.Errorf("map: %w", contract.ErrHook), CodeHook},
		{fmt.Errorf("%w: %w", contract.ErrHook, contract.ErrIO), CodeHook},
		{contract.ErrMissingState, CodeInvariant},
		{contract.ErrInvalidLabel, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{fmt.Errorf("read: %w", contract.ErrIO), CodeIO},
		{io.ErrUnexpectedEOF, CodeIO},
		{bufio.ErrTooLong, CodeIO},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v)=%s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestLoggerJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "corr", "info")
	tm := l.StartWith("lifecycle", "map", "stdin")
	tm.Finish("ok", 3)
	l.Debug("lifecycle", "filtered", nil) // info 级别下被过滤
	l.Error("lifecycle", "hook", "boom", nil)

	sc := bufio.NewScanner(&buf)
	var evs []Event
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("非 JSON 行: %q", sc.Text())
		}
		evs = append(evs, ev)
	}
	if len(evs) != 3 {
		t.Fatalf("事件数: %d", len(evs))
	}
	if evs[0].Stage != "start" || evs[0].Input != "stdin" || evs[0].CorrID != "corr" {
		t.Fatalf("start 事件: %+v", evs[0])
	}
	if evs[1].Stage != "finish" || evs[1].Count != 3 {
		t.Fatalf("finish 事件: %+v", evs[1])
	}
	if evs[2].Level != "error" || evs[2].Code != "hook" {
		t.Fatalf("error 事件: %+v", evs[2])
	}
}

func TestLoggerToDir(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger("corr", "debug", dir)
	l.Start("comp", "msg").Finish("ok", 1)
	l.Warn("comp", "w", map[string]string{"k": "v"})
	_ = l.Close()
	b, err := os.ReadFile(filepath.Join(dir, "hstream-current.log"))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if strings.Count(string(b), "\n") != 3 {
		t.Fatalf("行数不符: %q", b)
	}
}

func TestLoggerNilSafe(t *testing.T) {
	var l *Logger
	l.Start("c", "m").Finish("x", 0)
	l.Error("c", "code", "m", nil)
	l.Warn("c", "m", nil)
	l.Debug("c", "m", nil)
	l.InfoFinish("c", "m", time.Now(), 1)
	var tm *Timer
	tm.Fail(CodeIO, errors.New("x"))
	if l.Enabled(Error) || l.CorrID() != "" || l.Close() != nil {
		t.Fatalf("nil logger 应为 no-op")
	}
}

func TestLevels(t *testing.T) {
	if Warn.String() != "warn" || Level(12345).String() != "info" {
		t.Fatalf("level string")
	}
	if ParseLevel(" DEBUG ") != Debug || ParseLevel("x") != Info {
		t.Fatalf("parse level")
	}
	l := NewLoggerTo(io.Discard, "c", "warn")
	if l.Enabled(Info) || !l.Enabled(Error) {
		t.Fatalf("级别过滤")
	}
}

type sinkRec struct {
	lines []string
	fail  bool
}

func (s *sinkRec) IncrCounter(group, label string, amount int64) error {
	if s.fail {
		return errors.New("sink down")
	}
	s.lines = append(s.lines, fmt.Sprintf("%s,%s,%d", group, label, amount))
	return nil
}

func TestMetricsFlush(t *testing.T) {
	m := NewMetrics("")
	m.Add("reduce.groups", 2)
	m.Add("map.records", 5)
	m.Add("map.records", 1)
	m.Add("zero", 0)
	m.IncError(CodeIO)
	if m.Get("map.records") != 6 {
		t.Fatalf("get: %d", m.Get("map.records"))
	}
	s := &sinkRec{}
	if err := m.Flush(s); err != nil {
		t.Fatalf("flush: %v", err)
	}
	want := []string{"hstream,errors.io,1", "hstream,map.records,6", "hstream,reduce.groups,2"}
	if strings.Join(s.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v", s.lines)
	}
	if m.Get("map.records") != 0 {
		t.Fatalf("flush 后应清零")
	}
	m.Add("x", 1)
	if err := m.Flush(&sinkRec{fail: true}); err == nil {
		t.Fatalf("expect sink error")
	}
	var nm *Metrics
	nm.Add("x", 1)
	if nm.Flush(s) != nil || nm.Get("x") != 0 {
		t.Fatalf("nil metrics 应为 no-op")
	}
}

func TestNowUTC(t *testing.T) {
	if _, err := time.Parse(time.RFC3339, NowUTC()); err != nil {
		t.Fatalf("ts: %v", err)
	}
}
