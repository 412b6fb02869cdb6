package stress

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "hstream/internal/config"
	"hstream/internal/diag"
	"hstream/internal/pipeline"
	"hstream/pkg/reporter"
)

// genInput 生成 lines 行输入；第 i 行为 "w<i%vocab> w<(i+1)%vocab>"，总计每词出现次数可精确推算。
func genInput(t *testing.T, path string, lines, vocab int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	bw := bufio.NewWriter(f)
	for i := 0; i < lines; i++ {
		fmt.Fprintf(bw, "w%d w%d\n", i%vocab, (i+1)%vocab)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// runPipeline 执行完整本地作业，输出丢弃。
func runPipeline(cfg cfgpkg.Config, out io.Writer) error {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return err
	}
	set.Stdout = out
	set.Reporter = reporter.New(io.Discard)
	return pipeline.Run(context.Background(), comp, set, diag.NewLoggerTo(io.Discard, "stress", "error"))
}

// countingWriter 统计输出行数与 sum 总和。
type countingWriter struct {
	lines int
	total int64
	rest  []byte
}

func (w *countingWriter) Write(p []byte) (int, error) {
	buf := append(w.rest, p...)
	for {
		i := strings.IndexByte(string(buf), '\n')
		if i < 0 {
			break
		}
		var k string
		var n int64
		if _, err := fmt.Sscanf(strings.ReplaceAll(string(buf[:i]), "\t", " "), "%s %d", &k, &n); err == nil {
			w.total += n
		}
		w.lines++
		buf = buf[i+1:]
	}
	w.rest = append([]byte(nil), buf...)
	return len(p), nil
}

// TestStress 在不同输入规模下运行 wordcount → sum 并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	const vocab = 1000
	sizes := []int{1_000, 10_000, 100_000}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("lines_%d", n), func(t *testing.T) {
			dir := t.TempDir()
			in := filepath.Join(dir, "input.txt")
			genInput(t, in, n, vocab)

			cfg := cfgpkg.DefaultTemplateConfig()
			cfg.Inputs = []string{in}
			cfg.Output = ""
			cfg.Logging.Level = "error"

			const runs = 5
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				cw := &countingWriter{}
				start := time.Now()
				if err := runPipeline(cfg, cw); err != nil {
					t.Fatalf("run %d: %v", i, err)
				}
				latencies = append(latencies, time.Since(start))
				wantLines := vocab
				if n < vocab {
					wantLines = n + 1
				}
				if cw.lines != wantLines || cw.total != int64(2*n) {
					t.Fatalf("run %d: 行数 %d（期望 %d），总和 %d（期望 %d）", i, cw.lines, wantLines, cw.total, 2*n)
				}
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("规模%d 平均%v 95%%延迟%v", n, avg, latencies[idx])
		})
	}
}
