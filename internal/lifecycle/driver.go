// Package lifecycle 驱动单个任务：逐行读取输入，按 start → entry* → end
// 的顺序串行调用阶段策略。
package lifecycle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"hstream/internal/diag"
	"hstream/pkg/contract"
	"hstream/pkg/taskctx"
)

// 读缓冲默认大小。
const defaultBufSize = 64 * 1024

// Lifecycle: 阶段策略（map 或 reduce）。
// 钩子严格串行，每次调用独占 Context；返回错误即终止任务。
type Lifecycle interface {
	OnStart(c *taskctx.Context) error
	// OnEntry 接收去掉行终止符的记录；切片归实现方所有。
	OnEntry(line []byte, c *taskctx.Context) error
	OnEnd(c *taskctx.Context) error
}

// Run 从 r 读取以 '\n' 分隔的记录并驱动 lc。
// 去掉行尾 '\n' 及其前的 '\r'；末尾未终止的行同样视为一条记录。
// 正常结束后刷新 Context 中的输出端；任何读写或钩子错误立即返回。
func Run(r io.Reader, lc Lifecycle, c *taskctx.Context) error {
	if r == nil || lc == nil || c == nil {
		return fmt.Errorf("%w: nil reader, lifecycle or context", contract.ErrInvalidInput)
	}
	log := taskctx.Logger(c)
	met := taskctx.Metrics(c)

	tm := log.Start("lifecycle", "start")
	if err := lc.OnStart(c); err != nil {
		return fail(met, tm, fmt.Errorf("on start: %w", err))
	}

	var records, nbytes int64
	br := bufio.NewReaderSize(r, defaultBufSize)
	for {
		// ReadBytes 每次返回新切片，记录可被下游保留
		line, rerr := br.ReadBytes('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return fail(met, tm, fmt.Errorf("%w: read record %d: %w", contract.ErrIO, records, rerr))
		}
		if len(line) > 0 {
			nbytes += int64(len(line))
			line = trimTerminator(line)
			records++
			if err := lc.OnEntry(line, c); err != nil {
				return fail(met, tm, fmt.Errorf("on entry %d: %w", records, err))
			}
		}
		if rerr != nil {
			break
		}
	}
	met.Add("input.records", records)
	met.Add("input.bytes", nbytes)
	log.Debug("lifecycle", "input drained", map[string]string{"records": strconv.FormatInt(records, 10)})

	if err := lc.OnEnd(c); err != nil {
		return fail(met, tm, fmt.Errorf("on end: %w", err))
	}
	if out, ok := taskctx.Get(c, taskctx.OutputKey); ok {
		if err := out.Flush(); err != nil {
			return fail(met, tm, fmt.Errorf("%w: flush output: %w", contract.ErrIO, err))
		}
		met.Add("output.records", out.Records())
	}
	tm.Finish("ok", records)
	return nil
}

func fail(met *diag.Metrics, tm *diag.Timer, err error) error {
	code := diag.Classify(err)
	met.IncError(code)
	tm.Fail(code, err)
	return err
}

func trimTerminator(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// hookErr 将用户钩子错误归入 ErrHook。
func hookErr(hook string, err error) error {
	return fmt.Errorf("%w: %s: %w", contract.ErrHook, hook, err)
}
