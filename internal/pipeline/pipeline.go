package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"hstream/internal/diag"
	"hstream/internal/kv"
	"hstream/pkg/contract"
	"hstream/pkg/jobconf"
	"hstream/pkg/mapred"
	"hstream/pkg/reporter"
	"hstream/pkg/streaming"
)

// 本地运行器：在单进程内模拟一次 streaming 作业。
// - 每个输入文件作为一个 map 任务（偏移按文件重新计数）；
// - map 输出经内存稳定排序（按 map 输出分隔符切出的键）后送入单个 reduce 任务；
// - 阶段之间以 io.Pipe 连接，由 errgroup 管理：首错取消，关闭两端管道使其余阶段退出。
// 排序仅用于本地调试；集群上的 shuffle 不在本包范围内。

// Mode 选择运行哪些阶段。
type Mode string

const (
	ModeAll    Mode = ""       // map → sort → reduce
	ModeMap    Mode = "map"    // 仅 map，输出未排序
	ModeReduce Mode = "reduce" // 仅 reduce，输入须已排序
)

// Components 聚合运行所需组件。Writer 为 nil 时输出到 Settings.Stdout。
type Components struct {
	Reader  contract.Source
	Mapper  mapred.Mapper
	Reducer mapred.Reducer
	Writer  contract.Sink
}

// Settings 运行期配置。
type Settings struct {
	Inputs []string
	// Output: Writer 的工件标识；Writer 为 nil 时忽略。
	Output contract.ArtifactID
	Mode   Mode
	// JobConf: 注入到各任务的作业配置（分隔符等），阶段标识由运行器设置。
	JobConf map[string]string
	// Stdout: Writer 为 nil 时的输出端，默认 os.Stdout。
	Stdout   io.Writer
	Reporter *reporter.Reporter
	Metrics  *diag.Metrics
}

// Run 执行本地作业。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) error {
	if err := sanity(comp, set); err != nil {
		return fmt.Errorf("sanity: %w", err)
	}
	if set.Stdout == nil {
		set.Stdout = os.Stdout
	}
	if set.Metrics == nil {
		set.Metrics = diag.NewMetrics("hstream")
	}
	base := jobconf.FromMap(set.JobConf)
	job := &runner{comp: comp, set: set, log: logger, base: base}

	tm := logger.StartWithKV("pipeline", "run", map[string]string{"mode": string(modeName(set.Mode))})
	g, gctx := errgroup.WithContext(ctx)

	// 末端：Writer 或 stdout
	var sink io.Writer = set.Stdout
	if comp.Writer != nil {
		pr, pw := io.Pipe()
		g.Go(func() error {
			err := comp.Writer.Write(gctx, set.Output, pr)
			_ = pr.CloseWithError(errOr(err, io.ErrClosedPipe))
			return stageErr("writer", err)
		})
		sink = &closeOnDone{PipeWriter: pw}
	}

	switch set.Mode {
	case ModeMap:
		g.Go(func() error { return job.finish(sink, job.mapAll(gctx, sink)) })
	case ModeReduce:
		pr, pw := io.Pipe()
		g.Go(func() error { return closeWith(pw, job.catAll(gctx, pw)) })
		g.Go(func() error { return job.finish(sink, readerDone(pr, job.reduce(gctx, pr, sink))) })
	default:
		mr, mw := io.Pipe()
		sr, sw := io.Pipe()
		g.Go(func() error { return closeWith(mw, job.mapAll(gctx, mw)) })
		g.Go(func() error { return closeWith(sw, readerDone(mr, job.sort(mr, sw))) })
		g.Go(func() error { return job.finish(sink, readerDone(sr, job.reduce(gctx, sr, sink))) })
	}

	if err := g.Wait(); err != nil {
		code := diag.Classify(err)
		set.Metrics.IncError(code)
		tm.Fail(code, err)
		return err
	}
	tm.Finish("ok", 0)
	return nil
}

type runner struct {
	comp Components
	set  Settings
	log  *diag.Logger
	base *jobconf.Configuration
}

// stageConf 复制基础配置并设置阶段标识。
func (j *runner) stageConf(stage jobconf.Stage) *jobconf.Configuration {
	c := j.base.Clone()
	c.Insert(jobconf.IsMapKey, fmt.Sprint(stage == jobconf.StageMap))
	return c
}

func (j *runner) task(conf *jobconf.Configuration, in io.Reader, out io.Writer) *streaming.Task {
	return &streaming.Task{Conf: conf, In: in, Out: out, Reporter: j.set.Reporter, Logger: j.log, Metrics: j.set.Metrics}
}

// mapAll 对每个输入运行一次 map 任务，输出依次写入 w。
func (j *runner) mapAll(ctx context.Context, w io.Writer) error {
	n := 0
	err := j.comp.Reader.Iterate(ctx, j.set.Inputs, func(id contract.InputID, rc io.ReadCloser) error {
		defer rc.Close()
		n++
		conf := j.stageConf(jobconf.StageMap)
		conf.Insert("mapreduce.map.input.file", string(id))
		tm := j.log.StartWith("map", "task", string(id))
		if err := j.task(conf, readerWithCtx(ctx, rc), w).Map(j.comp.Mapper); err != nil {
			tm.Fail(diag.Classify(err), err)
			return fmt.Errorf("input %s: %w", id, err)
		}
		tm.Finish("ok", 0)
		return nil
	})
	if err != nil {
		return stageErr("map", err)
	}
	j.log.Debug("map", "inputs done", map[string]string{"inputs": fmt.Sprint(n)})
	return nil
}

// catAll 将全部输入顺序拼接到 w（reduce-only 模式）。
func (j *runner) catAll(ctx context.Context, w io.Writer) error {
	err := j.comp.Reader.Iterate(ctx, j.set.Inputs, func(id contract.InputID, rc io.ReadCloser) error {
		defer rc.Close()
		_, err := io.Copy(w, readerWithCtx(ctx, rc))
		return err
	})
	return stageErr("read", err)
}

// sort 读取全部 map 输出，按键稳定排序后写出。
// 键由 map 输出分隔符切出；相同键保持到达顺序。
func (j *runner) sort(r io.Reader, w io.Writer) error {
	delim := jobconf.ResolveDelimiters(j.stageConf(jobconf.StageMap)).Output()
	tm := j.log.Start("sort", "collect")
	recs, err := readRecords(r)
	if err != nil {
		tm.Fail(diag.Classify(err), err)
		return stageErr("sort", err)
	}
	keys := make([][]byte, len(recs))
	for i, rec := range recs {
		keys[i], _ = kv.Split(rec, delim)
	}
	idx := make([]int, len(recs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return bytes.Compare(keys[idx[a]], keys[idx[b]]) < 0 })
	bw := bufio.NewWriterSize(w, 64*1024)
	for _, i := range idx {
		if _, err := bw.Write(recs[i]); err != nil {
			return stageErr("sort", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return stageErr("sort", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return stageErr("sort", err)
	}
	j.set.Metrics.Add("sort.records", int64(len(recs)))
	tm.Finish("ok", int64(len(recs)))
	return nil
}

func (j *runner) reduce(ctx context.Context, r io.Reader, w io.Writer) error {
	tm := j.log.Start("reduce", "task")
	if err := j.task(j.stageConf(jobconf.StageReduce), readerWithCtx(ctx, r), w).Reduce(j.comp.Reducer); err != nil {
		tm.Fail(diag.Classify(err), err)
		return stageErr("reduce", err)
	}
	tm.Finish("ok", 0)
	return nil
}

// finish 结束末阶段：关闭通往 Writer 的管道（若有）。
func (j *runner) finish(sink io.Writer, err error) error {
	if c, ok := sink.(*closeOnDone); ok {
		_ = c.CloseWithError(err)
	}
	return err
}

// readRecords 读取以 '\n' 分隔的全部记录（去掉 '\n'，保留其余字节）。
func readRecords(r io.Reader) ([][]byte, error) {
	var recs [][]byte
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			recs = append(recs, bytes.TrimSuffix(line, []byte{'\n'}))
		}
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil {
		return errors.New("pipeline: missing reader")
	}
	if s.Mode != ModeReduce && c.Mapper == nil {
		return fmt.Errorf("%w: pipeline: missing mapper", contract.ErrInvalidInput)
	}
	if s.Mode != ModeMap && c.Reducer == nil {
		return fmt.Errorf("%w: pipeline: missing reducer", contract.ErrInvalidInput)
	}
	switch s.Mode {
	case ModeAll, ModeMap, ModeReduce:
	default:
		return fmt.Errorf("%w: pipeline: unknown mode %q", contract.ErrInvalidInput, s.Mode)
	}
	return nil
}

func modeName(m Mode) Mode {
	if m == ModeAll {
		return "all"
	}
	return m
}

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func errOr(err, def error) error {
	if err != nil {
		return err
	}
	return def
}

// closeWith 关闭写端：err 为 nil 时下游读到 EOF，否则读到 err。
func closeWith(pw *io.PipeWriter, err error) error {
	_ = pw.CloseWithError(err)
	return err
}

// readerDone 在消费方结束后关闭读端，使仍在写的上游返回而非阻塞。
func readerDone(pr *io.PipeReader, err error) error {
	_ = pr.CloseWithError(errOr(err, io.ErrClosedPipe))
	return err
}

// closeOnDone 标记通往 Writer 的管道，由末阶段负责关闭。
type closeOnDone struct {
	*io.PipeWriter
}

// readerWithCtx: 每次 Read 前检查取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
