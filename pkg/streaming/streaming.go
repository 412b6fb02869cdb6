// Package streaming 是任务程序的入口：在 stdin/stdout 上运行 Mapper 或 Reducer。
//
// 典型用法（map 与 reduce 各一个二进制）：
//
//	func main() { streaming.Main(streaming.RunMapper(myMapper{})) }
//
// stdout 只承载记录；诊断经 stderr（reporter 行与结构化日志）。
package streaming

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"hstream/internal/diag"
	"hstream/internal/lifecycle"
	"hstream/pkg/contract"
	"hstream/pkg/jobconf"
	"hstream/pkg/mapred"
	"hstream/pkg/reporter"
	"hstream/pkg/taskctx"
)

// Task 描述一次运行：输入输出与可选的诊断设施。
// 零值字段取默认：Conf 取进程环境，In/Out 取 stdin/stdout，
// Reporter 写 stderr，Logger 写 stderr（info 级别）。
type Task struct {
	Conf     *jobconf.Configuration
	In       io.Reader
	Out      io.Writer
	Reporter *reporter.Reporter
	Logger   *diag.Logger
	Metrics  *diag.Metrics
	// Stage 覆盖配置中的阶段判定（仅 Run 使用）；nil 表示按配置。
	Stage *jobconf.Stage
}

// RunMapper 以进程环境与 stdin/stdout 执行 Mapper。
func RunMapper(m mapred.Mapper) error { return (&Task{}).Map(m) }

// RunReducer 以进程环境与 stdin/stdout 执行 Reducer。
func RunReducer(r mapred.Reducer) error { return (&Task{}).Reduce(r) }

// Run 依据 mapreduce.task.ismap（或 Task.Stage）选择阶段，
// 便于同一二进制同时充当 mapper 与 reducer。
func Run(t *Task, m mapred.Mapper, r mapred.Reducer) error {
	if t == nil {
		t = &Task{}
	}
	t.defaults()
	stage := t.Conf.Stage()
	if t.Stage != nil {
		stage = *t.Stage
	}
	if stage == jobconf.StageMap {
		return t.Map(m)
	}
	return t.Reduce(r)
}

// Map 执行 map 阶段。
func (t *Task) Map(m mapred.Mapper) error {
	if m == nil {
		return fmt.Errorf("%w: nil mapper", contract.ErrInvalidInput)
	}
	return t.run(jobconf.StageMap, lifecycle.NewMapLifecycle(m))
}

// Reduce 执行 reduce 阶段。输入须已按键排序（见 lifecycle.NewReduceLifecycle）。
func (t *Task) Reduce(r mapred.Reducer) error {
	if r == nil {
		return fmt.Errorf("%w: nil reducer", contract.ErrInvalidInput)
	}
	return t.run(jobconf.StageReduce, lifecycle.NewReduceLifecycle(r))
}

func (t *Task) defaults() {
	if t.Conf == nil {
		t.Conf = jobconf.New()
	}
	if t.In == nil {
		t.In = os.Stdin
	}
	if t.Out == nil {
		t.Out = os.Stdout
	}
	if t.Reporter == nil {
		t.Reporter = reporter.New(os.Stderr)
	}
	if t.Logger == nil {
		t.Logger = diag.NewLogger(uuid.NewString(), "info", "")
	}
	if t.Metrics == nil {
		t.Metrics = diag.NewMetrics("hstream")
	}
}

func (t *Task) run(stage jobconf.Stage, lc lifecycle.Lifecycle) error {
	t.defaults()
	conf := t.Conf
	// 显式阶段与配置不一致时，以显式阶段解析分隔符
	if conf.Stage() != stage {
		conf = withStage(conf, stage)
	}
	c := taskctx.New(conf, t.Out)
	taskctx.Insert(c, taskctx.ReporterKey, t.Reporter)
	taskctx.Insert(c, taskctx.LoggerKey, t.Logger)
	taskctx.Insert(c, taskctx.MetricsKey, t.Metrics)

	status, _ := t.Reporter.TaskStart(stage.String())
	err := lifecycle.Run(t.In, lc, c)
	var records int64
	if out, ok := taskctx.Get(c, taskctx.OutputKey); ok {
		records = out.Records()
	}
	if ferr := t.Metrics.Flush(t.Reporter); ferr != nil && err == nil {
		err = fmt.Errorf("flush counters: %w", ferr)
	}
	_ = status.Finish(err == nil, records)
	if err != nil {
		return fmt.Errorf("%s task: %w", stage, err)
	}
	return nil
}

// withStage 复制配置并改写阶段标识。
func withStage(conf *jobconf.Configuration, stage jobconf.Stage) *jobconf.Configuration {
	cp := conf.Clone()
	cp.Insert(jobconf.IsMapKey, fmt.Sprint(stage == jobconf.StageMap))
	return cp
}

// Main 将 Run* 的结果转换为进程退出码：出错时写 stderr 并以 1 退出。
func Main(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "hstream: %v\n", err)
	os.Exit(1)
}
