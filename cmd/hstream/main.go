// Command hstream 运行内置的 streaming 策略：
//
//	hstream map | reduce | run      作为 Hadoop Streaming 的 -mapper/-reducer 命令
//	hstream local [roots...]        本地模拟一次作业（map → sort → reduce）
//	hstream init-config [dir]       生成 config.json 与 .env 模板
//
// 配置优先级：CLI > ENV(.env) > JSON > 默认值。
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "hstream/internal/config"
	"hstream/internal/diag"
	"hstream/internal/pipeline"
	"hstream/pkg/reporter"
	"hstream/pkg/streaming"
	rfs "hstream/plugins/reader/filesystem"
)

var (
	pipelineRun = pipeline.Run
	taskRun     = streaming.Run
)

// 退出码
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int { return newApp().run(args) }

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format+": %w", err)}
}

func runtimeErr(err error) error { return &exitError{code: exitRuntime, err: err} }

type cliFlags struct {
	config     string
	mapper     string
	reducer    string
	mapperOpt  string
	reducerOpt string
	logLevel   string
	logDir     string
	stage      string
	output     string
}

type app struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	environ func() []string
	corrID  string
	flags   cliFlags
}

func newApp() *app {
	return &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, environ: os.Environ, corrID: uuid.NewString()}
}

func (a *app) run(args []string) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(err, context.Canceled) {
			fprintf(a.stderr, "hstream: %v\n", err)
		}
		return ee.code
	}
	// cobra 自身的参数错误
	fprintf(a.stderr, "hstream: %v\n", err)
	return exitConfig
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hstream",
		Short:         "Hadoop Streaming 任务运行时",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.config, "config", "", "配置文件路径（JSON）；缺省读取 ./config.json（若存在）")
	pf.StringVar(&a.flags.mapper, "mapper", "", "mapper 名称（覆盖配置）")
	pf.StringVar(&a.flags.reducer, "reducer", "", "reducer 名称（覆盖配置）")
	pf.StringVar(&a.flags.mapperOpt, "mapper-options", "", "mapper 选项（JSON）")
	pf.StringVar(&a.flags.reducerOpt, "reducer-options", "", "reducer 选项（JSON）")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "日志级别 debug|info|warn|error")
	pf.StringVar(&a.flags.logDir, "log-dir", "", "日志目录（轮转文件）；缺省写 stderr")

	root.AddCommand(
		&cobra.Command{
			Use:   "map",
			Short: "以 map 阶段运行（stdin → stdout）",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.task("map") },
		},
		&cobra.Command{
			Use:   "reduce",
			Short: "以 reduce 阶段运行；输入须已按键排序",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.task("reduce") },
		},
		&cobra.Command{
			Use:   "run",
			Short: "按 mapreduce.task.ismap 选择阶段运行",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return a.task("") },
		},
		a.localCmd(),
		a.initCmd(),
	)
	return root
}

func (a *app) localCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local [roots...]",
		Short: "本地运行一次作业；roots 为文件/目录，或 \"-\" 表示 STDIN",
		RunE: func(cmd *cobra.Command, roots []string) error {
			return a.local(cmd.Context(), roots)
		},
	}
	cmd.Flags().StringVar(&a.flags.stage, "stage", "", "仅运行 map 或 reduce；缺省全流程")
	cmd.Flags().StringVar(&a.flags.output, "output", "", "输出文件；缺省写 stdout")
	return cmd
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成默认 config.json 与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			return a.initConfig(dir)
		},
	}
}

// loadConfig: 默认值 < JSON（文件或 HSTREAM_CONFIG_JSON）< ENV < CLI，最后校验。
func (a *app) loadConfig(over cfgpkg.Config) (cfgpkg.Config, error) {
	env := a.environ()
	cfg := cfgpkg.Defaults()

	var cfgJSON []byte
	if s := lookupEnv(env, "HSTREAM_CONFIG_JSON"); s != "" {
		cfgJSON = []byte(s)
	}
	path := a.flags.config
	if path == "" {
		path = lookupEnv(env, "HSTREAM_CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" || len(cfgJSON) > 0 {
		base, err := cfgpkg.LoadJSON(path, cfgJSON)
		if err != nil {
			return cfg, configErr("配置解析失败", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(env)
	if err != nil {
		return cfg, configErr("环境变量解析失败", err)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	over.Mapper = a.flags.mapper
	over.Reducer = a.flags.reducer
	over.Options.Mapper = rawFlag(a.flags.mapperOpt)
	over.Options.Reducer = rawFlag(a.flags.reducerOpt)
	over.Logging.Level = a.flags.logLevel
	over.Logging.Dir = a.flags.logDir
	cfg = cfgpkg.Merge(cfg, over)

	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(a.stderr, cfg)
		return cfg, configErr("配置校验失败", err)
	}
	return cfg, nil
}

func (a *app) logger(cfg cfgpkg.Config) *diag.Logger {
	if strings.TrimSpace(cfg.Logging.Dir) != "" {
		return diag.NewLogger(a.corrID, cfg.Logging.Level, cfg.Logging.Dir).WithKeep(cfg.Logging.Keep)
	}
	return diag.NewLoggerTo(a.stderr, a.corrID, cfg.Logging.Level)
}

// task 在 stdin/stdout 上运行单个阶段；stage 为空时由 jobconf 决定。
func (a *app) task(stage string) error {
	cfg, err := a.loadConfig(cfgpkg.Config{Stage: stage})
	if err != nil {
		return err
	}
	logger := a.logger(cfg)
	defer logger.Close()
	m, r, err := cfgpkg.Strategies(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble", nil)
		return configErr("装配失败", err)
	}
	logger.Debug("config", "effective", effectiveKV(cfg))
	t := &streaming.Task{
		Conf:     cfgpkg.TaskConf(cfg, a.environ()),
		In:       a.stdin,
		Out:      a.stdout,
		Reporter: reporter.New(a.stderr),
		Logger:   logger,
		Metrics:  diag.NewMetrics(cfg.CounterGroup),
	}
	if err := taskRun(t, m, r); err != nil {
		return runtimeErr(err)
	}
	return nil
}

// local 以本地运行器执行一次作业。
func (a *app) local(ctx context.Context, roots []string) error {
	start := time.Now()
	over := cfgpkg.Config{Stage: a.flags.stage, Output: a.flags.output, Inputs: roots}
	cfg, err := a.loadConfig(over)
	if err != nil {
		return err
	}
	logger := a.logger(cfg)
	defer logger.Close()

	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("config", string(diag.Classify(err)), "preflight", &start)
		return configErr("输出目录不可写或无法创建", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble", &start)
		return configErr("装配失败", err)
	}
	if fs, ok := comp.Reader.(*rfs.FileSystem); ok {
		comp.Reader = fs.WithStdin(a.stdin)
	}
	set.Stdout = a.stdout
	set.Reporter = reporter.New(a.stderr)
	logger.Debug("config", "effective", effectiveKV(cfg))

	if ctx == nil {
		ctx = context.Background()
	}
	if err := pipelineRun(ctx, comp, set, logger); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return runtimeErr(err)
	}
	logger.InfoFinish("pipeline", "done", start, 0)
	return nil
}

func (a *app) initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return configErr("生成默认配置失败", err)
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil {
		return configErr("生成默认配置失败", err)
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func effectiveKV(cfg cfgpkg.Config) map[string]string {
	return map[string]string{
		"stage":        cfg.Stage,
		"mapper":       cfg.Mapper,
		"reducer":      cfg.Reducer,
		"inputs_count": fmt.Sprintf("%d", len(cfg.Inputs)),
		"output":       cfg.Output,
		"reader":       cfg.Components.Reader,
		"writer":       cfg.Components.Writer,
		"jobconf_keys": fmt.Sprintf("%d", len(cfg.JobConf)),
	}
}

func rawFlag(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.RawMessage(s)
}

func lookupEnv(environ []string, key string) string {
	prefix := key + "="
	for i := len(environ) - 1; i >= 0; i-- {
		if strings.HasPrefix(environ[i], prefix) {
			return environ[i][len(prefix):]
		}
	}
	return ""
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = w.Write(append([]byte("有效配置:\n"), b...))
	_, _ = w.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "。
// - 仅按首个 '=' 分割；若 value 被成对引号包裹则去除，双引号内处理常见转义。
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				quoted := val[0]
				val = val[1 : len(val)-1]
				if quoted == '"' {
					val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
				}
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# hstream .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > JSON；空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("HSTREAM_CONFIG_FILE=\n")
	b.WriteString("HSTREAM_CONFIG_JSON=\n\n")

	b.WriteString("# 策略与阶段\n")
	for _, k := range []string{"STAGE", "MAPPER", "REDUCER", "OPTIONS_MAPPER_JSON", "OPTIONS_REDUCER_JSON"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 本地运行\n")
	for _, k := range []string{"INPUTS", "OUTPUT", "COMPONENTS_READER", "COMPONENTS_WRITER", "OPTIONS_READER_JSON", "OPTIONS_WRITER_JSON", "JOBCONF_JSON"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 诊断\n")
	for _, k := range []string{"LOG_LEVEL", "LOG_DIR", "LOG_KEEP", "COUNTER_GROUP"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 使用 fs writer 且指定了输出时，启动前检查输出目录可写性。
// 目录存在则尝试创建并删除临时文件；不存在则检查父目录。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	out := strings.TrimSpace(cfg.Output)
	if out == "" || out == "-" {
		return nil
	}
	if name := cfg.Components.Writer; name != "" && name != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	} else {
		wopts.OutputDir = filepath.Dir(out)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	// 目录不存在：向上找到最近的已存在祖先并检查可写性
	parent := filepath.Dir(dir)
	for parent != filepath.Dir(parent) {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		parent = filepath.Dir(parent)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
