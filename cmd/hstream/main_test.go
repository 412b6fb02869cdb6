package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "hstream/internal/config"
	"hstream/internal/diag"
	"hstream/internal/pipeline"
	"hstream/pkg/mapred"
	"hstream/pkg/streaming"
)

// testApp 在临时目录中构造 app；environ 只含给定键。
func testApp(t *testing.T, stdin string, env ...string) (*app, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	var out, errw bytes.Buffer
	a := &app{
		stdin:   strings.NewReader(stdin),
		stdout:  &out,
		stderr:  &errw,
		environ: func() []string { return env },
		corrID:  "test",
	}
	return a, &out, &errw
}

func TestMapCommand(t *testing.T) {
	a, out, errw := testApp(t, "The cat.\nthe DOG\n", "HSTREAM_OPTIONS_MAPPER_JSON={\"lowercase\":true}")
	if code := a.run([]string{"map", "--mapper", "wordcount"}); code != 0 {
		t.Fatalf("run return %d: %s", code, errw.String())
	}
	if out.String() != "the\t1\ncat\t1\nthe\t1\ndog\t1\n" {
		t.Fatalf("map 输出错误: %q", out.String())
	}
	if !strings.Contains(errw.String(), "reporter:status:") {
		t.Fatalf("缺少 reporter 行: %s", errw.String())
	}
}

func TestReduceCommand(t *testing.T) {
	a, out, errw := testApp(t, "a\t1\na\t2\nb\t5\n")
	if code := a.run([]string{"reduce", "--reducer", "sum"}); code != 0 {
		t.Fatalf("run return %d: %s", code, errw.String())
	}
	if out.String() != "a\t3\nb\t5\n" {
		t.Fatalf("reduce 输出错误: %q", out.String())
	}
}

// run 子命令按 jobconf 选择阶段，分隔符来自环境。
func TestRunCommandStageFromEnv(t *testing.T) {
	a, out, errw := testApp(t, "k=1\nk=2\n",
		"mapreduce_task_ismap=false",
		"stream_reduce_input_field_separator==",
		"stream_reduce_output_field_separator=:",
		"HSTREAM_REDUCER=count",
	)
	if code := a.run([]string{"run"}); code != 0 {
		t.Fatalf("run return %d: %s", code, errw.String())
	}
	if out.String() != "k:2\n" {
		t.Fatalf("输出错误: %q", out.String())
	}
}

func TestTaskHookErrorExit1(t *testing.T) {
	a, _, _ := testApp(t, "x\n")
	orig := taskRun
	taskRun = func(*streaming.Task, mapred.Mapper, mapred.Reducer) error { return errors.New("boom") }
	defer func() { taskRun = orig }()
	if code := a.run([]string{"map"}); code != 1 {
		t.Fatalf("expect 1, got %d", code)
	}
}

func TestSumInvalidValueExit1(t *testing.T) {
	a, _, errw := testApp(t, "a\tx\n")
	if code := a.run([]string{"reduce", "--reducer", "sum"}); code != 1 {
		t.Fatalf("expect 1, got %d", code)
	}
	if !strings.Contains(errw.String(), "hstream:") {
		t.Fatalf("应输出错误: %s", errw.String())
	}
}

func TestUnknownStrategyExit3(t *testing.T) {
	a, _, errw := testApp(t, "")
	if code := a.run([]string{"map", "--mapper", "nope"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
	if !strings.Contains(errw.String(), "有效配置") {
		t.Fatalf("校验失败应打印有效配置")
	}
}

func TestBadOptionsExit3(t *testing.T) {
	a, _, _ := testApp(t, "")
	if code := a.run([]string{"map", "--mapper", "grep", "--mapper-options", `{"pattern":"("}`}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestUnknownCommandExit3(t *testing.T) {
	a, _, _ := testApp(t, "")
	if code := a.run([]string{"shuffle"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestRunInitConfig(t *testing.T) {
	a, _, _ := testApp(t, "")
	outDir := filepath.Join(t.TempDir(), "gen")
	if code := a.run([]string{"init-config", outDir}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	b, err := os.ReadFile(filepath.Join(outDir, "config.json"))
	if err != nil {
		t.Fatalf("config not generated: %v", err)
	}
	if _, err := cfgpkg.LoadJSON("", b); err != nil {
		t.Fatalf("生成的配置应可严格解析: %v", err)
	}
	env, err := os.ReadFile(filepath.Join(outDir, ".env"))
	if err != nil || !strings.Contains(string(env), "HSTREAM_MAPPER=") {
		t.Fatalf(".env 模板错误: %v", err)
	}
	// 再次生成不覆盖
	if err := os.WriteFile(filepath.Join(outDir, "config.json"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code := a.run([]string{"init-config", outDir}); code != 0 {
		t.Fatalf("second run return %d", code)
	}
	if b, _ := os.ReadFile(filepath.Join(outDir, "config.json")); string(b) != "keep" {
		t.Fatalf("已存在文件被覆盖")
	}
}

func TestLocalStdin(t *testing.T) {
	a, out, errw := testApp(t, "b a\nb\n")
	if code := a.run([]string{"local", "--mapper", "wordcount", "--reducer", "sum", "-"}); code != 0 {
		t.Fatalf("run return %d: %s", code, errw.String())
	}
	if out.String() != "a\t1\nb\t2\n" {
		t.Fatalf("输出错误: %q", out.String())
	}
}

func TestLocalConfigJSONAndOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	if err := os.WriteFile(in, []byte("x y x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := cfgpkg.Defaults()
	cfg.Mapper = "wordcount"
	cfg.Reducer = "count"
	cfg.Inputs = []string{in}
	b, _ := json.Marshal(cfg)
	outFile := filepath.Join(dir, "res", "part-00000")
	a, _, errw := testApp(t, "", "HSTREAM_CONFIG_JSON="+string(b))
	if code := a.run([]string{"local", "--output", outFile}); code != 0 {
		t.Fatalf("run return %d: %s", code, errw.String())
	}
	got, err := os.ReadFile(outFile)
	if err != nil || string(got) != "x\t2\ny\t1\n" {
		t.Fatalf("输出文件错误: %v %q", err, got)
	}
}

func TestLocalWithConfigFile(t *testing.T) {
	a, _, _ := testApp(t, "")
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.Output = ""
	b, _ := json.Marshal(cfg)
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	called := false
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) error {
		called = true
		if comp.Writer != nil || set.Stdout == nil {
			t.Errorf("未指定输出时应写 stdout")
		}
		return nil
	}
	defer func() { pipelineRun = orig }()
	if code := a.run([]string{"local", "--config", path}); code != 0 {
		t.Fatalf("run return %d", code)
	}
	if !called {
		t.Fatalf("pipelineRun not called")
	}
}

func TestLocalConfigFileNotFound(t *testing.T) {
	a, _, _ := testApp(t, "")
	if code := a.run([]string{"local", "--config", "missing.json"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestLocalPipelineError(t *testing.T) {
	a, _, _ := testApp(t, "")
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, logger *diag.Logger) error {
		return errors.New("boom")
	}
	defer func() { pipelineRun = orig }()
	if code := a.run([]string{"local", "-"}); code != 1 {
		t.Fatalf("expect 1, got %d", code)
	}
}

func TestLocalBadStage(t *testing.T) {
	a, _, _ := testApp(t, "")
	if code := a.run([]string{"local", "--stage", "shuffle", "-"}); code != 3 {
		t.Fatalf("expect 3, got %d", code)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	content := "# c\nexport HSTREAM_T_A=1\nHSTREAM_T_B=\"x\\ty\"\nHSTREAM_T_C='raw'\nHSTREAM_T_KEEP=new\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HSTREAM_T_KEEP", "old")
	for _, k := range []string{"HSTREAM_T_A", "HSTREAM_T_B", "HSTREAM_T_C"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	if err := loadDotEnv(p); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if os.Getenv("HSTREAM_T_A") != "1" || os.Getenv("HSTREAM_T_B") != "x\ty" || os.Getenv("HSTREAM_T_C") != "raw" {
		t.Fatalf("解析错误")
	}
	if os.Getenv("HSTREAM_T_KEEP") != "old" {
		t.Fatalf("不应覆盖已有变量")
	}
	if err := loadDotEnv(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("缺失文件应忽略: %v", err)
	}
}

func TestPreflightCheckOutputDir(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.Defaults()
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("无输出时应跳过: %v", err)
	}
	cfg.Output = filepath.Join(dir, "a", "b", "part")
	if err := preflightCheckOutputDir(cfg); err != nil {
		t.Fatalf("祖先可写时应通过: %v", err)
	}
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Output = filepath.Join(file, "part")
	if err := preflightCheckOutputDir(cfg); err == nil {
		t.Fatalf("输出目录为文件时应失败")
	}
}

func TestLookupEnv(t *testing.T) {
	env := []string{"A=1", "B=2", "A=3"}
	if lookupEnv(env, "A") != "3" || lookupEnv(env, "C") != "" {
		t.Fatalf("lookupEnv 错误")
	}
}
