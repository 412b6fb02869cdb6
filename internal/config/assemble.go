package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"hstream/internal/diag"
	"hstream/internal/pipeline"
	"hstream/pkg/contract"
	"hstream/pkg/jobconf"
	"hstream/pkg/mapred"
	"hstream/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if _, err := ParseMode(cfg.Stage); err != nil {
		return err
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if strings.ContainsRune(cfg.CounterGroup, ',') {
		return fmt.Errorf("config: counter_group %q must not contain ','", cfg.CounterGroup)
	}
	for k := range cfg.JobConf {
		if strings.TrimSpace(k) == "" {
			return errors.New("config: jobconf key cannot be empty")
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q unknown", cfg.Logging.Level)
	}
	if cfg.Logging.Keep < 0 {
		return errors.New("config: logging.keep must be >= 0")
	}
	d := Defaults()
	if name := effName(cfg.Mapper, d.Mapper); registry.Mapper[name] == nil {
		return fmt.Errorf("config: mapper %q not registered (known: %v)", name, registry.Names(registry.Mapper))
	}
	if name := effName(cfg.Reducer, d.Reducer); registry.Reducer[name] == nil {
		return fmt.Errorf("config: reducer %q not registered (known: %v)", name, registry.Names(registry.Reducer))
	}
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Source[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Sink[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// ParseMode 将 stage 字段映射为本地运行模式。
func ParseMode(stage string) (pipeline.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "", "all":
		return pipeline.ModeAll, nil
	case "map":
		return pipeline.ModeMap, nil
	case "reduce":
		return pipeline.ModeReduce, nil
	default:
		return "", fmt.Errorf("config: stage %q unknown (want map|reduce)", stage)
	}
}

// Strategies 按名称构造 Mapper 与 Reducer（任务模式与本地运行共用）。
func Strategies(cfg Config) (mapred.Mapper, mapred.Reducer, error) {
	d := Defaults()
	m, err := registry.BuildMapper(effName(cfg.Mapper, d.Mapper), cfg.Options.Mapper)
	if err != nil {
		return nil, nil, err
	}
	r, err := registry.BuildReducer(effName(cfg.Reducer, d.Reducer), cfg.Options.Reducer)
	if err != nil {
		return nil, nil, err
	}
	return m, r, nil
}

// TaskConf 以进程环境为主、cfg.JobConf 补齐缺失键，构造任务的作业配置。
// stage 非空时覆盖 mapreduce.task.ismap。
func TaskConf(cfg Config, environ []string) *jobconf.Configuration {
	conf := jobconf.FromEnviron(environ)
	for k, v := range cfg.JobConf {
		if _, ok := conf.Get(k); !ok {
			conf.Insert(k, v)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Stage)) {
	case "map":
		conf.Insert(jobconf.IsMapKey, "true")
	case "reduce":
		conf.Insert(jobconf.IsMapKey, "false")
	}
	return conf
}

// Assemble 构造本地运行所需的 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
// Output 非空且未给出 writer options 时，取 output_dir = Dir(output)，工件名 = Base(output)。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	mode, _ := ParseMode(cfg.Stage)

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	m, r, err := Strategies(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	src, err := registry.Source[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	comp := pipeline.Components{Reader: src, Mapper: m, Reducer: r}

	set := pipeline.Settings{
		Inputs:  cloneStrings(cfg.Inputs),
		Mode:    mode,
		JobConf: cloneMap(cfg.JobConf),
		Metrics: diag.NewMetrics(effName(cfg.CounterGroup, d.CounterGroup)),
	}

	if out := strings.TrimSpace(cfg.Output); out != "" && out != "-" {
		wopts := cfg.Options.Writer
		id := out
		if len(wopts) == 0 {
			wopts, err = json.Marshal(map[string]string{"output_dir": filepath.Dir(out)})
			if err != nil {
				return pipeline.Components{}, pipeline.Settings{}, err
			}
			id = filepath.Base(out)
		}
		w, err := registry.Sink[wn](wopts)
		if err != nil {
			return pipeline.Components{}, pipeline.Settings{}, err
		}
		comp.Writer = w
		set.Output = contract.ArtifactID(filepath.ToSlash(id))
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

func cloneMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
