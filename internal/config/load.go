package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// EnvPrefix: 运行器配置的环境变量前缀（大写，不会与小写 jobconf 键冲突）。
const EnvPrefix = "HSTREAM_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Mapper:       "identity",
		Reducer:      "identity",
		CounterGroup: "hstream",
		Logging:      Logging{Level: "info"},
		Components: Components{
			Reader: "fs",
			Writer: "fs",
		},
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串/原样 JSON 为替换；JobConf 按键合并。
func Merge(base, over Config) Config {
	out := base
	if s := strings.TrimSpace(over.Stage); s != "" {
		out.Stage = s
	}
	if over.Mapper != "" {
		out.Mapper = over.Mapper
	}
	if over.Reducer != "" {
		out.Reducer = over.Reducer
	}
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Output != "" {
		out.Output = over.Output
	}
	if len(over.JobConf) > 0 {
		m := make(map[string]string, len(base.JobConf)+len(over.JobConf))
		for k, v := range base.JobConf {
			m[k] = v
		}
		for k, v := range over.JobConf {
			m[k] = v
		}
		out.JobConf = m
	}
	if over.CounterGroup != "" {
		out.CounterGroup = over.CounterGroup
	}

	// Logging
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}
	if over.Logging.Keep != 0 {
		out.Logging.Keep = over.Logging.Keep
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Mapper) > 0 {
		out.Options.Mapper = cloneRaw(over.Options.Mapper)
	}
	if len(over.Options.Reducer) > 0 {
		out.Options.Reducer = cloneRaw(over.Options.Reducer)
	}
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 前缀 HSTREAM_；支持：STAGE, MAPPER, REDUCER, INPUTS, OUTPUT, COUNTER_GROUP,
// LOG_LEVEL, LOG_DIR, LOG_KEEP, COMPONENTS_{READER,WRITER},
// OPTIONS_{MAPPER,REDUCER,READER,WRITER}_JSON, JOBCONF_JSON。
// 其余 HSTREAM_ 键忽略。数值或 JSON 非法时返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := kv[len(EnvPrefix):eq]
		val := kv[eq+1:]
		switch nk {
		case "STAGE":
			over.Stage = strings.TrimSpace(val)
		case "MAPPER":
			over.Mapper = strings.TrimSpace(val)
		case "REDUCER":
			over.Reducer = strings.TrimSpace(val)
		case "INPUTS":
			if val != "" {
				over.Inputs = splitComma(val)
			}
		case "OUTPUT":
			over.Output = strings.TrimSpace(val)
		case "COUNTER_GROUP":
			over.CounterGroup = strings.TrimSpace(val)
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		case "LOG_KEEP":
			if strings.TrimSpace(val) == "" {
				continue
			}
			v, err := atoi(val)
			if err != nil {
				return over, fmt.Errorf("%s%s: %w", EnvPrefix, nk, err)
			}
			over.Logging.Keep = v
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_MAPPER_JSON":
			over.Options.Mapper = rawOrNil(val)
		case "OPTIONS_REDUCER_JSON":
			over.Options.Reducer = rawOrNil(val)
		case "OPTIONS_READER_JSON":
			over.Options.Reader = rawOrNil(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = rawOrNil(val)
		case "JOBCONF_JSON":
			if strings.TrimSpace(val) == "" {
				continue
			}
			var m map[string]string
			if err := json.Unmarshal([]byte(val), &m); err != nil {
				return over, fmt.Errorf("%s%s: %w", EnvPrefix, nk, err)
			}
			over.JobConf = m
		}
	}
	return over, nil
}

// rawOrNil: 空值视为未设置，避免清空现有配置。
func rawOrNil(s string) json.RawMessage {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.RawMessage(s)
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
