package config

import "encoding/json"

// DefaultTemplateConfig 返回一个可直接本地运行的配置模板：
// wordcount → sum，输入为 STDIN（"-"），输出到 out/part-00000；
// 选项包含全部键，值为中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Mapper:       "wordcount",
		Reducer:      "sum",
		Inputs:       []string{"-"},
		Output:       "part-00000",
		CounterGroup: d.CounterGroup,
		JobConf: map[string]string{
			"stream.map.output.field.separator":    "\t",
			"stream.reduce.input.field.separator":  "\t",
			"stream.reduce.output.field.separator": "\t",
		},
		Logging:    Logging{Level: "info"},
		Components: d.Components,
	}
	cfg.Options.Mapper = json.RawMessage(`{
  "lowercase": true,
  "value": "1"
}`)
	cfg.Options.Reducer = json.RawMessage(`{
  "skip_invalid": false
}`)
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "include": "",
  "skip_hidden": true,
  "gunzip": true
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": true,
  "gzip": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
