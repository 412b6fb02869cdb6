package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Stage: 阶段覆盖。任务模式下为空时按 mapreduce.task.ismap 判定；
	// 本地运行时为空表示 map → sort → reduce 全流程。
	Stage string `json:"stage"`

	// 策略名（注册表中的实现名）。
	Mapper  string `json:"mapper"`
	Reducer string `json:"reducer"`

	// 本地运行器输入根与输出工件；Output 为空时写 stdout。
	Inputs []string `json:"inputs"`
	Output string   `json:"output"`

	// JobConf: 补充的作业配置（如分隔符）。任务模式下环境中已有的键优先。
	JobConf map[string]string `json:"jobconf"`

	// CounterGroup: 驱动计数器的 Hadoop counter 组名。
	CounterGroup string `json:"counter_group"`

	Logging Logging `json:"logging"`

	// 本地运行器 I/O 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 级别与可选的轮转文件目录。
type Logging struct {
	Level string `json:"level"`
	// Dir 为空时写 stderr。
	Dir string `json:"dir"`
	// Keep: 轮转归档保留个数；0 表示不清理。
	Keep int `json:"keep"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	Writer string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Mapper  json.RawMessage `json:"mapper"`
	Reducer json.RawMessage `json:"reducer"`
	Reader  json.RawMessage `json:"reader"`
	Writer  json.RawMessage `json:"writer"`
}
