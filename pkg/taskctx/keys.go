package taskctx

import (
	"hstream/internal/diag"
	"hstream/internal/group"
	"hstream/internal/offset"
	"hstream/internal/output"
	"hstream/pkg/jobconf"
	"hstream/pkg/reporter"
)

// 驱动内部使用的内置令牌。钩子可以读取，但一般不应修改。
// 值类型来自 internal 包的令牌仅供本模块内的驱动与内置策略直接使用；
// 模块外请用下方访问器（输出经 Context.Write）。
var (
	ConfigurationKey = NewKey[*jobconf.Configuration]("configuration")
	DelimitersKey    = NewKey[jobconf.Delimiters]("delimiters")
	OutputKey        = NewKey[*output.Writer]("output")
	OffsetKey        = NewKey[*offset.Offset]("offset")
	GroupKey         = NewKey[*group.Accumulator]("group")
	ReporterKey      = NewKey[*reporter.Reporter]("reporter")
	LoggerKey        = NewKey[*diag.Logger]("logger")
	MetricsKey       = NewKey[*diag.Metrics]("metrics")
)

// Configuration 返回作业配置（未注册时为 nil）。
func Configuration(c *Context) *jobconf.Configuration {
	conf, _ := Get(c, ConfigurationKey)
	return conf
}

// Delimiters 返回当前阶段分隔符。
func Delimiters(c *Context) (jobconf.Delimiters, bool) { return Get(c, DelimitersKey) }

// Reporter 返回旁路通道（未注册时为 nil，nil 上调用为 no-op）。
func Reporter(c *Context) *reporter.Reporter {
	r, _ := Get(c, ReporterKey)
	return r
}

// Logger 返回结构化日志器（可能为 nil）。
func Logger(c *Context) *diag.Logger {
	l, _ := Get(c, LoggerKey)
	return l
}

// Metrics 返回驱动计数器（可能为 nil，nil 上调用为 no-op）。
func Metrics(c *Context) *diag.Metrics {
	m, _ := Get(c, MetricsKey)
	return m
}
