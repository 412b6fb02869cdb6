package jobconf

import "fmt"

// DefaultSeparator: 未配置分隔符时的默认值（单个制表符）。
const DefaultSeparator = "\t"

// Delimiters 保存当前阶段的输入/输出字段分隔符。
// 每个任务启动时解析一次，此后只读。
type Delimiters struct {
	input  []byte
	output []byte
}

// ResolveDelimiters 按阶段读取
// stream.<stage>.input.field.separator / stream.<stage>.output.field.separator，
// 缺省为制表符。分隔符可为任意多字节序列。
func ResolveDelimiters(conf *Configuration) Delimiters {
	stage := conf.Stage().String()
	in := lookup(conf, fmt.Sprintf("stream.%s.input.field.separator", stage))
	out := lookup(conf, fmt.Sprintf("stream.%s.output.field.separator", stage))
	return Delimiters{input: []byte(in), output: []byte(out)}
}

// NewDelimiters 直接以给定分隔符构造。
func NewDelimiters(input, output string) Delimiters {
	return Delimiters{input: []byte(input), output: []byte(output)}
}

// Input 返回输入分隔符（副本）。
func (d Delimiters) Input() []byte { return append([]byte(nil), d.input...) }

// Output 返回输出分隔符（副本）。
func (d Delimiters) Output() []byte { return append([]byte(nil), d.output...) }

func lookup(conf *Configuration, key string) string {
	if v, ok := conf.Get(key); ok {
		return v
	}
	return DefaultSeparator
}
