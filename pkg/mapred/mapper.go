// Package mapred 定义用户策略：Mapper 与 Reducer。
//
// 两种构造方式（在构造期选定，无运行期隐式分派）：
//  1. 实现完整的三钩子接口（可嵌入 BaseMapper/BaseReducer 获得默认实现）；
//  2. 仅提供核心变换函数（MapFunc/ReduceFunc），setup/cleanup 为 no-op。
package mapred

import (
	"strconv"

	"hstream/pkg/taskctx"
)

// Mapper: map 阶段策略。
// 钩子严格串行调用，调用期间独占 Context；返回错误即终止任务。
type Mapper interface {
	Setup(c *taskctx.Context) error
	// Map 接收累计字节偏移（代理键）与原始记录字节。
	Map(offset int64, value []byte, c *taskctx.Context) error
	Cleanup(c *taskctx.Context) error
}

// BaseMapper 提供默认钩子：setup/cleanup 为 no-op，Map 原样输出
// <offset><delim><value>。嵌入后按需覆盖。
type BaseMapper struct{}

func (BaseMapper) Setup(*taskctx.Context) error { return nil }

func (BaseMapper) Map(offset int64, value []byte, c *taskctx.Context) error {
	return c.Write(strconv.AppendInt(nil, offset, 10), value)
}

func (BaseMapper) Cleanup(*taskctx.Context) error { return nil }

// MapFunc 将单个函数适配为 Mapper。
type MapFunc func(offset int64, value []byte, c *taskctx.Context) error

func (MapFunc) Setup(*taskctx.Context) error { return nil }

func (f MapFunc) Map(offset int64, value []byte, c *taskctx.Context) error {
	return f(offset, value, c)
}

func (MapFunc) Cleanup(*taskctx.Context) error { return nil }

// IdentityMapper 原样透传。
func IdentityMapper() Mapper { return BaseMapper{} }

var (
	_ Mapper = BaseMapper{}
	_ Mapper = MapFunc(nil)
)
