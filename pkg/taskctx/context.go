// Package taskctx 提供单任务的异构状态注册表（Context Store）。
//
// 注册表以显式的类型描述令牌 Key[T] 为索引，值以不透明方式存储，
// 由泛型访问器 Get/GetMut/Insert/Take 提供类型安全视图。
// 同一 Go 类型的两个逻辑不同的值需使用不同的 Key 才能共存。
//
// Context 由单个生命周期驱动独占持有：每个任务构造一次并显式传递，
// 不做任何加锁，也不得跨 goroutine 共享。
//
// 内置令牌中 OutputKey、OffsetKey、GroupKey、LoggerKey、MetricsKey 的值类型
// 位于本模块 internal 包，外部代码无法命名；外部策略应经由 Write/WriteString、
// Configuration、Delimiters、Reporter、Logger、Metrics 等访问器使用它们。
package taskctx

import (
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"hstream/internal/output"
	"hstream/pkg/contract"
	"hstream/pkg/jobconf"
)

// Key 是类型 T 的描述令牌。每次 NewKey 生成一个独立标识。
type Key[T any] struct {
	id   uint64
	name string
}

var nextID atomic.Uint64

// NewKey 创建新的描述令牌；name 仅用于诊断。
func NewKey[T any](name string) Key[T] {
	return Key[T]{id: nextID.Add(1), name: name}
}

// Name 返回令牌名称。
func (k Key[T]) Name() string { return k.name }

func (k Key[T]) String() string { return k.name + "#" + strconv.FormatUint(k.id, 10) }

// Context: 按令牌索引的异构状态袋。
type Context struct {
	data map[uint64]any
}

// Empty 返回不含任何预置状态的 Context。
func Empty() *Context { return &Context{data: make(map[uint64]any)} }

// New 构造 Context，并立即注册 Configuration、据其解析的 Delimiters
// 以及写向 out 的输出端（使用输出分隔符）。conf 为 nil 时取进程环境。
func New(conf *jobconf.Configuration, out io.Writer) *Context {
	c := Empty()
	if conf == nil {
		conf = jobconf.New()
	}
	delim := jobconf.ResolveDelimiters(conf)
	Insert(c, ConfigurationKey, conf)
	Insert(c, DelimitersKey, delim)
	if out != nil {
		Insert(c, OutputKey, output.New(out, delim.Output(), 0))
	}
	return c
}

// FromEnv 以进程环境构造 Context。
func FromEnv(out io.Writer) *Context { return New(jobconf.New(), out) }

// Get 返回 key 对应值的副本；未注册时返回零值与 false。
func Get[T any](c *Context, key Key[T]) (T, bool) {
	p, ok := GetMut(c, key)
	if !ok {
		var zero T
		return zero, false
	}
	return *p, true
}

// GetMut 返回指向已存储值的指针；修改直接作用于注册表中的实例。
func GetMut[T any](c *Context, key Key[T]) (*T, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.data[key.id]
	if !ok {
		return nil, false
	}
	p, ok := v.(*T)
	return p, ok
}

// Insert 存储 v，覆盖同一 key 下的旧值（不告警）。
func Insert[T any](c *Context, key Key[T], v T) {
	p := new(T)
	*p = v
	c.data[key.id] = p
}

// Take 移除并返回 key 对应的值。
func Take[T any](c *Context, key Key[T]) (T, bool) {
	p, ok := GetMut(c, key)
	if !ok {
		var zero T
		return zero, false
	}
	delete(c.data, key.id)
	return *p, true
}

// Has 报告 key 是否已注册。
func Has[T any](c *Context, key Key[T]) bool {
	_, ok := GetMut(c, key)
	return ok
}

// Len 返回已注册条目数。
func (c *Context) Len() int { return len(c.data) }

// Write 经由注册的输出端写出一条记录。
func (c *Context) Write(key, value []byte) error {
	w, ok := Get(c, OutputKey)
	if !ok || w == nil {
		return fmt.Errorf("%w: %s", contract.ErrMissingState, OutputKey.Name())
	}
	return w.Write(key, value)
}

// WriteString 为字符串形式的便捷写出。
func (c *Context) WriteString(key, value string) error {
	return c.Write([]byte(key), []byte(value))
}

var _ contract.Emitter = (*Context)(nil)
