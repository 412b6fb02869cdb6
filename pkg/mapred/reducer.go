package mapred

import "hstream/pkg/taskctx"

// Reducer: reduce 阶段策略。
// values 按到达顺序排列；切片在调用返回后归调用方所有，实现方可保留。
type Reducer interface {
	Setup(c *taskctx.Context) error
	Reduce(key []byte, values [][]byte, c *taskctx.Context) error
	Cleanup(c *taskctx.Context) error
}

// BaseReducer 提供默认钩子：setup/cleanup 为 no-op，
// Reduce 按接收顺序逐个输出 <key><delim><value>。
type BaseReducer struct{}

func (BaseReducer) Setup(*taskctx.Context) error { return nil }

func (BaseReducer) Reduce(key []byte, values [][]byte, c *taskctx.Context) error {
	for _, v := range values {
		if err := c.Write(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (BaseReducer) Cleanup(*taskctx.Context) error { return nil }

// ReduceFunc 将单个函数适配为 Reducer。
type ReduceFunc func(key []byte, values [][]byte, c *taskctx.Context) error

func (ReduceFunc) Setup(*taskctx.Context) error { return nil }

func (f ReduceFunc) Reduce(key []byte, values [][]byte, c *taskctx.Context) error {
	return f(key, values, c)
}

func (ReduceFunc) Cleanup(*taskctx.Context) error { return nil }

// IdentityReducer 原样透传。
func IdentityReducer() Reducer { return BaseReducer{} }

var (
	_ Reducer = BaseReducer{}
	_ Reducer = ReduceFunc(nil)
)
