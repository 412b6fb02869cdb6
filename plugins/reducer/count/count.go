package count

import (
	"strconv"

	"hstream/pkg/mapred"
	"hstream/pkg/taskctx"
)

// Options: 计数 reducer 选项。
type Options struct {
	// SkipEmpty: 不输出值个数为 0 的组（例如空输入的末次冲刷）。
	SkipEmpty bool `json:"skip_empty"`
}

// Reducer 输出每组的值个数：<key><delim><n>。
type Reducer struct {
	mapred.BaseReducer
	skipEmpty bool
}

func New(opts *Options) *Reducer {
	r := &Reducer{}
	if opts != nil {
		r.skipEmpty = opts.SkipEmpty
	}
	return r
}

func (r *Reducer) Reduce(key []byte, values [][]byte, c *taskctx.Context) error {
	if len(values) == 0 && r.skipEmpty {
		return nil
	}
	return c.Write(key, strconv.AppendInt(nil, int64(len(values)), 10))
}

var _ mapred.Reducer = (*Reducer)(nil)
