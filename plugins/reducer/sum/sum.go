package sum

import (
	"bytes"
	"fmt"
	"strconv"

	"hstream/pkg/contract"
	"hstream/pkg/mapred"
	"hstream/pkg/taskctx"
)

// Options: 求和 reducer 选项。
type Options struct {
	// SkipInvalid: 跳过无法解析为整数的值（计入 sum/invalid），否则报错。
	SkipInvalid bool `json:"skip_invalid"`
}

// Reducer 将每组的十进制整数值求和，输出 <key><delim><sum>。
type Reducer struct {
	mapred.BaseReducer
	skip    bool
	invalid int64
}

func New(opts *Options) *Reducer {
	r := &Reducer{}
	if opts != nil {
		r.skip = opts.SkipInvalid
	}
	return r
}

func (r *Reducer) Reduce(key []byte, values [][]byte, c *taskctx.Context) error {
	var total int64
	for _, v := range values {
		n, err := strconv.ParseInt(string(bytes.TrimSpace(v)), 10, 64)
		if err != nil {
			if r.skip {
				r.invalid++
				continue
			}
			return fmt.Errorf("%w: key %q value %q: %v", contract.ErrInvalidInput, key, v, err)
		}
		total += n
	}
	return c.Write(key, strconv.AppendInt(nil, total, 10))
}

// Cleanup 上报被跳过的值个数。
func (r *Reducer) Cleanup(c *taskctx.Context) error {
	if r.invalid == 0 {
		return nil
	}
	return taskctx.Reporter(c).IncrCounter("sum", "invalid", r.invalid)
}

var _ mapred.Reducer = (*Reducer)(nil)
