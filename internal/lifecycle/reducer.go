package lifecycle

import (
	"fmt"

	"hstream/internal/group"
	"hstream/internal/kv"
	"hstream/pkg/contract"
	"hstream/pkg/mapred"
	"hstream/pkg/taskctx"
)

type reduceLifecycle struct {
	r     mapred.Reducer
	delim []byte
}

// NewReduceLifecycle 包装 Reducer。
//
// 前置条件：输入已按键排序，相同键的记录连续到达。本驱动不排序也不校验；
// 违反时同一键会被拆成多组，分别调用 Reduce。
//
// 输入结束时无条件冲刷末组：即使输入为空，也会以空键与空值列表调用一次 Reduce。
func NewReduceLifecycle(r mapred.Reducer) Lifecycle { return &reduceLifecycle{r: r} }

func (l *reduceLifecycle) OnStart(c *taskctx.Context) error {
	if l.r == nil {
		return fmt.Errorf("%w: nil reducer", contract.ErrInvalidInput)
	}
	d, ok := taskctx.Delimiters(c)
	if !ok {
		return fmt.Errorf("%w: %s", contract.ErrMissingState, taskctx.DelimitersKey.Name())
	}
	// 输入分隔符在任务内不变，启动时取一次
	l.delim = d.Input()
	taskctx.Insert(c, taskctx.GroupKey, group.New())
	if err := l.r.Setup(c); err != nil {
		return hookErr("setup", err)
	}
	return nil
}

func (l *reduceLifecycle) OnEntry(line []byte, c *taskctx.Context) error {
	acc, err := accumulator(c)
	if err != nil {
		return err
	}
	key, value := kv.Split(line, l.delim)
	g, done := acc.Push(key, value)
	if !done {
		return nil
	}
	return l.reduce(g, c)
}

func (l *reduceLifecycle) OnEnd(c *taskctx.Context) error {
	acc, err := accumulator(c)
	if err != nil {
		return err
	}
	if err := l.reduce(acc.Flush(), c); err != nil {
		return err
	}
	if err := l.r.Cleanup(c); err != nil {
		return hookErr("cleanup", err)
	}
	return nil
}

func (l *reduceLifecycle) reduce(g group.Group, c *taskctx.Context) error {
	taskctx.Metrics(c).Add("reduce.groups", 1)
	if err := l.r.Reduce(g.Key, g.Values, c); err != nil {
		return hookErr("reduce", err)
	}
	return nil
}

func accumulator(c *taskctx.Context) (*group.Accumulator, error) {
	acc, ok := taskctx.Get(c, taskctx.GroupKey)
	if !ok || acc == nil {
		return nil, fmt.Errorf("%w: %s", contract.ErrMissingState, taskctx.GroupKey.Name())
	}
	return acc, nil
}
