package lifecycle

import (
	"fmt"

	"hstream/internal/offset"
	"hstream/pkg/contract"
	"hstream/pkg/mapred"
	"hstream/pkg/taskctx"
)

type mapLifecycle struct {
	m mapred.Mapper
}

// NewMapLifecycle 包装 Mapper。
// 每条记录先将偏移累加 len(record)+offset.TerminatorWidth，再以累加后的值调用 Map。
func NewMapLifecycle(m mapred.Mapper) Lifecycle { return &mapLifecycle{m: m} }

func (l *mapLifecycle) OnStart(c *taskctx.Context) error {
	if l.m == nil {
		return fmt.Errorf("%w: nil mapper", contract.ErrInvalidInput)
	}
	taskctx.Insert(c, taskctx.OffsetKey, offset.New())
	if err := l.m.Setup(c); err != nil {
		return hookErr("setup", err)
	}
	return nil
}

func (l *mapLifecycle) OnEntry(line []byte, c *taskctx.Context) error {
	off, ok := taskctx.Get(c, taskctx.OffsetKey)
	if !ok || off == nil {
		return fmt.Errorf("%w: %s", contract.ErrMissingState, taskctx.OffsetKey.Name())
	}
	pos := off.Shift(len(line) + offset.TerminatorWidth)
	if err := l.m.Map(pos, line, c); err != nil {
		return hookErr("map", err)
	}
	return nil
}

func (l *mapLifecycle) OnEnd(c *taskctx.Context) error {
	if err := l.m.Cleanup(c); err != nil {
		return hookErr("cleanup", err)
	}
	return nil
}
