package grep

import (
	"fmt"
	"regexp"
	"strconv"

	"hstream/pkg/contract"
	"hstream/pkg/mapred"
	"hstream/pkg/taskctx"
)

// Options: 行过滤 mapper 选项。
type Options struct {
	// Pattern: RE2 正则（必需）。
	Pattern string `json:"pattern"`
	// Invert: 输出不匹配的行。
	Invert bool `json:"invert"`
	// Match: 以首个匹配片段作为键（而非偏移）。
	Match bool `json:"match"`
}

// Mapper 过滤记录：默认输出 <offset><delim><line>，Match 时输出 <match><delim><line>。
// 每条命中累加计数器 grep/matched。
type Mapper struct {
	mapred.BaseMapper
	re     *regexp.Regexp
	invert bool
	match  bool
	hits   int64
}

// New 编译 Pattern；缺失或非法时返回 ErrInvalidInput。
func New(opts *Options) (*Mapper, error) {
	if opts == nil || opts.Pattern == "" {
		return nil, fmt.Errorf("%w: grep pattern required", contract.ErrInvalidInput)
	}
	re, err := regexp.Compile(opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: grep pattern: %v", contract.ErrInvalidInput, err)
	}
	if opts.Invert && opts.Match {
		return nil, fmt.Errorf("%w: grep invert and match are exclusive", contract.ErrInvalidInput)
	}
	return &Mapper{re: re, invert: opts.Invert, match: opts.Match}, nil
}

func (m *Mapper) Map(offset int64, value []byte, c *taskctx.Context) error {
	loc := m.re.FindIndex(value)
	if (loc != nil) == m.invert {
		return nil
	}
	m.hits++
	key := strconv.AppendInt(nil, offset, 10)
	if m.match {
		key = value[loc[0]:loc[1]]
	}
	return c.Write(key, value)
}

// Cleanup 上报命中数。
func (m *Mapper) Cleanup(c *taskctx.Context) error {
	return taskctx.Reporter(c).IncrCounter("grep", "matched", m.hits)
}

var _ mapred.Mapper = (*Mapper)(nil)
