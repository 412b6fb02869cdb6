package wordcount

import (
	"bytes"
	"regexp"

	"hstream/pkg/mapred"
	"hstream/pkg/taskctx"
)

// Options: 词频 mapper 选项。
type Options struct {
	// Lowercase: 输出前转小写。
	Lowercase bool `json:"lowercase"`
	// Value: 每个词携带的值，默认 "1"。
	Value string `json:"value"`
}

var (
	// 标点后接空白或行尾（例如 ". "）
	puncBreak = regexp.MustCompile(`[[:punct:]](\s|$)`)
	// 连续空白
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// Mapper 将每行切成词并输出 <word><delim><value>。
// 去掉词尾的标点断点，压缩连续空白；空行与空词不输出。
type Mapper struct {
	mapred.BaseMapper
	lower bool
	value []byte
}

// New 构造词频 mapper。
func New(opts *Options) *Mapper {
	m := &Mapper{value: []byte("1")}
	if opts != nil {
		m.lower = opts.Lowercase
		if opts.Value != "" {
			m.value = []byte(opts.Value)
		}
	}
	return m
}

// Map 实现 mapred.Mapper。
func (m *Mapper) Map(_ int64, value []byte, c *taskctx.Context) error {
	for _, w := range m.Words(value) {
		if err := c.Write(w, m.value); err != nil {
			return err
		}
	}
	return nil
}

// Words 返回一行中的词（与 Map 的切分规则一致）。
func (m *Mapper) Words(line []byte) [][]byte {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	line = puncBreak.ReplaceAll(line, []byte("$1"))
	line = multiSpace.ReplaceAll(line, []byte(" "))
	if m.lower {
		line = bytes.ToLower(line)
	}
	var out [][]byte
	for _, w := range bytes.Split(line, []byte(" ")) {
		if len(w) > 0 {
			out = append(out, w)
		}
	}
	return out
}

var _ mapred.Mapper = (*Mapper)(nil)
