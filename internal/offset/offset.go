package offset

// TerminatorWidth: 每条记录被剥离的行终止符所计入的字节宽度。
const TerminatorWidth = 2

// Offset 记录 map 侧的累计字节偏移，作为记录的代理键。
type Offset struct {
	n int64
}

// New 从 0 开始。
func New() *Offset { return &Offset{} }

// Shift 累加 n 并返回新的总量。
func (o *Offset) Shift(n int) int64 {
	o.n += int64(n)
	return o.n
}

// Value 返回当前偏移。
func (o *Offset) Value() int64 { return o.n }
