package contract

// Emitter: 记录输出端（key‖delim‖value‖'\n'）。
type Emitter interface {
	Write(key, value []byte) error
}
