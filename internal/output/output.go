package output

import (
	"bufio"
	"io"

	"hstream/pkg/contract"
)

// Terminator: 输出记录终止符。
const Terminator = '\n'

// Writer 将 key/value 以 key‖delim‖value‖'\n' 的原始字节写出。
// 不转义、不重编码。首个写错误被保留（粘滞），后续写入直接返回该错误。
type Writer struct {
	bw    *bufio.Writer
	delim []byte
	err   error
	n     int64
}

// New 以输出分隔符构造 Writer；bufSize<=0 使用 64KiB。
func New(w io.Writer, delim []byte, bufSize int) *Writer {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &Writer{bw: bufio.NewWriterSize(w, bufSize), delim: append([]byte(nil), delim...)}
}

// Write 写出一条记录。
func (w *Writer) Write(key, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.bw.Write(key); err != nil {
		w.err = err
		return err
	}
	if _, err := w.bw.Write(w.delim); err != nil {
		w.err = err
		return err
	}
	if _, err := w.bw.Write(value); err != nil {
		w.err = err
		return err
	}
	if err := w.bw.WriteByte(Terminator); err != nil {
		w.err = err
		return err
	}
	w.n++
	return nil
}

// Flush 刷出缓冲。
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.bw.Flush(); err != nil {
		w.err = err
	}
	return w.err
}

// Err 返回首个写错误。
func (w *Writer) Err() error { return w.err }

// Records 返回已成功写出的记录数。
func (w *Writer) Records() int64 { return w.n }

var _ contract.Emitter = (*Writer)(nil)
