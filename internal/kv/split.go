package kv

import "bytes"

// Split 以 delim 的最左出现位置切分记录。
// - 找到：key=record[:n]，value=record[n+len(delim):]；
// - 未找到：key=整条记录，value 为空（非 nil）；
// - 分隔符位于末尾：value 为空。
// 不做裁剪、转义或拷贝；返回值与 record 共享底层数组。
func Split(record, delim []byte) (key, value []byte) {
	n := bytes.Index(record, delim)
	if n < 0 {
		return record, record[len(record):]
	}
	return record[:n], record[n+len(delim):]
}
