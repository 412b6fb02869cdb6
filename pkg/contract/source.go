package contract

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// InputID: 输入源逻辑标识（通常为规范化路径；STDIN 为 "stdin"）。
type InputID string

// ArtifactID: 输出工件标识，与 InputID 共用表示。
type ArtifactID = InputID

// Source: 本地运行器的输入源抽象（文件/目录/STDIN）。
// 约束：
//  1. 遍历顺序稳定（字典序，目录优先）；
//  2. InputID 去平台差异化；
//  3. yield 返回错误即中止遍历，ReadCloser 由 yield 负责关闭。
type Source interface {
	Iterate(ctx context.Context, roots []string, yield func(id InputID, r io.ReadCloser) error) error
}

// Sink: 将任务输出持久化到目标介质。同一 ArtifactID 单写者。
type Sink interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

var (
	// ErrPathInvalid: 工件标识映射为无效/越界路径（绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)

// NormalizeInputID 规范化路径：正斜杠分隔，清理 . 与 ..，不做隐式绝对化。
func NormalizeInputID(p string) InputID {
	return InputID(path.Clean(strings.ReplaceAll(p, `\`, "/")))
}
