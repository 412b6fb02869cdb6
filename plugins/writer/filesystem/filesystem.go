package filesystem

import (
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hstream/pkg/contract"
)

// Options: 本地运行器输出端选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Atomic: 同目录临时文件 + 替换。默认 true；显式 false 覆盖写。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 仅保留工件基名，不保留目录层级。默认 true。
	Flat *bool `json:"flat,omitempty"`
	// Gzip: 工件名以 .gz 结尾时压缩写出。默认 true。
	Gzip *bool `json:"gzip,omitempty"`
	// PermFile/PermDir: 为 0 时取 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 取 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 实现 contract.Sink：将任务输出写为 OutputDir 下的文件。
type FS struct {
	root    string
	atomic  bool
	flat    bool
	gzip    bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

var _ contract.Sink = (*FS)(nil)

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// New 创建输出端；OutputDir 为空时返回 os.ErrInvalid。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, os.ErrInvalid
	}
	w := &FS{
		root:    opts.OutputDir,
		atomic:  boolOr(opts.Atomic, true),
		flat:    boolOr(opts.Flat, true),
		gzip:    boolOr(opts.Gzip, true),
		permF:   opts.PermFile,
		permD:   opts.PermDir,
		bufSize: opts.BufSize,
	}
	if w.permF == 0 {
		w.permF = 0o644
	}
	if w.permD == 0 {
		w.permD = 0o755
	}
	if w.bufSize <= 0 {
		w.bufSize = 64 * 1024
	}
	return w, nil
}

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.mapPath(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	src := readerWithCtx(ctx, r)
	if w.atomic {
		return w.writeAtomic(dest, src)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	if err := w.copyTo(f, dest, src); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// mapPath: Clean + Join + 越界校验。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	if w.flat {
		rel = filepath.Base(rel)
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", contract.ErrPathInvalid
		}
		return filepath.Join(w.root, rel), nil
	}
	switch {
	case rel == ".", filepath.IsAbs(rel), filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case rel == "..", strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return filepath.Join(w.root, rel), nil
}

// copyTo 经缓冲（及可选 gzip）写入 f，不关闭 f。
func (w *FS) copyTo(f *os.File, dest string, r io.Reader) error {
	bw := bufio.NewWriterSize(f, w.bufSize)
	var dst io.Writer = bw
	var zw *gzip.Writer
	if w.gzip && strings.HasSuffix(strings.ToLower(dest), ".gz") {
		zw = gzip.NewWriter(bw)
		dst = zw
	}
	if _, err := io.Copy(dst, r); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (w *FS) writeAtomic(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	_ = tmp.Chmod(w.permF)
	if err := w.copyTo(tmp, dest, r); err != nil {
		return cleanup(err)
	}
	if err := syncFile(tmp); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 尽力同步父目录元数据
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 每次 Read 前检查取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
