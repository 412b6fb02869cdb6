package filesystem

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hstream/pkg/contract"
)

// Options 为文件系统输入源的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 递归时跳过的目录基名（大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Include: 文件基名的 glob（filepath.Match 语法），为空表示全部。
	// 例如 "part-*"。仅作用于目录内的文件，显式列出的文件不受限。
	Include string `json:"include"`
	// SkipHidden: 跳过以 '_' 或 '.' 开头的文件与目录（_SUCCESS、.crc 等作业旁路文件）。
	// 默认 true。
	SkipHidden *bool `json:"skip_hidden,omitempty"`
	// Gunzip: 以 .gz 结尾的文件透明解压。默认 true。
	Gunzip *bool `json:"gunzip,omitempty"`
}

// FileSystem 实现基于文件系统与 STDIN 的 contract.Source。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	include    string
	skipHidden bool
	gunzip     bool
	stdin      io.Reader
}

var _ contract.Source = (*FileSystem)(nil)

// New 创建输入源；Include 非法时返回错误。
func New(opts *Options) (*FileSystem, error) {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, excludeDir: map[string]struct{}{}, skipHidden: true, gunzip: true, stdin: os.Stdin}
	if opts == nil {
		return r, nil
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name != "" {
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	if opts.Include != "" {
		if _, err := filepath.Match(opts.Include, ""); err != nil {
			return nil, fmt.Errorf("%w: include %q: %v", contract.ErrInvalidInput, opts.Include, err)
		}
		r.include = opts.Include
	}
	if opts.SkipHidden != nil {
		r.skipHidden = *opts.SkipHidden
	}
	if opts.Gunzip != nil {
		r.gunzip = *opts.Gunzip
	}
	return r, nil
}

// WithStdin 替换 STDIN 来源（测试使用）。
func (r *FileSystem) WithStdin(in io.Reader) *FileSystem {
	r.stdin = in
	return r
}

// Iterate 遍历 roots，按稳定顺序对每个常规文件调用 yield。
// roots 为空或仅为 "-" 时读取 STDIN；"-" 不得与其他根混用。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(id contract.InputID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return yield(contract.InputID("stdin"), r.buffered(io.NopCloser(r.stdin)))
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}
	for _, root := range roots {
		if err := r.iterateRoot(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateRoot(ctx context.Context, root string, yield func(contract.InputID, io.ReadCloser) error) error {
	// Stat 跟随符号链接：指向常规文件的链接可读，指向目录的链接仅在作为根时展开
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.open(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.InputID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（目录符号链接不跟随）
	for _, e := range entries {
		if !e.IsDir() || r.hidden(e.Name()) {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	// 再文件
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || r.hidden(e.Name()) || !r.included(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		t, err := os.Stat(p)
		if err != nil {
			return err
		}
		// 设备、FIFO 与指向目录的链接跳过
		if !t.Mode().IsRegular() {
			continue
		}
		if err := r.open(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) hidden(name string) bool {
	return r.skipHidden && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, "."))
}

func (r *FileSystem) included(name string) bool {
	if r.include == "" {
		return true
	}
	ok, _ := filepath.Match(r.include, name)
	return ok
}

func (r *FileSystem) open(p string, yield func(contract.InputID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	var rc io.ReadCloser = f
	if r.gunzip && strings.HasSuffix(strings.ToLower(p), ".gz") {
		zr, err := gzip.NewReader(bufio.NewReaderSize(f, r.bufSize))
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: gunzip %s: %w", contract.ErrIO, p, err)
		}
		rc = &gzipCloser{Reader: zr, f: f}
	}
	brc := r.buffered(rc)
	if err := yield(contract.NormalizeInputID(p), brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

func (r *FileSystem) buffered(rc io.ReadCloser) *bufferedCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(rc, r.bufSize), c: rc}
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

type gzipCloser struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipCloser) Close() error {
	zerr := g.Reader.Close()
	if err := g.f.Close(); err != nil {
		return err
	}
	return zerr
}
