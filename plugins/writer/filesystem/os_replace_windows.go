//go:build windows

package filesystem

import (
	"os"

	"golang.org/x/sys/windows"
)

// osReplace: MoveFileEx(REPLACE_EXISTING|WRITE_THROUGH) 覆盖目标，返回前落盘。
func osReplace(tmpPath, dest string) error {
	from, err := windows.UTF16PtrFromString(tmpPath)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(dest)
	if err != nil {
		return err
	}
	if err := windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH); err != nil {
		return &os.LinkError{Op: "rename", Old: tmpPath, New: dest, Err: err}
	}
	return nil
}

// syncFile 落盘临时文件内容。
func syncFile(f *os.File) error {
	if err := windows.FlushFileBuffers(windows.Handle(f.Fd())); err != nil {
		return &os.PathError{Op: "flush", Path: f.Name(), Err: err}
	}
	return nil
}

// syncDir: 目录无法 fsync；WRITE_THROUGH 已覆盖 rename 的持久化。
func syncDir(string) error { return nil }
