//go:build unix

package filesystem

import (
	"os"

	"golang.org/x/sys/unix"
)

// osReplace: POSIX rename 在同一文件系统内原子替换目标。
func osReplace(tmpPath, dest string) error {
	if err := unix.Rename(tmpPath, dest); err != nil {
		return &os.LinkError{Op: "rename", Old: tmpPath, New: dest, Err: err}
	}
	return nil
}

// syncFile 落盘临时文件内容。
func syncFile(f *os.File) error {
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return &os.PathError{Op: "fsync", Path: f.Name(), Err: err}
	}
	return nil
}

// syncDir 尽力 fsync 父目录，使 rename 持久化。
func syncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return &os.PathError{Op: "open", Path: dir, Err: err}
	}
	defer unix.Close(fd)
	return unix.Fsync(fd)
}
