//go:build !unix && !windows

package filesystem

import "os"

func osReplace(tmpPath, dest string) error { return os.Rename(tmpPath, dest) }

func syncFile(f *os.File) error { return f.Sync() }

func syncDir(string) error { return nil }
