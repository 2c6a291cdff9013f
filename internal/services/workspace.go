package services

import (
	"io/fs"
	"os"
	"path/filepath"
)

// WorkspaceInspector reports the total on-disk size of a workspace. A
// missing workspace is zero usage, not an error; the workspace may have
// been reaped already.
type WorkspaceInspector interface {
	DiskUsage(path string) (int64, error)
}

// FilesystemInspector measures workspaces on the local filesystem.
type FilesystemInspector struct{}

func (FilesystemInspector) DiskUsage(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return total, nil
}
