package slabkv

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Security policy is hardcoded and always enforced, adapted from the
// reference storage layer's directory policy down to a single data file:
// the file must be owned by the current user and carry exactly 0600
// permissions. On Create, its parent directory must also be owned by the
// current user and not be world-writable. There are no other path
// restrictions — callers may store the file anywhere else they can write.

func validateParentDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat parent directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("parent path %s is not a directory", dir)
	}
	if info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("parent directory %s is world-writable", dir)
	}
	return validateOwnership(dir, info)
}

func validateOwnership(path string, info os.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("unable to read ownership of %s", path)
	}
	if uid := os.Getuid(); int(stat.Uid) != uid {
		return fmt.Errorf("%s must be owned by current user (uid %d), got uid %d", path, uid, stat.Uid)
	}
	return nil
}

func validateExistingFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm() != 0600 {
		return fmt.Errorf("%s must have 0600 permissions, got %o", path, info.Mode().Perm())
	}
	return validateOwnership(path, info)
}

// secureFileCreate creates path exclusively with 0600 permissions and
// verifies the parent directory is safe to write into. It fails if path
// already exists — Create never overwrites a live store.
func secureFileCreate(path string) (*os.File, error) {
	if err := validateParentDir(path); err != nil {
		return nil, fmt.Errorf("insecure directory for %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	if err := validateExistingFile(path); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("created file failed security validation: %w", err)
	}
	return file, nil
}

// secureFileOpen opens an existing file after validating its ownership
// and permissions.
func secureFileOpen(path string, readOnly bool) (*os.File, error) {
	if err := validateExistingFile(path); err != nil {
		return nil, fmt.Errorf("insecure file %s: %w", path, err)
	}

	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return file, nil
}
