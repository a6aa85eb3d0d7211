package tool

import (
	"os"
	"path/filepath"
	"strings"
)

// resolvePath joins a model-supplied relative path against the workspace
// root and rejects anything that would land outside it, including escapes
// through symlinks. "." resolves to the root itself.
func resolvePath(root, rel string) (string, *Error) {
	if rel == "" {
		return "", invalidArguments("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", pathEscape("absolute paths are not allowed: %s", rel)
	}

	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", pathEscape("path escapes workspace: %s", rel)
	}
	if cleaned == "." {
		return root, nil
	}

	joined := filepath.Join(root, cleaned)
	relCheck, err := filepath.Rel(root, joined)
	if err != nil || relCheck == ".." || strings.HasPrefix(relCheck, ".."+string(filepath.Separator)) {
		return "", pathEscape("path escapes workspace: %s", rel)
	}

	if escaped, err := escapesThroughSymlink(root, joined); err != nil {
		return "", executionError("resolve %s: %v", rel, err)
	} else if escaped {
		return "", pathEscape("path escapes workspace via symlink: %s", rel)
	}

	return joined, nil
}

const maxSymlinkHops = 40

// escapesThroughSymlink reports whether the real location of path leaves
// the real root. The path itself may not exist yet (fs_write creates it),
// and a dangling symlink never resolves through EvalSymlinks, so the final
// component is followed by hand before the ancestors are probed.
func escapesThroughSymlink(root, path string) (bool, error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false, err
	}
	return escapesRealRoot(realRoot, path, 0)
}

func escapesRealRoot(realRoot, path string, hops int) (bool, error) {
	if hops > maxSymlinkHops {
		return true, nil
	}

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return false, err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		return escapesRealRoot(realRoot, filepath.Clean(target), hops+1)
	}

	probe := path
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			return outsideRoot(realRoot, resolved), nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return false, nil
		}
		probe = parent
	}
}

func outsideRoot(realRoot, path string) bool {
	rel, err := filepath.Rel(realRoot, path)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
