package permission

import (
	"os"
	"path/filepath"
	"strings"
)

// maxLinkDepth bounds how many symlinks are followed on the final component.
const maxLinkDepth = 10

// NormalizePath turns p into the key used by the stores.
//
// Relative paths are made absolute against base, the directory part is
// resolved through the filesystem and symlinks on the final component are
// followed up to maxLinkDepth times. Failures are not errors: the best path
// computed so far is returned, and a link chain that does not end within the
// limit yields the path before link following. Targets that are not
// filesystem paths ("scheme://...") are returned unchanged.
func NormalizePath(base, p string) string {
	if p == "" {
		return p
	}
	if IsURL(p) {
		return p
	}

	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}

	if !filepath.IsAbs(p) {
		if base == "" {
			if wd, err := os.Getwd(); err == nil {
				base = wd
			}
		}
		p = filepath.Join(base, p)
	}
	best := filepath.Clean(p)
	if dir, name := filepath.Split(best); dir != "" {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			best = filepath.Join(resolved, name)
		}
	}
	start := best

	for depth := 0; depth < maxLinkDepth; depth++ {
		dir, name := filepath.Split(best)
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			best = filepath.Join(resolved, name)
		}

		info, err := os.Lstat(best)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			return best
		}

		target, err := os.Readlink(best)
		if err != nil {
			return best
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(best), target)
		}
		best = filepath.Clean(target)
	}

	// Cycle or chain too long: fall back to the unfollowed path so that
	// normalizing the result again yields the same key.
	return start
}

// IsURL reports whether target looks like "scheme://...".
func IsURL(target string) bool {
	i := strings.Index(target, "://")
	if i <= 0 {
		return false
	}
	for _, r := range target[:i] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}
