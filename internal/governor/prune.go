package governor

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// crashDirs are always removed; nothing reads them.
var crashDirs = map[string]bool{
	"Crashpad":      true,
	"Crash Reports": true,
}

// cacheDirs are removed only once a profile outgrows its limit.
var cacheDirs = map[string]bool{
	"Cache":             true,
	"Code Cache":        true,
	"GPUCache":          true,
	"ShaderCache":       true,
	"GrShaderCache":     true,
	"DawnCache":         true,
	"GraphiteDawnCache": true,
}

// pruneProfiles trims every session profile under root and returns the
// bytes removed.
func pruneProfiles(root string, limit int64) int64 {
	if root == "" {
		return 0
	}
	profiles, err := filepath.Glob(filepath.Join(root, "session_*"))
	if err != nil {
		return 0
	}
	var total int64
	for _, p := range profiles {
		total += pruneProfile(p, limit)
	}
	return total
}

func pruneProfile(profile string, limit int64) int64 {
	var removed int64
	for name := range crashDirs {
		removed += removeDir(filepath.Join(profile, name))
	}

	size := dirSize(profile)
	if size <= limit {
		return removed
	}

	log.Info().
		Str("profile", profile).
		Int64("size_mb", size>>20).
		Int64("limit_mb", limit>>20).
		Msg("Profile over cache limit, pruning")

	var targets []string
	_ = filepath.WalkDir(profile, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && cacheDirs[d.Name()] {
			targets = append(targets, path)
			return filepath.SkipDir
		}
		return nil
	})
	for _, t := range targets {
		removed += removeDir(t)
	}
	return removed
}

func removeDir(path string) int64 {
	if _, err := os.Stat(path); err != nil {
		return 0
	}
	size := dirSize(path)
	if err := os.RemoveAll(path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Failed to prune directory")
		return 0
	}
	return size
}

func dirSize(root string) int64 {
	var size int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
