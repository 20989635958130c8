package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samcharles93/symcache/internal/symstore"
)

const envCachesDir = "SYMCACHE_CACHES_DIR"

// resolveCachesDir picks the caches directory from the flag, then the environment.
func resolveCachesDir(flag string) (string, error) {
	dir := strings.TrimSpace(flag)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envCachesDir))
	}
	if dir == "" {
		return "", fmt.Errorf("--caches-dir is required unless %s or caches_dir in %s is set", envCachesDir, configPath())
	}
	return dir, nil
}

// resolveCachePath turns a command argument into a cache file path. Arguments that name an
// existing file are used as is; anything else is looked up as <dir>/<arg>.symc.
func resolveCachePath(arg, dirFlag string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("cache argument is empty")
	}
	if st, err := os.Stat(arg); err == nil && !st.IsDir() {
		return filepath.Clean(arg), nil
	}
	if looksLikePath(arg) {
		return "", fmt.Errorf("cache file not found: %s", arg)
	}

	dir, err := resolveCachesDir(dirFlag)
	if err != nil {
		return "", fmt.Errorf("%s is not a file: %w", arg, err)
	}
	if err := symstore.ValidateName(arg); err != nil {
		return "", err
	}
	path := filepath.Join(dir, arg+symstore.Ext)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cache %q not found in %s", arg, dir)
	}
	return path, nil
}

func looksLikePath(v string) bool {
	return strings.ContainsAny(v, `/\`) || strings.HasSuffix(strings.ToLower(v), symstore.Ext)
}

// discoverCaches lists the cache files in dir, sorted.
func discoverCaches(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("caches path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), symstore.Ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
