package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/parkerhq/fleetaudit/pkg/errors"
	"github.com/parkerhq/fleetaudit/pkg/hosting"
	"github.com/parkerhq/fleetaudit/pkg/manifest"
)

// skipDirs are directory names never scanned for manifests.
var skipDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	"__pycache__":  true,
}

// ReadManifestFiles walks a local checkout and returns the contents of every
// file a parser supports, keyed by path relative to root. Hidden directories
// and the usual dependency/artifact directories are skipped.
func ReadManifestFiles(root string, parsers []manifest.Parser) (map[string][]byte, error) {
	if len(parsers) == 0 {
		parsers = manifest.DefaultParsers()
	}

	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if !supported(name, parsers) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files[rel] = data
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "scan %s for manifests", root)
	}
	return files, nil
}

func supported(name string, parsers []manifest.Parser) bool {
	for _, p := range parsers {
		if p.Supports(name) {
			return true
		}
	}
	return false
}

// LoadRepoList reads a repository list file: one repository per line, given
// as a URL or "owner/name", with an optional second whitespace-separated
// field naming a local checkout path. Blank lines and #-comments are skipped.
func LoadRepoList(path string) ([]hosting.Repository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read repository list")
	}

	var repos []hosting.Repository
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		repo, err := hosting.ParseRepoURL(fields[0])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRepoURL, err, "line %d of %s", i+1, path)
		}
		if len(fields) > 1 {
			repo.LocalPath = fields[1]
		}
		repos = append(repos, repo)
	}
	if len(repos) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "repository list %s names no repositories", path)
	}
	return repos, nil
}
