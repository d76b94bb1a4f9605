package xdg

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chess10kp/dmenud/internal/logging"
)

const defaultDataDirs = "/usr/local/share:/usr/share"

// SearchPath derives the ranked list of application directories from the
// XDG base directory variables. The user-level directory comes first;
// lower index means higher priority. Only existing directories are kept.
func SearchPath(dataHome, dataDirs, home string, logger *logging.Logger) []string {
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	if dataDirs == "" {
		dataDirs = defaultDataDirs
	}

	candidates := []string{dataHome}
	for _, dir := range strings.Split(dataDirs, ":") {
		if dir != "" {
			candidates = append(candidates, dir)
		}
	}

	var result []string
	for _, dir := range candidates {
		appdir := filepath.Join(dir, "applications")
		info, err := os.Stat(appdir)
		if err != nil || !info.IsDir() {
			logger.Debugf("Skipping search path element %s: not a directory", appdir)
			continue
		}
		result = append(result, appdir)
	}

	// A directory listed twice in $XDG_DATA_DIRS is kept; rank matters.
	seen := make(map[string]struct{}, len(result))
	for _, dir := range result {
		if _, dup := seen[dir]; dup {
			logger.Warnf("Search path contains duplicate element %s", dir)
		}
		seen[dir] = struct{}{}
	}

	return result
}

// DesktopFile is one enumerated .desktop file. ID is the path relative to
// the search root, slash-normalized; it is the cross-root deduplication key.
type DesktopFile struct {
	Path string
	ID   string
}

// FindDesktopFiles enumerates regular .desktop files under root. Directory
// symlinks are not followed, so link cycles terminate.
func FindDesktopFiles(root string) ([]DesktopFile, error) {
	var files []DesktopFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".desktop") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, DesktopFile{Path: path, ID: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
