package source

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"dsar/pkg/platform/sentinel"
)

// maxMemberSize bounds a single archive member read into memory.
const maxMemberSize = 512 << 20

// Archive is a read-only view over a zipped vendor export. Member names
// are validated on open so no caller ever sees an absolute or escaping path.
type Archive struct {
	vendor string
	path   string
	zr     *zip.ReadCloser
	files  map[string]*zip.File
	names  []string
}

// OpenArchive opens a zip export. A missing file is sentinel.ErrNotFound; a
// corrupt or unsafe archive is a MalformedSourceError.
func OpenArchive(vendor, filePath string) (*Archive, error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("export %s: %w", filePath, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("stat export: %w", err)
	}

	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, Malformed(vendor, filePath, "not a readable zip archive", err)
	}

	a := &Archive{vendor: vendor, path: filePath, zr: zr, files: make(map[string]*zip.File)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if strings.HasPrefix(name, "/") || strings.Contains(name, "..") || !fs.ValidPath(name) {
			_ = zr.Close()
			return nil, Malformed(vendor, filePath, fmt.Sprintf("unsafe member path %q", name), nil)
		}
		a.files[name] = f
		a.names = append(a.names, name)
	}
	return a, nil
}

// Names lists regular members in archive order.
func (a *Archive) Names() []string {
	return a.names
}

// Has reports whether a member exists.
func (a *Archive) Has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// ReadJSON decodes member name into v.
func (a *Archive) ReadJSON(name string, v any) error {
	f, ok := a.files[name]
	if !ok {
		return Malformed(a.vendor, a.path, fmt.Sprintf("missing %s", name), nil)
	}
	rc, err := f.Open()
	if err != nil {
		return Malformed(a.vendor, a.path, fmt.Sprintf("open %s", name), err)
	}
	defer rc.Close()

	if err := json.NewDecoder(io.LimitReader(rc, maxMemberSize)).Decode(v); err != nil {
		return Malformed(a.vendor, a.path, fmt.Sprintf("decode %s", name), err)
	}
	return nil
}

// Dir returns the first path element of a member ("general/2024-01-01.json"
// is in "general"), or "" for top-level members.
func Dir(name string) string {
	dir, _, found := strings.Cut(path.Clean(name), "/")
	if !found {
		return ""
	}
	return dir
}

// Close releases the archive.
func (a *Archive) Close() error {
	return a.zr.Close()
}

// ReadJSONFile decodes a plain JSON export file with the same error
// taxonomy as archives.
func ReadJSONFile(vendor, filePath string, v any) error {
	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("export %s: %w", filePath, sentinel.ErrNotFound)
		}
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return Malformed(vendor, filePath, "invalid JSON", err)
	}
	return nil
}
