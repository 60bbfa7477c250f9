package assembler

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// member is one file placed in the archive.
type member struct {
	path    string
	kind    string
	vendor  string
	records *int
	data    []byte
}

// writeArchive lists every member in the manifest, then writes the members
// and manifest.json to dir/name through a temporary file.
func writeArchive(dir, name string, members []member, m Manifest) (path string, _ Manifest, err error) {
	for _, mem := range members {
		sum := sha256.Sum256(mem.data)
		m.Files = append(m.Files, FileEntry{
			Path:    mem.path,
			Kind:    mem.kind,
			Vendor:  mem.vendor,
			Records: mem.records,
			SHA256:  hex.EncodeToString(sum[:]),
			Size:    int64(len(mem.data)),
		})
	}
	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", m, fmt.Errorf("encode manifest: %w", err)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", m, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", m, fmt.Errorf("create package: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	all := append(members, member{path: ManifestName, data: manifestJSON})
	for _, mem := range all {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     mem.path,
			Method:   zip.Deflate,
			Modified: m.Package.Created,
		})
		if err != nil {
			return "", m, fmt.Errorf("add %s: %w", mem.path, err)
		}
		if _, err := w.Write(mem.data); err != nil {
			return "", m, fmt.Errorf("write %s: %w", mem.path, err)
		}
	}
	if err = zw.Close(); err != nil {
		return "", m, fmt.Errorf("finish package: %w", err)
	}
	if err = tmp.Chmod(0o640); err != nil {
		return "", m, err
	}
	if err = tmp.Close(); err != nil {
		return "", m, err
	}
	path = filepath.Join(dir, name)
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", m, fmt.Errorf("publish package: %w", err)
	}
	return path, m, nil
}
