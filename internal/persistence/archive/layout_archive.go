package archive

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"factorygrid.ai/internal/persistence/snapshot"
)

const layoutSuffix = ".layout.zst"

type DailyArchiveMeta struct {
	Day           string `json:"day"`
	Tick          uint64 `json:"tick"`
	CatalogDigest string `json:"catalog_digest,omitempty"`
	Layout        string `json:"layout"`
	Cells         int    `json:"cells"`
	CreatedAt     string `json:"created_at"`
}

// ArchiveDaily copies the first layout saved on each UTC day into
// dataDir/archives/<YYYY-MM-DD>/. It returns archived=false when that day already
// has an archive.
func ArchiveDaily(dataDir, layoutPath string, f snapshot.File) (archivedPath string, archived bool, err error) {
	savedAt := f.Header.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	day := savedAt.UTC().Format("2006-01-02")
	archiveDir := filepath.Join(dataDir, "archives", day)
	if _, err := os.Stat(filepath.Join(archiveDir, "meta.json")); err == nil {
		return "", false, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(layoutPath))
	if err := copyFile(layoutPath, dst); err != nil {
		return "", false, err
	}

	meta := DailyArchiveMeta{
		Day:           day,
		Tick:          f.Header.Tick,
		CatalogDigest: f.Header.CatalogDigest,
		Layout:        filepath.Base(dst),
		Cells:         len(f.Layout),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// PruneLayouts deletes all but the newest keep <tick>.layout.zst files in dir.
// Files with a non-numeric name are left alone.
func PruneLayouts(dir string, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type layoutFile struct {
		tick uint64
		path string
	}
	var files []layoutFile
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), layoutSuffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), layoutSuffix), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, layoutFile{tick: tick, path: filepath.Join(dir, e.Name())})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].tick > files[j].tick })
	var removed []string
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			return removed, err
		}
		removed = append(removed, f.path)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
