package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"factorygrid.ai/internal/persistence/snapshot"
)

// layoutFormat picks json, yaml or zst from an explicit value or the file name.
func layoutFormat(explicit, path string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(explicit))
	if f == "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".zst":
			f = "zst"
		case ".yaml", ".yml":
			f = "yaml"
		default:
			f = "json"
		}
	}
	switch f {
	case "json", "yaml", "zst":
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want json, yaml or zst)", explicit)
	}
}

func readLayout(path string) (snapshot.Layout, []snapshot.Dropped, error) {
	format, err := layoutFormat("", path)
	if err != nil {
		return nil, nil, err
	}
	if format == "zst" {
		f, dropped, err := snapshot.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return f.Layout, dropped, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if format == "yaml" {
		return snapshot.DecodeYAML(raw)
	}
	return snapshot.DecodeJSON(raw)
}

func writeLayout(w io.Writer, format string, f snapshot.File) error {
	switch format {
	case "zst":
		return snapshot.Write(w, f)
	case "yaml":
		b, err := snapshot.EncodeYAML(f.Layout)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		b, err := snapshot.EncodeJSON(f.Layout)
		if err != nil {
			return err
		}
		_, err = w.Write(append(b, '\n'))
		return err
	}
}
