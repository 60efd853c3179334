package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

const Version = 1

// Record is the persisted form of one grid cell.
type Record struct {
	Type      string `json:"type" yaml:"type"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`

	// Producer-only fields.
	TicksDone        *float64           `json:"ticksDone,omitempty" yaml:"ticksDone,omitempty"`
	ConsumptionStock map[string]float64 `json:"consumptionStock,omitempty" yaml:"consumptionStock,omitempty"`
	ProductionStock  map[string]float64 `json:"productionStock,omitempty" yaml:"productionStock,omitempty"`
}

// Layout maps "{x}x{y}" cell keys to records.
type Layout map[string]Record

// Keys returns the layout keys in lexical order.
func (l Layout) Keys() []string {
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dropped describes an entry discarded while decoding.
type Dropped struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// DecodeJSON parses a persisted layout. A container that is not an object yields an
// empty layout; entries that are not objects or have no type are dropped and
// reported. Only malformed JSON is an error.
func DecodeJSON(raw []byte) (Layout, []Dropped, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode layout: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Layout{}, nil, nil
	}
	return fromObject(obj)
}

func fromObject(obj map[string]any) (Layout, []Dropped, error) {
	out := make(Layout, len(obj))
	var dropped []Dropped
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec, reason := decodeRecord(obj[k])
		if reason != "" {
			dropped = append(dropped, Dropped{Key: k, Reason: reason})
			continue
		}
		out[k] = rec
	}
	return out, dropped, nil
}

func decodeRecord(v any) (Record, string) {
	m, ok := v.(map[string]any)
	if !ok {
		return Record{}, "not an object"
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		return Record{}, "missing type"
	}
	rec := Record{Type: typ}
	if d, ok := m["direction"].(string); ok {
		rec.Direction = d
	}
	if t, ok := number(m["ticksDone"]); ok {
		rec.TicksDone = &t
	}
	rec.ConsumptionStock = numberMap(m["consumptionStock"])
	rec.ProductionStock = numberMap(m["productionStock"])
	return rec, ""
}

// numberMap keeps the numeric values of an object and ignores everything else.
func numberMap(v any) map[string]float64 {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, raw := range m {
		if n, ok := number(raw); ok {
			out[k] = n
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func EncodeJSON(l Layout) ([]byte, error) {
	if l == nil {
		l = Layout{}
	}
	return json.MarshalIndent(l, "", "  ")
}

func EncodeYAML(l Layout) ([]byte, error) {
	if l == nil {
		l = Layout{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeYAML applies the same tolerance rules as DecodeJSON.
func DecodeYAML(raw []byte) (Layout, []Dropped, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode layout: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Layout{}, nil, nil
	}
	return fromObject(obj)
}

// Header is the first, uncompressed-JSON line of a layout file.
type Header struct {
	Version       int       `json:"version"`
	Tick          uint64    `json:"tick"`
	CatalogDigest string    `json:"catalog_digest,omitempty"`
	SavedAt       time.Time `json:"saved_at"`
}

type File struct {
	Header Header
	Layout Layout
}

// WriteFile writes a zstd stream holding a header line followed by the JSON layout.
func WriteFile(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := Write(out, f); err != nil {
		return err
	}
	return out.Close()
}

func Write(w io.Writer, f File) error {
	if f.Header.Version == 0 {
		f.Header.Version = Version
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(f.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	body, err := EncodeJSON(f.Layout)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(body); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadFile reads a file written by WriteFile. Dropped entries are returned
// alongside the layout.
func ReadFile(path string) (File, []Dropped, error) {
	in, err := os.Open(path)
	if err != nil {
		return File{}, nil, err
	}
	defer in.Close()
	return Read(in)
}

func Read(r io.Reader) (File, []Dropped, error) {
	var f File
	dec, err := zstd.NewReader(r)
	if err != nil {
		return f, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return f, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &f.Header); err != nil {
		return f, nil, fmt.Errorf("decode header: %w", err)
	}
	if f.Header.Version != Version {
		return f, nil, fmt.Errorf("unsupported layout version %d", f.Header.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return f, nil, err
	}
	layout, dropped, err := DecodeJSON(body)
	if err != nil {
		return f, nil, err
	}
	f.Layout = layout
	return f, dropped, nil
}
