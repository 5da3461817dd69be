package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modelrunner/internal/common/fsutil"
)

// ScanGGUF builds entries for every *.gguf file in dir, using backend as the
// discriminator. The id is the full filename including extension.
func ScanGGUF(dir, backend string) ([]Entry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	items, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []Entry
	for _, it := range items {
		if it.IsDir() {
			continue
		}
		name := it.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		out = append(out, Entry{
			ID:           name,
			Backend:      backend,
			Artifact:     &Artifact{Path: filepath.Join(abs, name)},
			Quantization: quantFromName(name),
		})
	}
	return out, nil
}

// quantFromName picks a llama.cpp quantization label (Q4_K_M, Q8_0, F16...)
// out of a GGUF filename.
func quantFromName(name string) []string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.FieldsFunc(stem, func(r rune) bool { return r == '.' || r == '-' })
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.ToUpper(parts[i])
		q := strings.TrimPrefix(p, "I")
		if len(q) >= 2 && q[0] == 'Q' && q[1] >= '0' && q[1] <= '9' {
			return []string{p}
		}
		if p == "F16" || p == "F32" || p == "BF16" {
			return []string{p}
		}
	}
	return nil
}
