package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Compute implements fp(N) = SHA256(kind ‖ canonical_bytes(settings) ‖
// sorted(fp(i) for i in inputs(N))). The caller resolves input fingerprints
// beforehand; reordering the slice here has no effect on the result since
// it is sorted before hashing, matching the spec's invariant that the
// graph's representation order of inputs must not change fp(N).
func Compute(kind string, settings map[string]interface{}, inputFingerprints []string) (string, error) {
	canonical, err := CanonicalBytes(settings)
	if err != nil {
		return "", err
	}

	sorted := make([]string, len(inputFingerprints))
	copy(sorted, inputFingerprints)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(canonical)
	h.Write([]byte{0})
	for _, fp := range sorted {
		h.Write([]byte(fp))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// RootFileMetadata is folded into a root input's (manual_input, read)
// canonical bytes so external file changes invalidate the fingerprint
// chain, per §4.2. Path is normalised to an absolute form by the caller
// before being stored in settings, to avoid relative-path drift when the
// working directory changes.
type RootFileMetadata struct {
	Path  string `json:"__file_path"`
	MTime int64  `json:"__file_mtime"`
	Size  int64  `json:"__file_size"`
}

// FoldRootMetadata returns a copy of settings with root file metadata
// merged in under reserved keys, ready to be passed to Compute.
func FoldRootMetadata(settings map[string]interface{}, meta RootFileMetadata) map[string]interface{} {
	out := make(map[string]interface{}, len(settings)+3)
	for k, v := range settings {
		out[k] = v
	}
	out["__file_path"] = meta.Path
	out["__file_mtime"] = meta.MTime
	out["__file_size"] = meta.Size
	return out
}
