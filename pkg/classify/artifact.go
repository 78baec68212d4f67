package classify

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// AssetScheme prefixes references that resolve under the assets directory,
// e.g. "asset:///CatModel.onnx".
const AssetScheme = "asset:///"

// ResolveArtifact turns a model reference into a local file path.
// It accepts a plain path, a file:// URL, or an asset:/// reference
// resolved under assetsDir. The file must exist and carry a supported
// extension.
func ResolveArtifact(ref, assetsDir string, exts ...string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", LoadError(ref, fmt.Errorf("%w: empty model reference", ErrArtifactNotFound))
	}

	var path string
	switch {
	case strings.HasPrefix(ref, AssetScheme):
		name := strings.TrimPrefix(ref, AssetScheme)
		clean := filepath.Clean("/" + name)
		if name == "" || clean == "/" {
			return "", LoadError(ref, fmt.Errorf("%w: empty asset name", ErrArtifactNotFound))
		}
		path = filepath.Join(assetsDir, clean)
	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return "", LoadError(ref, err)
		}
		path = filepath.FromSlash(u.Path)
		if u.Host != "" && u.Host != "localhost" {
			path = filepath.Join(u.Host, path)
		}
	case strings.Contains(ref, "://"):
		return "", LoadError(ref, fmt.Errorf("%w: unsupported scheme", ErrUnsupportedFormat))
	default:
		path = ref
	}

	if len(exts) == 0 {
		exts = []string{".onnx"}
	}
	if !hasExt(path, exts) {
		return "", LoadError(ref, fmt.Errorf("%w: %s (want %s)", ErrUnsupportedFormat, filepath.Ext(path), strings.Join(exts, ", ")))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", LoadError(ref, fmt.Errorf("%w: %s", ErrArtifactNotFound, path))
		}
		return "", LoadError(ref, err)
	}
	if info.IsDir() {
		return "", LoadError(ref, fmt.Errorf("%w: %s is a directory", ErrArtifactNotFound, path))
	}
	return path, nil
}

// DisplayName returns the file name a status line shows for a reference.
func DisplayName(ref string) string {
	ref = strings.TrimPrefix(ref, AssetScheme)
	ref = strings.TrimPrefix(ref, "file://")
	if i := strings.LastIndexAny(ref, `/\`); i >= 0 {
		ref = ref[i+1:]
	}
	if ref == "" {
		return "model"
	}
	return ref
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
