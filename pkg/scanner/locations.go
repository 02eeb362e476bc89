package scanner

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/openfroyo/provision/pkg/engine"
)

// hasURLScheme reports whether path carries a URL scheme. Single letter
// schemes are Windows drive letters, not URLs.
func hasURLScheme(path string) bool {
	u, err := url.Parse(path)
	return err == nil && len(u.Scheme) > 1
}

// toLocation turns a descriptor path into an absolute reference. Paths with a
// URL scheme are kept; anything else is treated as a local file path.
func toLocation(path string) (*url.URL, error) {
	if hasURLScheme(path) {
		return url.Parse(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// resolveAgainst resolves ref relative to base unless it is already absolute.
func resolveAgainst(base *url.URL, ref string) (string, error) {
	if hasURLScheme(ref) {
		return ref, nil
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	out := base.ResolveReference(r)
	out.OmitHost = base.OmitHost && out.Host == ""
	return out.String(), nil
}

// placeholderBases returns this.relative and this.absolute for a manifest:
// its directory and its host root, both without a trailing slash.
func placeholderBases(base *url.URL) (relative, absolute string) {
	dir := base.ResolveReference(&url.URL{Path: "."})
	dir.OmitHost = base.OmitHost && dir.Host == ""
	root := base.ResolveReference(&url.URL{Path: "/"})
	root.OmitHost = base.OmitHost && root.Host == ""
	return strings.TrimSuffix(dir.String(), "/"), strings.TrimSuffix(root.String(), "/")
}

func malformedPath(d string, err error) *engine.Error {
	return engine.NewMalformedSpecificationError("path cannot be made into a valid reference", err).WithSpec(d)
}
