package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/openfroyo/provision/pkg/engine"
)

// DefaultMavenRepository is used when no repository is configured.
const DefaultMavenRepository = "https://repo1.maven.org/maven2"

// MavenSource serves mvn:group/artifact[/version[/type[/classifier]]]
// locations from a Maven 2 layout repository. A missing or LATEST version is
// resolved from the artifact's maven-metadata.xml.
type MavenSource struct {
	repository string
	fetcher    engine.Fetcher
}

// NewMavenSource creates a source that reads repository through fetcher.
func NewMavenSource(repository string, fetcher engine.Fetcher) *MavenSource {
	if repository == "" {
		repository = DefaultMavenRepository
	}
	return &MavenSource{repository: strings.TrimSuffix(repository, "/"), fetcher: fetcher}
}

// Coordinates identify an artifact in a Maven repository.
type Coordinates struct {
	Group      string
	Artifact   string
	Version    string
	Type       string
	Classifier string
}

// ParseCoordinates parses the opaque part of an mvn: location.
func ParseCoordinates(opaque string) (Coordinates, error) {
	parts := strings.Split(opaque, "/")
	if len(parts) < 2 || len(parts) > 5 {
		return Coordinates{}, fmt.Errorf("invalid maven coordinates %q", opaque)
	}
	c := Coordinates{Group: parts[0], Artifact: parts[1], Type: "jar"}
	if len(parts) > 2 {
		c.Version = parts[2]
	}
	if len(parts) > 3 && parts[3] != "" {
		c.Type = parts[3]
	}
	if len(parts) > 4 {
		c.Classifier = parts[4]
	}
	if c.Group == "" || c.Artifact == "" {
		return Coordinates{}, fmt.Errorf("invalid maven coordinates %q", opaque)
	}
	return c, nil
}

// Path returns the repository-relative path of the artifact file.
func (c Coordinates) Path() string {
	name := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return c.dir() + "/" + c.Version + "/" + name + "." + c.Type
}

func (c Coordinates) dir() string {
	return strings.ReplaceAll(c.Group, ".", "/") + "/" + c.Artifact
}

// Open fetches the artifact named by u.
func (s *MavenSource) Open(ctx context.Context, u *url.URL, verifyCertificate bool) (io.ReadCloser, error) {
	c, err := ParseCoordinates(mavenOpaque(u))
	if err != nil {
		return nil, err
	}
	if c.Version == "" || c.Version == "LATEST" || c.Version == "RELEASE" {
		v, err := s.latest(ctx, c, verifyCertificate)
		if err != nil {
			return nil, err
		}
		c.Version = v
	}
	return s.fetcher.Fetch(ctx, s.repository+"/"+c.Path(), verifyCertificate)
}

type mavenMetadata struct {
	Versioning struct {
		Latest   string   `xml:"latest"`
		Release  string   `xml:"release"`
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

func (s *MavenSource) latest(ctx context.Context, c Coordinates, verifyCertificate bool) (string, error) {
	rc, err := s.fetcher.Fetch(ctx, s.repository+"/"+c.dir()+"/maven-metadata.xml", verifyCertificate)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var md mavenMetadata
	if err := xml.NewDecoder(rc).Decode(&md); err != nil {
		return "", fmt.Errorf("invalid maven metadata for %s/%s: %w", c.Group, c.Artifact, err)
	}
	v := md.Versioning
	switch {
	case v.Release != "":
		return v.Release, nil
	case v.Latest != "":
		return v.Latest, nil
	case len(v.Versions) > 0:
		return v.Versions[len(v.Versions)-1], nil
	}
	return "", fmt.Errorf("no versions published for %s/%s", c.Group, c.Artifact)
}

// mavenOpaque returns the coordinates part of an mvn: URL, dropping an
// optional leading "//" some writers add.
func mavenOpaque(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return strings.TrimPrefix(u.Host+u.Path, "/")
}
