package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/transports/ssh"
	"github.com/openfroyo/provision/pkg/transports/ssh/sshtest"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readAll(t *testing.T, rc io.ReadCloser, err error) string {
	t.Helper()
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(data)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in     string
		scheme string
	}{
		{"http://repo.test/a.jar", "http"},
		{"HTTPS://repo.test/a.jar", "https"},
		{"mvn:org.example/api/1.0", "mvn"},
		{"relative/a.jar", "file"},
		{"/abs/a.jar", "file"},
	}
	for _, tt := range tests {
		u, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if u.Scheme != tt.scheme {
			t.Errorf("Parse(%q).Scheme = %q, want %q", tt.in, u.Scheme, tt.scheme)
		}
	}
}

func TestFileSource(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"b.jar":          "b",
		"a.txt":          "a",
		"sub/c.txt":      "c",
		".hidden/d.txt":  "d",
		"sub/deep/e.txt": "e",
	})
	m := NewDefault(Options{}, zerolog.Nop())
	defer m.Close()

	entries, err := m.List(context.Background(), root)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{".hidden/d.txt", "a.txt", "b.jar", "sub/c.txt", "sub/deep/e.txt"}
	if strings.Join(entries, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, entries)
	}

	rc, err := m.Fetch(context.Background(), "file://"+filepath.ToSlash(filepath.Join(root, "sub", "c.txt")), true)
	if got := readAll(t, rc, err); got != "c" {
		t.Errorf("expected 'c', got %q", got)
	}

	if _, err := m.List(context.Background(), filepath.Join(root, "missing")); err == nil {
		t.Error("expected listing a missing root to fail")
	}
	if _, err := m.List(context.Background(), filepath.Join(root, "a.txt")); err == nil {
		t.Error("expected listing a file to fail")
	}
}

func TestFileSource_SkipsUnreadableSubdirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "a", "locked/b.txt": "b"})
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(locked, 0755)

	entries, err := NewFileSource(zerolog.Nop()).Walk(context.Background(), mustParse(t, root))
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	if len(entries) != 1 || entries[0] != "a.txt" {
		t.Errorf("expected only a.txt, got %v", entries)
	}
}

func TestHTTPSource(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.UserAgent()
		if r.URL.Path != "/profiles/main.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "scan-bundle:a.jar\n")
	}))
	defer srv.Close()

	m := NewDefault(Options{HTTPTimeout: 5 * time.Second}, zerolog.Nop())
	defer m.Close()

	rc, err := m.Fetch(context.Background(), srv.URL+"/profiles/main.txt", true)
	if got := readAll(t, rc, err); got != "scan-bundle:a.jar\n" {
		t.Errorf("unexpected body %q", got)
	}
	if agent != DefaultUserAgent {
		t.Errorf("expected user agent %q, got %q", DefaultUserAgent, agent)
	}

	if _, err := m.Fetch(context.Background(), srv.URL+"/missing", true); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
	if _, err := m.List(context.Background(), srv.URL+"/profiles"); !errors.Is(err, ErrNotListable) {
		t.Errorf("expected ErrNotListable, got %v", err)
	}
}

func TestHTTPSource_CertificateCheck(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	m := NewDefault(Options{HTTPTimeout: 5 * time.Second}, zerolog.Nop())
	defer m.Close()

	if _, err := m.Fetch(context.Background(), srv.URL, true); err == nil {
		t.Error("expected self-signed certificate to be rejected")
	}
	rc, err := m.Fetch(context.Background(), srv.URL, false)
	if got := readAll(t, rc, err); got != "ok" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestMavenSource(t *testing.T) {
	repo := t.TempDir()
	writeFiles(t, repo, map[string]string{
		"org/example/api/1.0/api-1.0.jar":         "v1.0",
		"org/example/api/1.1/api-1.1.jar":         "v1.1",
		"org/example/api/1.1/api-1.1-sources.zip": "src",
		"org/example/api/maven-metadata.xml": `<metadata>
  <groupId>org.example</groupId>
  <artifactId>api</artifactId>
  <versioning>
    <release>1.1</release>
    <versions><version>1.0</version><version>1.1</version></versions>
  </versioning>
</metadata>`,
	})

	m := NewDefault(Options{MavenRepository: "file://" + filepath.ToSlash(repo)}, zerolog.Nop())
	defer m.Close()

	tests := map[string]string{
		"mvn:org.example/api/1.0":             "v1.0",
		"mvn:org.example/api":                 "v1.1",
		"mvn:org.example/api/LATEST":          "v1.1",
		"mvn:org.example/api/1.1/zip/sources": "src",
	}
	for location, want := range tests {
		rc, err := m.Fetch(context.Background(), location, true)
		if got := readAll(t, rc, err); got != want {
			t.Errorf("%s: expected %q, got %q", location, want, got)
		}
	}

	if _, err := m.Fetch(context.Background(), "mvn:org.example", true); err == nil {
		t.Error("expected invalid coordinates to fail")
	}
}

func TestParseCoordinates(t *testing.T) {
	c, err := ParseCoordinates("org.ops4j.pax.runner/pax-runner-scanner-obr-script/1.0.0/jar/all")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Path(); got != "org/ops4j/pax/runner/pax-runner-scanner-obr-script/1.0.0/pax-runner-scanner-obr-script-1.0.0-all.jar" {
		t.Errorf("unexpected path %s", got)
	}
	for _, bad := range []string{"", "a", "/a", "a/b/c/d/e/f"} {
		if _, err := ParseCoordinates(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestSFTPSource(t *testing.T) {
	server := sshtest.NewServer(t)
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"z.jar": "z", "lib/a.jar": "a"})

	cfg := ssh.DefaultConfig("", sshtest.User)
	cfg.AuthMethod = ssh.AuthMethodPassword
	cfg.Password = sshtest.Password
	cfg.StrictHostKeyChecking = false
	m := NewDefault(Options{SSH: cfg}, zerolog.Nop())
	defer m.Close()

	base := fmt.Sprintf("sftp://%s:%d%s", server.Host, server.Port, filepath.ToSlash(root))
	entries, err := m.List(context.Background(), base+"/")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.Join(entries, ",") != "lib/a.jar,z.jar" {
		t.Errorf("unexpected entries %v", entries)
	}

	rc, err := m.Fetch(context.Background(), base+"/lib/a.jar", true)
	if got := readAll(t, rc, err); got != "a" {
		t.Errorf("expected 'a', got %q", got)
	}
}

func TestMux_UnsupportedScheme(t *testing.T) {
	m := NewMux(zerolog.Nop())
	if _, err := m.Fetch(context.Background(), "gopher://old.test/x", true); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func mustParse(t *testing.T, location string) *url.URL {
	t.Helper()
	u, err := Parse(location)
	if err != nil {
		t.Fatal(err)
	}
	return u
}
