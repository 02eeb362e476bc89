// Package fetch opens and lists artifact locations by URL scheme.
//
// A Mux routes each location to the Source registered for its scheme.
// Locations without a scheme are local file paths.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/transports/ssh"
)

// Source opens locations of one or more URL schemes.
type Source interface {
	Open(ctx context.Context, u *url.URL, verifyCertificate bool) (io.ReadCloser, error)
}

// DirectorySource is a Source that can also enumerate files below a root.
// Entries are root-relative, '/' separated and in depth-first lexical order.
type DirectorySource interface {
	Source
	Walk(ctx context.Context, u *url.URL) ([]string, error)
}

// ErrUnsupportedScheme is returned for locations no source handles.
var ErrUnsupportedScheme = errors.New("fetch: unsupported location scheme")

// ErrNotListable is returned when listing a scheme whose source cannot enumerate.
var ErrNotListable = errors.New("fetch: location cannot be listed")

// Mux implements engine.Fetcher and engine.Lister over registered sources.
type Mux struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	sources map[string]Source
	closers []io.Closer
}

// NewMux creates an empty mux.
func NewMux(logger zerolog.Logger) *Mux {
	return &Mux{
		logger:  logger.With().Str("component", "fetch").Logger(),
		sources: make(map[string]Source),
	}
}

// Handle registers s for the given schemes, replacing earlier registrations.
func (m *Mux) Handle(s Source, schemes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, scheme := range schemes {
		m.sources[strings.ToLower(scheme)] = s
	}
	if c, ok := s.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
}

// Fetch opens location for reading.
func (m *Mux) Fetch(ctx context.Context, location string, verifyCertificate bool) (io.ReadCloser, error) {
	u, src, err := m.route(location)
	if err != nil {
		return nil, err
	}
	m.logger.Debug().Str("location", u.Redacted()).Bool("verify", verifyCertificate).Msg("Fetching")
	rc, err := src.Open(ctx, u, verifyCertificate)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	return rc, nil
}

// List enumerates the files below root.
func (m *Mux) List(ctx context.Context, root string) ([]string, error) {
	u, src, err := m.route(root)
	if err != nil {
		return nil, err
	}
	ds, ok := src.(DirectorySource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotListable, u.Redacted())
	}
	entries, err := ds.Walk(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", u.Redacted(), err)
	}
	return entries, nil
}

// Close releases resources held by registered sources.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, c := range m.closers {
		errs = append(errs, c.Close())
	}
	m.closers = nil
	return errors.Join(errs...)
}

func (m *Mux) route(location string) (*url.URL, Source, error) {
	u, err := Parse(location)
	if err != nil {
		return nil, nil, err
	}
	m.mu.RLock()
	src, ok := m.sources[u.Scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return u, src, nil
}

// Parse parses location, turning plain paths into file URLs.
func Parse(location string) (*url.URL, error) {
	u, err := url.Parse(location)
	if err == nil && len(u.Scheme) > 1 {
		u.Scheme = strings.ToLower(u.Scheme)
		return u, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// Options configure the default sources.
type Options struct {
	HTTPTimeout     time.Duration
	UserAgent       string
	SSH             *ssh.Config
	MavenRepository string
}

// NewDefault creates a mux serving file, http, https, sftp and mvn locations.
func NewDefault(opts Options, logger zerolog.Logger) *Mux {
	m := NewMux(logger)
	m.Handle(NewFileSource(logger), "file")
	m.Handle(NewHTTPSource(opts.HTTPTimeout, opts.UserAgent), "http", "https")
	m.Handle(NewSFTPSource(ssh.NewPool(opts.SSH, logger), logger), "sftp")
	m.Handle(NewMavenSource(opts.MavenRepository, m), "mvn")
	return m
}
