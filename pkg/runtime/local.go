// Package runtime implements the target the lifecycle installs artifacts
// into. The local runtime fetches each artifact, records its digest in the
// installation registry and tracks its run state and priority there.
package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/stores"
)

// Local is a Runtime and PriorityAssigner backed by a store.
type Local struct {
	store   stores.Store
	fetcher engine.Fetcher
	logger  zerolog.Logger

	mu               sync.RWMutex
	certificateCheck bool

	// now is replaceable in tests.
	now func() time.Time
}

var (
	_ engine.Runtime          = (*Local)(nil)
	_ engine.PriorityAssigner = (*Local)(nil)
	_ engine.DefaultsReceiver = (*Local)(nil)
)

// NewLocal creates a local runtime. Certificate checking starts enabled.
func NewLocal(store stores.Store, fetcher engine.Fetcher, logger zerolog.Logger) *Local {
	return &Local{
		store:            store,
		fetcher:          fetcher,
		logger:           logger.With().Str("component", "runtime").Logger(),
		certificateCheck: true,
		now:              time.Now,
	}
}

// SetDefaults takes the certificate check setting from a configuration push.
func (l *Local) SetDefaults(defaults *engine.Defaults) {
	d := engine.DefaultDefaults()
	if defaults != nil {
		d = *defaults
	}
	l.mu.Lock()
	l.certificateCheck = d.CertificateCheck
	l.mu.Unlock()
}

func (l *Local) verify() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.certificateCheck
}

// Install fetches location and registers it. An already registered location
// returns its stored handle without fetching.
func (l *Local) Install(ctx context.Context, location string) (*engine.ArtifactHandle, error) {
	if location == "" {
		return nil, errors.New("empty artifact location")
	}

	existing, err := l.store.GetInstallationByLocation(ctx, location)
	if err == nil {
		l.logger.Debug().Str("location", location).Str("id", existing.ID).Msg("Artifact already installed")
		return existing.Handle(), nil
	}
	if !errors.Is(err, stores.ErrNotFound) {
		return nil, err
	}

	digest, size, err := l.digest(ctx, location)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	inst := &stores.Installation{
		ID:           uuid.New().String(),
		Location:     location,
		State:        engine.StateInstalled,
		Digest:       digest,
		Size:         size,
		InstalledAt:  now,
		LastModified: now,
	}
	if err := l.store.CreateInstallation(ctx, inst); err != nil {
		return nil, err
	}

	l.logger.Info().Str("location", location).Str("id", inst.ID).Int64("size", size).Msg("Artifact installed")
	return inst.Handle(), nil
}

// Update refetches the artifact and bumps its modification time.
func (l *Local) Update(ctx context.Context, handle *engine.ArtifactHandle) error {
	inst, err := l.lookup(ctx, handle)
	if err != nil {
		return err
	}

	digest, size, err := l.digest(ctx, inst.Location)
	if err != nil {
		return err
	}
	now := l.now().UTC()
	if err := l.store.UpdateInstallationContent(ctx, inst.ID, digest, size, now); err != nil {
		return err
	}
	handle.LastModified = now

	l.logger.Info().
		Str("location", inst.Location).
		Bool("changed", digest != inst.Digest).
		Msg("Artifact updated")
	return nil
}

// Start marks the artifact started.
func (l *Local) Start(ctx context.Context, handle *engine.ArtifactHandle) error {
	inst, err := l.lookup(ctx, handle)
	if err != nil {
		return err
	}
	if inst.State == engine.StateStarted {
		return nil
	}
	if err := l.store.UpdateInstallationState(ctx, inst.ID, engine.StateStarted, l.now()); err != nil {
		return err
	}
	l.logger.Info().Str("location", inst.Location).Msg("Artifact started")
	return nil
}

// AssignPriority persists the run priority of the artifact.
func (l *Local) AssignPriority(ctx context.Context, handle *engine.ArtifactHandle, level int) error {
	if level < 1 {
		return fmt.Errorf("invalid priority %d", level)
	}
	inst, err := l.lookup(ctx, handle)
	if err != nil {
		return err
	}
	return l.store.UpdateInstallationPriority(ctx, inst.ID, level)
}

func (l *Local) lookup(ctx context.Context, handle *engine.ArtifactHandle) (*stores.Installation, error) {
	if handle == nil || handle.ID == "" {
		return nil, errors.New("no artifact handle")
	}
	return l.store.GetInstallation(ctx, handle.ID)
}

func (l *Local) digest(ctx context.Context, location string) (string, int64, error) {
	rc, err := l.fetcher.Fetch(ctx, location, l.verify())
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()

	h := sha256.New()
	n, err := io.Copy(h, rc)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", location, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
