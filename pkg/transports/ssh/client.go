// Package ssh provides SFTP access to remote artifact hosts.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client is a single SSH connection with a lazily opened SFTP session.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu          sync.RWMutex
	conn        *ssh.Client
	sftp        *sftp.Client
	connectedAt time.Time
	lastUsedAt  time.Time
	stop        chan struct{}
}

// NewClient creates a client for config. It does not connect.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ssh").Str("address", config.Address()).Logger(),
	}, nil
}

// Connect establishes the SSH connection. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	type dialResult struct {
		conn *ssh.Client
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		conn, err := ssh.Dial("tcp", c.config.Address(), clientConfig)
		done <- dialResult{conn, err}
	}()

	select {
	case <-ctx.Done():
		// Reap a connection that completes after cancellation.
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case r := <-done:
		if r.err != nil {
			return &TransportError{Op: "connect", Err: r.err, IsTemporary: true}
		}
		c.conn = r.conn
	}

	c.connectedAt = time.Now()
	c.lastUsedAt = c.connectedAt
	if c.config.KeepAliveInterval > 0 {
		c.stop = make(chan struct{})
		go c.keepAlive(c.conn, c.stop)
	}
	c.logger.Debug().Msg("SSH connection established")
	return nil
}

// IsConnected reports whether the client holds a connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Close tears down the SFTP session and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	var errs []error
	if c.sftp != nil {
		errs = append(errs, c.sftp.Close())
		c.sftp = nil
	}
	errs = append(errs, c.conn.Close())
	c.conn = nil
	c.logger.Debug().Msg("SSH connection closed")

	if err := errors.Join(errs...); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Open opens a remote file for reading.
func (c *Client) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.Open(path)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}
	return f, nil
}

// ReadDir lists a remote directory.
func (c *Client) ReadDir(ctx context.Context, path string) ([]os.FileInfo, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.ReadDir(path)
	if err != nil {
		return nil, &TransportError{Op: "readdir", Err: err}
	}
	return entries, nil
}

// Stat returns remote file information.
func (c *Client) Stat(ctx context.Context, path string) (os.FileInfo, error) {
	s, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.Stat(path)
	if err != nil {
		return nil, &TransportError{Op: "stat", Err: err}
	}
	return info, nil
}

// session returns the SFTP session, opening it on first use.
func (c *Client) session(ctx context.Context) (*sftp.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "sftp-init", Err: err, IsTemporary: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, &TransportError{Op: "sftp-init", Err: fmt.Errorf("not connected")}
	}
	c.lastUsedAt = time.Now()
	if c.sftp != nil {
		return c.sftp, nil
	}
	s, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	c.sftp = s
	return s, nil
}

func (c *Client) keepAlive(conn *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			failures++
			c.logger.Warn().Err(err).Int("failures", failures).Msg("Keep-alive failed")
			if failures >= c.config.MaxKeepAliveRetries {
				c.logger.Error().Msg("Keep-alive failed too many times, dropping connection")
				c.mu.Lock()
				if c.conn == conn {
					_ = c.closeLocked()
				}
				c.mu.Unlock()
				return
			}
			continue
		}
		failures = 0
	}
}

// Info describes an established connection.
type Info struct {
	Address     string
	User        string
	ConnectedAt time.Time
	LastUsedAt  time.Time
}

// Info returns details of the current connection.
func (c *Client) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		Address:     c.config.Address(),
		User:        c.config.User,
		ConnectedAt: c.connectedAt,
		LastUsedAt:  c.lastUsedAt,
	}
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "open", "readdir")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
