package config

import (
	"time"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/scanner"
	"github.com/openfroyo/provision/pkg/transports/fetch"
	"github.com/openfroyo/provision/pkg/transports/ssh"
)

// DefaultStorePath is used when the document names no store.
const DefaultStorePath = "provision.db"

// Config is the resolver configuration document.
type Config struct {
	// Defaults are the fallback settings handed to every resolver.
	Defaults Defaults `yaml:"defaults" json:"defaults"`

	// CertificateCheck enables TLS verification for https fetches. Defaults to true.
	CertificateCheck *bool `yaml:"certificate_check" json:"certificate_check"`

	// Properties seed the property bindings of every resolution.
	Properties map[string]string `yaml:"properties" json:"properties,omitempty" validate:"dive,keys,required,endkeys"`

	Catalog CatalogConfig `yaml:"catalog" json:"catalog"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Policy  PolicyConfig  `yaml:"policy" json:"policy"`
	SSH     SSHConfig     `yaml:"ssh" json:"ssh"`
	Fetch   FetchConfig   `yaml:"fetch" json:"fetch"`

	// Source is the file the configuration was loaded from.
	Source string `yaml:"-" json:"source,omitempty"`
}

// Defaults mirror engine.Settings with validation.
type Defaults struct {
	Priority   *int  `yaml:"priority" json:"priority,omitempty" validate:"omitempty,min=1"`
	AutoStart  *bool `yaml:"autostart" json:"autostart,omitempty"`
	AutoUpdate *bool `yaml:"autoupdate" json:"autoupdate,omitempty"`
}

// CatalogConfig configures the catalog-filter resolver.
type CatalogConfig struct {
	RepositoryURL      string   `yaml:"repository_url" json:"repository_url,omitempty" validate:"omitempty,url"`
	BootstrapArtifacts []string `yaml:"bootstrap_artifacts" json:"bootstrap_artifacts,omitempty" validate:"dive,required"`
	ScriptDir          string   `yaml:"script_dir" json:"script_dir,omitempty"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" json:"path" validate:"required"`
}

// PolicyConfig lists policy files and directories.
type PolicyConfig struct {
	Paths []string `yaml:"paths" json:"paths,omitempty" validate:"dive,required"`
}

// SSHConfig holds the connection defaults for sftp: locations. Host, user
// and password found in a location override these.
type SSHConfig struct {
	User                  string        `yaml:"user" json:"user,omitempty"`
	Port                  int           `yaml:"port" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Password              string        `yaml:"password" json:"-"`
	PrivateKeyPath        string        `yaml:"private_key_path" json:"private_key_path,omitempty"`
	PrivateKeyPassphrase  string        `yaml:"private_key_passphrase" json:"-"`
	KnownHostsPath        string        `yaml:"known_hosts_path" json:"known_hosts_path,omitempty"`
	StrictHostKeyChecking *bool         `yaml:"strict_host_key_checking" json:"strict_host_key_checking,omitempty"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout" json:"connection_timeout,omitempty" validate:"min=0"`
}

// FetchConfig tunes the http and mvn sources.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout" json:"timeout,omitempty" validate:"min=0"`
	UserAgent       string        `yaml:"user_agent" json:"user_agent,omitempty"`
	MavenRepository string        `yaml:"maven_repository" json:"maven_repository,omitempty" validate:"omitempty,url"`
}

// Default returns the configuration in effect without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.CertificateCheck == nil {
		c.CertificateCheck = engine.Bool(true)
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
}

// EngineDefaults returns the configuration push payload.
func (c *Config) EngineDefaults() *engine.Defaults {
	return &engine.Defaults{
		Settings: engine.Settings{
			Priority:   c.Defaults.Priority,
			AutoStart:  c.Defaults.AutoStart,
			AutoUpdate: c.Defaults.AutoUpdate,
		},
		CertificateCheck: c.CertificateCheck == nil || *c.CertificateCheck,
	}
}

// OBRConfig returns the catalog-filter resolver configuration.
func (c *Config) OBRConfig() scanner.OBRConfig {
	return scanner.OBRConfig{
		RepositoryURL:      c.Catalog.RepositoryURL,
		BootstrapArtifacts: c.Catalog.BootstrapArtifacts,
		ScriptDir:          c.Catalog.ScriptDir,
	}
}

// SSHClientConfig returns the base configuration for sftp connections.
func (c *Config) SSHClientConfig() *ssh.Config {
	cfg := ssh.DefaultConfig("", c.SSH.User)
	if c.SSH.Port != 0 {
		cfg.Port = c.SSH.Port
	}
	if c.SSH.Password != "" {
		cfg.AuthMethod = ssh.AuthMethodPassword
		cfg.Password = c.SSH.Password
	}
	if c.SSH.PrivateKeyPath != "" {
		cfg.PrivateKeyPath = c.SSH.PrivateKeyPath
		cfg.PrivateKeyPassphrase = c.SSH.PrivateKeyPassphrase
	}
	if c.SSH.KnownHostsPath != "" {
		cfg.KnownHostsPath = c.SSH.KnownHostsPath
	}
	if c.SSH.StrictHostKeyChecking != nil {
		cfg.StrictHostKeyChecking = *c.SSH.StrictHostKeyChecking
	}
	if c.SSH.ConnectionTimeout > 0 {
		cfg.ConnectionTimeout = c.SSH.ConnectionTimeout
	}
	return cfg
}

// FetchOptions returns the options for the default fetch mux.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		HTTPTimeout:     c.Fetch.Timeout,
		UserAgent:       c.Fetch.UserAgent,
		SSH:             c.SSHClientConfig(),
		MavenRepository: c.Fetch.MavenRepository,
	}
}
