// Package config loads the resolver configuration document and pushes
// changes to running components.
//
// # Loading
//
// A configuration file is YAML. Loading happens in three steps:
//
//  1. The document is decoded generically and unified with the closed CUE
//     definition #ProvisionConfig, so unknown keys and mistyped values are
//     reported with their path.
//  2. The document is decoded into Config and built-in defaults are filled in.
//  3. Config is checked with struct validation tags.
//
// # Example
//
//	defaults:
//	  priority: 5
//	  autostart: true
//	certificate_check: true
//	properties:
//	  repo.base: https://repo.example.org
//	catalog:
//	  repository_url: https://obr.example.org/repository.xml
//	store:
//	  path: /var/lib/provision/provision.db
//	policy:
//	  paths: [/etc/provision/policies]
//
// # Configuration push
//
// Watcher observes the file with fsnotify and, once changes settle, hands the
// reloaded defaults to every registered engine.DefaultsReceiver. When the file
// is removed the receivers get nil, which restores their built-in defaults.
// A file that fails to load leaves the previous configuration in effect.
package config
