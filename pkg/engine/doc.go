// Package engine provides the shared types and capability interfaces of the
// provisioning resolver.
//
// # Overview
//
// A provisioning specification is a compact string such as
//
//	scan-composite:https://repo.example.org/profile.txt@5@start
//
// that is parsed into a descriptor, dispatched by scheme to a resolver and
// expanded into an ordered list of ResolvedArtifact values. Each artifact is
// then driven through the Pending -> Installed -> Started lifecycle against a
// Runtime.
//
// # Settings and Defaults
//
// Priority, autostart and autoupdate are tri-state: a nil pointer means unset.
// Resolvers apply one precedence rule everywhere: an explicit value wins,
// otherwise the configured default, otherwise unset.
//
//	effective := descriptorSettings.Or(defaults.Settings)
//
// Composite manifests add a second layer on top of nested results:
//
//	nested = nested.OverriddenBy(compositeSettings)
//
// # Capabilities
//
// Everything outside resolution is reached through narrow interfaces:
//
//   - Fetcher: opens manifests and artifacts
//   - Lister: enumerates directory trees
//   - FeatureCatalog and CatalogLoader: dependency-feature lookups
//   - FilterValidator: catalog attribute-filter syntax
//   - Runtime and PriorityAssigner: install/update/start/priority primitives
//   - DefaultsReceiver: configuration push
//
// # Error Classification
//
// All failures surfacing from the resolver are *Error values classified as
// malformed_specification, unsupported_scheme, scanner, listing or installation.
//
//	if engine.IsMalformedSpecification(err) {
//	    // caller input error, do not retry
//	}
//
// Codes refine the class, for example ErrCodeCycleDetected for manifests or
// features that reference themselves.
package engine
