// Package stores persists the provisioning state of a host.
//
// The SQLite store keeps three tables: the installation registry the local
// runtime installs artifacts into, the history of resolution runs, and an
// append-only event log fed from the telemetry event publisher. The schema is
// versioned with golang-migrate and embedded into the binary.
//
// Usage:
//
//	store, err := stores.NewSQLiteStore(stores.Config{Path: "provision.db"})
//	if err != nil {
//		return err
//	}
//	if err := store.Init(ctx); err != nil {
//		return err
//	}
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil {
//		return err
//	}
package stores
