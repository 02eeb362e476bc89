// Package policy vets resolved artifacts with Open Policy Agent before they
// are installed.
//
// Every policy is a Rego module with a deny set. Each deny entry is either a
// message string or an object with "message" and "severity" fields. Entries of
// severity error or critical block the artifact; others are reported as
// warnings. Policies see this input:
//
//	{
//	  "artifact": {
//	    "location": "https://repo.example.org/a.jar",
//	    "scheme": "https",
//	    "priority": 5,
//	    "autostart": true,
//	    "autoupdate": false
//	  },
//	  "context": {"operation": "install", "timestamp": "..."}
//	}
//
// The engine starts with three built-in policies:
//
//   - artifact-location: the location must be non-empty and carry a scheme
//   - transport-security: warns about http and ftp locations
//   - priority-range: priorities must be at least 1
//
// Custom policies are loaded from .rego files (named after the file) or YAML
// definitions with name, description, severity, enabled and rego fields.
//
// A Gate wraps the engine as a lifecycle admitter:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//		return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/provision/policies"}); err != nil {
//		return err
//	}
//	batch := lifecycle.NewBatch(artifacts, lifecycle.Options{
//		Runtime:  rt,
//		Admitter: policy.NewGate(eng, logger, tel),
//	})
package policy
