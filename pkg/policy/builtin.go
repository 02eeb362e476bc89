package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		artifactLocationPolicy(),
		transportSecurityPolicy(),
		priorityRangePolicy(),
	}
}

// artifactLocationPolicy rejects artifacts that cannot be fetched.
func artifactLocationPolicy() Policy {
	return Policy{
		Name:        "artifact-location",
		Description: "Artifacts must carry a non-empty location with a scheme",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"location"},
		Rego: `package provision.policies.location

import rego.v1

deny contains violation if {
	trim_space(input.artifact.location) == ""
	violation := {
		"message": "artifact location is empty",
		"severity": "error",
	}
}

deny contains violation if {
	input.artifact.location != ""
	input.artifact.scheme == ""
	violation := {
		"message": sprintf("artifact location %s has no scheme", [input.artifact.location]),
		"severity": "error",
	}
}
`,
	}
}

// transportSecurityPolicy warns about artifacts fetched without transport security.
func transportSecurityPolicy() Policy {
	return Policy{
		Name:        "transport-security",
		Description: "Artifacts should not be fetched over unauthenticated transports",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"security", "transport"},
		Rego: `package provision.policies.transport

import rego.v1

insecure_schemes := {"http", "ftp"}

deny contains violation if {
	input.artifact.scheme in insecure_schemes
	violation := {
		"message": sprintf("artifact %s is fetched over plain %s", [input.artifact.location, input.artifact.scheme]),
		"severity": "warning",
	}
}
`,
	}
}

// priorityRangePolicy rejects priorities outside the start level range.
func priorityRangePolicy() Policy {
	return Policy{
		Name:        "priority-range",
		Description: "Artifact priorities must be positive",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"priority"},
		Rego: `package provision.policies.priority

import rego.v1

deny contains violation if {
	input.artifact.priority < 1
	violation := {
		"message": sprintf("priority %v of %s is below 1", [input.artifact.priority, input.artifact.location]),
		"severity": "error",
	}
}
`,
	}
}
