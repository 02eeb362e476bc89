package catalog

import (
	"github.com/go-ldap/ldap/v3"
)

// LDAPFilterValidator checks catalog filters against RFC 4515 filter syntax.
type LDAPFilterValidator struct{}

// ValidFilter reports whether expr compiles as a search filter.
func (LDAPFilterValidator) ValidFilter(expr string) bool {
	_, err := ldap.CompileFilter(expr)
	return err == nil
}
