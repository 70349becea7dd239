// ABOUTME: Typed errors for realm access denial and handler resolution.
// ABOUTME: Denial errors carry the realm's full allow-list for auditability.

package realm

import (
	"fmt"
	"sort"
	"strings"
)

// AccessDeniedError is returned when a realm requests an abstraction or API
// outside its allow-list. It names the realm, the requested name, and the
// realm's actual allowed set so denials are diagnosable from the error alone.
type AccessDeniedError struct {
	Realm     string
	Requested string
	Allowed   []string
}

func (e *AccessDeniedError) Error() string {
	allowed := append([]string(nil), e.Allowed...)
	sort.Strings(allowed)
	return fmt.Sprintf("realm '%s' denied access to '%s' (allowed: [%s])",
		e.Realm, e.Requested, strings.Join(allowed, ", "))
}

// HandlerResolutionError is returned when an allow-listed API name has no
// resolvable target method on the live service, neither directly nor through
// the method override table. This is an error, never a silent no-op: the
// override table must be total over every allow-listed API.
type HandlerResolutionError struct {
	APIName string
	Service string
	Method  string
}

func (e *HandlerResolutionError) Error() string {
	return fmt.Sprintf("api '%s': method '%s' not resolvable on service '%s'",
		e.APIName, e.Method, e.Service)
}

// ServiceNotFoundError is returned when the service half of an allow-listed
// API name is not present in the service directory.
type ServiceNotFoundError struct {
	APIName string
	Service string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("api '%s': service '%s' not found in directory", e.APIName, e.Service)
}
