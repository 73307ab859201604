package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Tenant is an isolated customer organization.
type Tenant struct {
	ID        int64
	Name      string
	Subdomain string // globally unique, immutable once assigned
	Modules   ModuleSet
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateSubdomain checks that s is usable as a single DNS label.
func ValidateSubdomain(s string) error {
	if !subdomainPattern.MatchString(s) {
		return fmt.Errorf("subdomain %q must be a lowercase DNS label", s)
	}
	return nil
}

// HasModule reports whether the tenant has m enabled.
func (t *Tenant) HasModule(m Module) bool {
	return t != nil && t.Modules.Has(m)
}
