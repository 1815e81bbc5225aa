// Package permission decides whether a user may perform an action on a page
// or record, and caches per-subject grant tables fetched from the backend.
package permission

import (
	"github.com/staffdeck/staffdeck/model"
)

// Check is the input to a single permission decision.
type Check struct {
	// Grants is the permission table for the current page or entity block.
	Grants model.GrantTable
	// Type is the permission type being exercised ("view", "edit", ...).
	Type string
	// UserID is the acting user. Only consulted when OwnerID is set.
	UserID string
	// OwnerID is the resource owner. Empty means the action carries no
	// ownership restriction.
	OwnerID string
	// IsAdmin short-circuits the decision to allowed.
	IsAdmin bool
}

// Allowed is the pure permission filter.
//
// Decision table:
//
//	admin                          → allow
//	permission absent              → deny
//	permission present, no owner   → allow
//	permission present, owner self → allow
//	permission present, owner else → deny
func Allowed(c Check) bool {
	if c.IsAdmin {
		return true
	}
	if !c.Grants.Has(c.Type) {
		return false
	}
	if c.OwnerID == "" {
		return true
	}
	return c.UserID == c.OwnerID
}
