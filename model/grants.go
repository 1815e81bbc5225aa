package model

// GrantTable is the permission table for a page or entity block, mapping a
// permission type ("view", "edit", "delete", ...) to whether it is granted.
type GrantTable map[string]bool

// Has returns true if the table grants the given permission type.
func (g GrantTable) Has(permissionType string) bool {
	return g[permissionType]
}
