package rbac

import (
	"fmt"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)

// Action is one of the five operation kinds a role can be granted on a module.
type Action string

// The action vocabulary is closed. Tokens are matched exactly, including case.
const (
	ActionRead   Action = "CanRead"
	ActionWrite  Action = "CanWrite"
	ActionDelete Action = "CanDelete"
	ActionImport Action = "CanImport"
	ActionExport Action = "CanExport"
)

// Actions lists the vocabulary in display order.
func Actions() []Action {
	return []Action{ActionRead, ActionWrite, ActionDelete, ActionImport, ActionExport}
}

// ParseAction maps a wire token to an Action.
func ParseAction(raw string) (Action, bool) {
	a := Action(raw)
	return a, a.Valid()
}

// Valid reports whether a is part of the vocabulary.
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionDelete, ActionImport, ActionExport:
		return true
	}
	return false
}

// Grants carries the five boolean flags of a permission entry.
type Grants struct {
	CanRead   bool `json:"CanRead"`
	CanWrite  bool `json:"CanWrite"`
	CanDelete bool `json:"CanDelete"`
	CanImport bool `json:"CanImport"`
	CanExport bool `json:"CanExport"`
}

// Allows returns the flag backing a. Unknown actions are never allowed.
func (g Grants) Allows(a Action) bool {
	switch a {
	case ActionRead:
		return g.CanRead
	case ActionWrite:
		return g.CanWrite
	case ActionDelete:
		return g.CanDelete
	case ActionImport:
		return g.CanImport
	case ActionExport:
		return g.CanExport
	}
	return false
}

// With returns a copy of g with the flag for a set.
func (g Grants) With(a Action) Grants {
	switch a {
	case ActionRead:
		g.CanRead = true
	case ActionWrite:
		g.CanWrite = true
	case ActionDelete:
		g.CanDelete = true
	case ActionImport:
		g.CanImport = true
	case ActionExport:
		g.CanExport = true
	}
	return g
}

// AsMap expands the grants into an action keyed map with all five keys present.
func (g Grants) AsMap() map[Action]bool {
	out := make(map[Action]bool, 5)
	for _, a := range Actions() {
		out[a] = g.Allows(a)
	}
	return out
}

// Module is a named protectable area. Name is the authorization key.
type Module struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Route     string    `json:"route,omitempty"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModuleNode is a Module placed in the navigation tree.
type ModuleNode struct {
	Module
	Children []ModuleNode `json:"children,omitempty"`
}

// Entry is the unique (role, module) row of the permission matrix.
type Entry struct {
	ID       int64 `json:"id"`
	RoleID   int64 `json:"role_id"`
	ModuleID int64 `json:"module_id"`
	// ModuleName is empty when the module reference cannot be resolved.
	ModuleName string `json:"module_name,omitempty"`
	Grants
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subject is the identity view the engine needs of a user.
type Subject struct {
	UserID  int64
	RoleID  int64 // zero when no role is assigned
	Enabled bool
}

// Requirement is a (module, action) pair declared by a guarded operation.
type Requirement struct {
	Module string
	Action Action
}

// Need builds a Requirement.
func Need(module string, action Action) Requirement {
	return Requirement{Module: module, Action: action}
}

// BuildTree arranges modules by parent reference for navigation. Modules whose parent is
// missing become roots, and so does the first member of any parent cycle. Input order is
// preserved among siblings.
func BuildTree(modules []Module) []ModuleNode {
	byID := make(map[int64]bool, len(modules))
	for _, m := range modules {
		byID[m.ID] = true
	}
	children := make(map[int64][]Module)
	var roots []Module
	for _, m := range modules {
		if m.ParentID != nil && byID[*m.ParentID] && *m.ParentID != m.ID {
			children[*m.ParentID] = append(children[*m.ParentID], m)
			continue
		}
		roots = append(roots, m)
	}

	visited := make(map[int64]bool, len(modules))
	var build func(m Module) ModuleNode
	build = func(m Module) ModuleNode {
		visited[m.ID] = true
		node := ModuleNode{Module: m}
		for _, c := range children[m.ID] {
			if visited[c.ID] {
				continue
			}
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	tree := make([]ModuleNode, 0, len(roots))
	for _, m := range roots {
		tree = append(tree, build(m))
	}
	for _, m := range modules {
		if !visited[m.ID] {
			tree = append(tree, build(m))
		}
	}
	return tree
}
