package rbac

import (
	"context"
	"errors"
	"log/slog"
)

// SubjectStore resolves the identity view of a user.
type SubjectStore interface {
	FindSubject(ctx context.Context, userID int64) (Subject, error)
}

// ModuleStore resolves modules by their authorization key.
type ModuleStore interface {
	FindModuleByName(ctx context.Context, name string) (Module, error)
}

// EntryStore reads the permission matrix.
type EntryStore interface {
	FindEntry(ctx context.Context, roleID, moduleID int64) (Entry, error)
	ListEntriesByRole(ctx context.Context, roleID int64) ([]Entry, error)
}

// Engine resolves (user, module, action) to an allow/deny decision.
//
// Every call re-reads current state from the stores: there is no decision cache, so role
// reassignments, grant edits and account disablement apply to the very next check. Every
// failed lookup, including store errors, resolves to deny.
type Engine struct {
	users   SubjectStore
	modules ModuleStore
	matrix  EntryStore
	logger  *slog.Logger
}

// NewEngine constructs an Engine. logger may be nil.
func NewEngine(users SubjectStore, modules ModuleStore, matrix EntryStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{users: users, modules: modules, matrix: matrix, logger: logger}
}

// Denial reasons, logged at debug level only. Callers never see them.
const (
	reasonUserInvalid    = "user_invalid"
	reasonUserMissing    = "user_missing"
	reasonUserDisabled   = "user_disabled"
	reasonRoleUnassigned = "role_unassigned"
	reasonModuleUnknown  = "module_unknown"
	reasonActionUnknown  = "action_unknown"
	reasonEntryMissing   = "entry_missing"
)

// CheckPermission reports whether userID may perform action on moduleName.
func (e *Engine) CheckPermission(ctx context.Context, userID int64, moduleName string, action Action) bool {
	roleID, module, ok := e.resolve(ctx, userID, moduleName)
	if !ok {
		return false
	}
	if !action.Valid() {
		e.deny(ctx, reasonActionUnknown, userID, moduleName, slog.String("action", string(action)))
		return false
	}
	entry, ok := e.entry(ctx, userID, roleID, module)
	if !ok {
		return false
	}
	return entry.Allows(action)
}

// PermissionsForModule returns all five flags of the user on one module. The map always
// carries every action; on any failed precondition all values are false.
func (e *Engine) PermissionsForModule(ctx context.Context, userID int64, moduleName string) map[Action]bool {
	roleID, module, ok := e.resolve(ctx, userID, moduleName)
	if !ok {
		return Grants{}.AsMap()
	}
	entry, ok := e.entry(ctx, userID, roleID, module)
	if !ok {
		return Grants{}.AsMap()
	}
	return entry.AsMap()
}

// AllPermissions returns the grants of the user's current role keyed by module name.
// Entries whose module cannot be resolved are skipped. The result is never nil.
func (e *Engine) AllPermissions(ctx context.Context, userID int64) map[string]map[Action]bool {
	out := make(map[string]map[Action]bool)
	subject, ok := e.subject(ctx, userID, "")
	if !ok {
		return out
	}
	entries, err := e.matrix.ListEntriesByRole(ctx, subject.RoleID)
	if err != nil {
		e.storeFailure(ctx, "list entries", err, userID)
		return out
	}
	for _, entry := range entries {
		if entry.ModuleName == "" {
			continue
		}
		out[entry.ModuleName] = entry.AsMap()
	}
	return out
}

// resolve runs the user, role and module preconditions shared by the single-module views.
func (e *Engine) resolve(ctx context.Context, userID int64, moduleName string) (int64, Module, bool) {
	subject, ok := e.subject(ctx, userID, moduleName)
	if !ok {
		return 0, Module{}, false
	}
	module, err := e.modules.FindModuleByName(ctx, moduleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.deny(ctx, reasonModuleUnknown, userID, moduleName)
		} else {
			e.storeFailure(ctx, "find module", err, userID)
		}
		return 0, Module{}, false
	}
	return subject.RoleID, module, true
}

func (e *Engine) subject(ctx context.Context, userID int64, moduleName string) (Subject, bool) {
	if userID <= 0 {
		e.deny(ctx, reasonUserInvalid, userID, moduleName)
		return Subject{}, false
	}
	subject, err := e.users.FindSubject(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.deny(ctx, reasonUserMissing, userID, moduleName)
		} else {
			e.storeFailure(ctx, "find subject", err, userID)
		}
		return Subject{}, false
	}
	if !subject.Enabled {
		e.deny(ctx, reasonUserDisabled, userID, moduleName)
		return Subject{}, false
	}
	if subject.RoleID <= 0 {
		e.deny(ctx, reasonRoleUnassigned, userID, moduleName)
		return Subject{}, false
	}
	return subject, true
}

func (e *Engine) entry(ctx context.Context, userID, roleID int64, module Module) (Entry, bool) {
	entry, err := e.matrix.FindEntry(ctx, roleID, module.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.deny(ctx, reasonEntryMissing, userID, module.Name, slog.Int64("role_id", roleID))
		} else {
			e.storeFailure(ctx, "find entry", err, userID)
		}
		return Entry{}, false
	}
	return entry, true
}

func (e *Engine) deny(ctx context.Context, reason string, userID int64, moduleName string, attrs ...slog.Attr) {
	attrs = append(attrs,
		slog.String("reason", reason),
		slog.Int64("user_id", userID),
		slog.String("module", moduleName),
	)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "rbac deny", attrs...)
}

func (e *Engine) storeFailure(ctx context.Context, op string, err error, userID int64) {
	e.logger.LogAttrs(ctx, slog.LevelWarn, "rbac store failure",
		slog.String("op", op),
		slog.Int64("user_id", userID),
		slog.Any("error", err),
	)
}
