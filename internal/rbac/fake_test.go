package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/uhmwpe-lab/labdata/internal/shared"
)

var errStoreDown = errors.New("store down")

type fakeUser struct {
	roleID  int64
	enabled bool
}

// memoryRepo is an in-memory Repository used across the package tests.
type memoryRepo struct {
	mu      sync.Mutex
	users   map[int64]fakeUser
	roles   map[int64]bool
	modules map[int64]Module
	entries map[int64]Entry
	nextID  int64

	failSubject bool
	failModule  bool
	failEntry   bool
	reads       int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:   map[int64]fakeUser{},
		roles:   map[int64]bool{},
		modules: map[int64]Module{},
		entries: map[int64]Entry{},
	}
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) addRole(id int64) { m.roles[id] = true }

func (m *memoryRepo) addUser(id, roleID int64, enabled bool) {
	m.users[id] = fakeUser{roleID: roleID, enabled: enabled}
}

func (m *memoryRepo) addModule(name string) Module {
	mod, err := m.CreateModule(context.Background(), ModuleInput{Name: name})
	if err != nil {
		panic(err)
	}
	return mod
}

func (m *memoryRepo) grant(roleID, moduleID int64, g Grants) Entry {
	e, err := m.CreateEntry(context.Background(), roleID, moduleID, g)
	if err != nil {
		panic(err)
	}
	return e
}

func (m *memoryRepo) FindSubject(_ context.Context, userID int64) (Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failSubject {
		return Subject{}, errStoreDown
	}
	u, ok := m.users[userID]
	if !ok {
		return Subject{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return Subject{UserID: userID, RoleID: u.roleID, Enabled: u.enabled}, nil
}

func (m *memoryRepo) FindModuleByName(_ context.Context, name string) (Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failModule {
		return Module{}, errStoreDown
	}
	for _, mod := range m.modules {
		if mod.Name == name {
			return mod, nil
		}
	}
	return Module{}, fmt.Errorf("module %q: %w", name, ErrNotFound)
}

func (m *memoryRepo) FindEntry(_ context.Context, roleID, moduleID int64) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEntry {
		return Entry{}, errStoreDown
	}
	for _, e := range m.entries {
		if e.RoleID == roleID && e.ModuleID == moduleID {
			return m.withName(e), nil
		}
	}
	return Entry{}, ErrNotFound
}

func (m *memoryRepo) ListEntriesByRole(_ context.Context, roleID int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEntry {
		return nil, errStoreDown
	}
	var out []Entry
	for _, e := range m.entries {
		if e.RoleID == roleID {
			out = append(out, m.withName(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) withName(e Entry) Entry {
	e.ModuleName = m.modules[e.ModuleID].Name
	return e
}

func (m *memoryRepo) ListModules(context.Context) ([]Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) GetModule(_ context.Context, id int64) (Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	if !ok {
		return Module{}, ErrNotFound
	}
	return mod, nil
}

func (m *memoryRepo) CreateModule(_ context.Context, in ModuleInput) (Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mod := range m.modules {
		if mod.Name == in.Name {
			return Module{}, ErrDuplicateModule
		}
	}
	now := time.Now()
	mod := Module{ID: m.id(), Name: in.Name, Route: in.Route, ParentID: in.ParentID, CreatedAt: now, UpdatedAt: now}
	m.modules[mod.ID] = mod
	return mod, nil
}

func (m *memoryRepo) DeleteModule(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.modules[id]; !ok {
		return ErrNotFound
	}
	delete(m.modules, id)
	for eid, e := range m.entries {
		if e.ModuleID == id {
			delete(m.entries, eid)
		}
	}
	return nil
}

func (m *memoryRepo) RoleExists(_ context.Context, roleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[roleID], nil
}

func (m *memoryRepo) GetEntry(_ context.Context, id int64) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return m.withName(e), nil
}

func (m *memoryRepo) CreateEntry(_ context.Context, roleID, moduleID int64, g Grants) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.RoleID == roleID && e.ModuleID == moduleID {
			return Entry{}, ErrDuplicateEntry
		}
	}
	e := Entry{ID: m.id(), RoleID: roleID, ModuleID: moduleID, Grants: g}
	m.entries[e.ID] = e
	return m.withName(e), nil
}

func (m *memoryRepo) UpdateEntry(_ context.Context, id int64, g Grants) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Grants = g
	m.entries[id] = e
	return m.withName(e), nil
}

func (m *memoryRepo) DeleteEntry(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func withUser(r *http.Request, userID int64) *http.Request {
	sess := &shared.Session{ID: "test-session"}
	if userID != 0 {
		sess.SetUser(userID)
	}
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}
