package rbac

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
)

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingAudit) {
	t.Helper()
	repo := newMemoryRepo()
	repo.addRole(researcherRole)
	audit := &recordingAudit{}
	return NewService(repo, audit), repo, audit
}

func TestCreateModule(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()

	parent, err := svc.CreateModule(ctx, 1, ModuleInput{Name: "lab", Route: "/lab"})
	require.NoError(t, err)

	child, err := svc.CreateModule(ctx, 1, ModuleInput{Name: "resin-spinning", ParentID: &parent.ID})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, *child.ParentID)

	// Names are case sensitive, so this is a distinct module.
	_, err = svc.CreateModule(ctx, 1, ModuleInput{Name: "Resin-Spinning"})
	require.NoError(t, err)

	require.Len(t, audit.logs, 3)
	assert.Equal(t, "module.create", audit.logs[0].Action)
}

func TestCreateModuleErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateModule(ctx, 1, ModuleInput{Name: "lab"})
	require.NoError(t, err)
	missing := int64(999)

	tests := []struct {
		name string
		in   ModuleInput
		want error
	}{
		{"empty name", ModuleInput{}, httpx.ErrValidation},
		{"too long", ModuleInput{Name: strings.Repeat("x", 101)}, httpx.ErrValidation},
		{"surrounding whitespace", ModuleInput{Name: " lab "}, httpx.ErrValidation},
		{"unknown parent", ModuleInput{Name: "child", ParentID: &missing}, httpx.ErrValidation},
		{"duplicate", ModuleInput{Name: "lab"}, httpx.ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateModule(ctx, 1, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGrantPermission(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()
	mod := repo.addModule("resin-spinning")

	entry, err := svc.GrantPermission(ctx, 1, GrantInput{RoleID: researcherRole, ModuleID: mod.ID, Grants: Grants{CanRead: true}})
	require.NoError(t, err)
	assert.Equal(t, "resin-spinning", entry.ModuleName)
	assert.True(t, entry.CanRead)

	_, err = svc.GrantPermission(ctx, 1, GrantInput{RoleID: researcherRole, ModuleID: mod.ID, Grants: Grants{CanWrite: true}})
	assert.ErrorIs(t, err, ErrDuplicateEntry)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)

	_, err = svc.GrantPermission(ctx, 1, GrantInput{RoleID: 77, ModuleID: mod.ID})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.GrantPermission(ctx, 1, GrantInput{RoleID: researcherRole, ModuleID: 9999})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.GrantPermission(ctx, 1, GrantInput{})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "permission.grant", audit.logs[0].Action)
	assert.Equal(t, true, audit.logs[0].Meta["CanRead"])
}

func TestUpdateAndRevokePermission(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()
	mod := repo.addModule("resin-spinning")
	entry := repo.grant(researcherRole, mod.ID, Grants{CanRead: true})

	updated, err := svc.UpdatePermission(ctx, 1, entry.ID, Grants{CanRead: true, CanExport: true})
	require.NoError(t, err)
	assert.True(t, updated.CanExport)

	require.NoError(t, svc.RevokePermission(ctx, 1, entry.ID))
	assert.ErrorIs(t, svc.RevokePermission(ctx, 1, entry.ID), httpx.ErrNotFound)

	_, err = svc.UpdatePermission(ctx, 1, entry.ID, Grants{})
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	require.Len(t, audit.logs, 2)
	assert.Equal(t, "permission.revoke", audit.logs[1].Action)
}

func TestListRolePermissions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	mod := repo.addModule("resin-spinning")
	repo.grant(researcherRole, mod.ID, Grants{CanRead: true})

	entries, err := svc.ListRolePermissions(ctx, researcherRole)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = svc.ListRolePermissions(ctx, 404)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestDeleteModuleDropsEntries(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	mod := repo.addModule("resin-spinning")
	repo.grant(researcherRole, mod.ID, Grants{CanRead: true})

	require.NoError(t, svc.DeleteModule(ctx, 1, mod.ID))
	entries, err := svc.ListRolePermissions(ctx, researcherRole)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.ErrorIs(t, svc.DeleteModule(ctx, 1, mod.ID), httpx.ErrNotFound)
}

func TestModuleTree(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	lab, err := svc.CreateModule(ctx, 1, ModuleInput{Name: "lab"})
	require.NoError(t, err)
	_, err = svc.CreateModule(ctx, 1, ModuleInput{Name: "resin-spinning", ParentID: &lab.ID})
	require.NoError(t, err)

	tree, err := svc.ModuleTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "lab", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
}
