package rbac

import "github.com/bugtrail/bugtrail/internal/shared"

// DefaultRoles returns the fixed role set seeded at system initialization.
// Roles are never created per-user; changes after seeding are administrative.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:        "admin",
			Description: "Full access to every operation",
			Permissions: allGranted(),
		},
		{
			Name:        "businessAnalyst",
			Description: "Files and curates bug reports",
			Permissions: map[string]bool{
				shared.PermViewData:       true,
				shared.PermCreateBug:      true,
				shared.PermEditMyBug:      true,
				shared.PermClassifyAnyBug: true,
				shared.PermAddComments:    true,
			},
		},
		{
			Name:        "qualityAnalyst",
			Description: "Tests fixes and maintains test cases",
			Permissions: map[string]bool{
				shared.PermViewData:           true,
				shared.PermCreateBug:          true,
				shared.PermEditMyBug:          true,
				shared.PermClassifyIfAssigned: true,
				shared.PermAddComments:        true,
				shared.PermAddTestCase:        true,
				shared.PermEditTestCase:       true,
				shared.PermDeleteTestCase:     true,
			},
		},
		{
			Name:        "developer",
			Description: "Works assigned bugs",
			Permissions: map[string]bool{
				shared.PermViewData:           true,
				shared.PermEditIfAssigned:     true,
				shared.PermReassignIfAssigned: true,
				shared.PermAddComments:        true,
			},
		},
		{
			Name:        "productManager",
			Description: "Routes and closes bugs across the backlog",
			Permissions: map[string]bool{
				shared.PermViewData:       true,
				shared.PermClassifyAnyBug: true,
				shared.PermReassignAnyBug: true,
				shared.PermCloseAnyBug:    true,
				shared.PermAddComments:    true,
			},
		},
		{
			Name:        "user",
			Description: "Registered but not yet granted data access",
			Permissions: map[string]bool{},
		},
	}
}

func allGranted() map[string]bool {
	perms := make(map[string]bool)
	for _, name := range shared.AllPermissions() {
		perms[name] = true
	}
	return perms
}
