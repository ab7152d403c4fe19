package shared

// Permission names used across the bug tracker. The set is closed: role
// documents and route guards may only reference names declared here, so a
// typo fails validation instead of silently denying forever.
const (
	PermViewData = "canViewData"

	PermCreateBug          = "canCreateBug"
	PermEditAnyBug         = "canEditAnyBug"
	PermEditMyBug          = "canEditMyBug"
	PermEditIfAssigned     = "canEditIfAssignedTo"
	PermClassifyAnyBug     = "canClassifyAnyBug"
	PermClassifyIfAssigned = "canClassifyIfAssignedTo"
	PermReassignAnyBug     = "canReassignAnyBug"
	PermReassignIfAssigned = "canReassignIfAssignedTo"
	PermCloseAnyBug        = "canCloseAnyBug"
	PermDeleteBug          = "canDeleteBug"

	PermAddComments = "canAddComments"

	PermAddTestCase    = "canAddTestCase"
	PermEditTestCase   = "canEditTestCase"
	PermDeleteTestCase = "canDeleteTestCase"

	PermEditAnyUser  = "canEditAnyUser"
	PermAssignRoles  = "canAssignRoles"
	PermViewAuditLog = "canViewAuditLog"
)

// AllPermissions lists every known permission name.
func AllPermissions() []string {
	return []string{
		PermViewData,
		PermCreateBug,
		PermEditAnyBug,
		PermEditMyBug,
		PermEditIfAssigned,
		PermClassifyAnyBug,
		PermClassifyIfAssigned,
		PermReassignAnyBug,
		PermReassignIfAssigned,
		PermCloseAnyBug,
		PermDeleteBug,
		PermAddComments,
		PermAddTestCase,
		PermEditTestCase,
		PermDeleteTestCase,
		PermEditAnyUser,
		PermAssignRoles,
		PermViewAuditLog,
	}
}

var knownPermissions = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, name := range AllPermissions() {
		set[name] = struct{}{}
	}
	return set
}()

// KnownPermission reports whether name belongs to the closed permission set.
func KnownPermission(name string) bool {
	_, ok := knownPermissions[name]
	return ok
}
