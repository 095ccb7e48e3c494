package rbac

// ResourceMatches reports whether a granted resource covers the requested one.
func ResourceMatches(granted, requested Resource) bool {
	return granted == ResourceAll || granted == requested
}

// OperationMatches reports whether a granted operation covers the requested one.
func OperationMatches(granted, requested Operation) bool {
	return granted == OperationAll || granted == requested
}

// Matches reports whether p covers the requested pair.
func (p Permission) Matches(resource Resource, operation Operation) bool {
	return ResourceMatches(p.Resource, resource) && OperationMatches(p.Operation, operation)
}

// Authorize reports whether any permission in perms covers (resource, operation).
func Authorize(perms PermissionSet, resource Resource, operation Operation) bool {
	if len(perms) == 0 {
		return false
	}
	// The four candidate keys cover every wildcard combination.
	if perms.Contains(Permission{resource, operation}) ||
		perms.Contains(Permission{ResourceAll, OperationAll}) ||
		perms.Contains(Permission{resource, OperationAll}) ||
		perms.Contains(Permission{ResourceAll, operation}) {
		return true
	}
	return false
}

// HasAnyPermission reports whether perms grant anything at all on resource.
// It drives visibility decisions, not action gating.
func HasAnyPermission(perms PermissionSet, resource Resource) bool {
	for p := range perms {
		if ResourceMatches(p.Resource, resource) {
			return true
		}
	}
	return false
}

// HasAllOperations reports whether perms grant every operation on resource.
func HasAllOperations(perms PermissionSet, resource Resource) bool {
	return perms.Contains(Permission{resource, OperationAll}) ||
		perms.Contains(Permission{ResourceAll, OperationAll})
}
