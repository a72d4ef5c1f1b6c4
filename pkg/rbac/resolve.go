package rbac

import "sort"

// ResolveEffective computes the authorization state of a (user, scope) pair
// from its raw inputs: the role codes assigned in scope, the permission
// codes those roles grant, and the user's overrides in scope.
//
// ALLOW overrides add to the role-derived set; DENY overrides remove,
// unconditionally, even when a role or an ALLOW granted the same code.
// Output slices are deduplicated and sorted so token payloads and
// comparisons are deterministic.
func ResolveEffective(roleCodes []string, grantedCodes []string, overrides []OverrideView) Effective {
	permSet := make(map[string]struct{}, len(grantedCodes))
	for _, code := range grantedCodes {
		permSet[code] = struct{}{}
	}

	for _, ov := range overrides {
		if ov.Effect == EffectAllow {
			permSet[ov.PermissionCode] = struct{}{}
		}
	}
	// DENY wins over role grants and ALLOW overrides alike.
	for _, ov := range overrides {
		if ov.Effect == EffectDeny {
			delete(permSet, ov.PermissionCode)
		}
	}

	return Effective{
		Roles:       sortedUnique(roleCodes),
		Permissions: setToSorted(permSet),
	}
}

func sortedUnique(codes []string) []string {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return setToSorted(set)
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
