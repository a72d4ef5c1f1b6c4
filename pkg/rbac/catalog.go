package rbac

// Permission codes seeded into the catalog. The catalog is flat and global;
// tenant and platform scopes share this vocabulary.
const (
	PermTenantsReadAll = "tenants.read_all"
	PermTenantsCreate  = "tenants.create"
	PermTenantsUpdate  = "tenants.update"
	PermTenantsSuspend = "tenants.suspend"
	PermTenantsDelete  = "tenants.delete"

	PermDashboardViewAll    = "admin.dashboard.view_all"
	PermDashboardViewTenant = "admin.dashboard.view_tenant"

	PermRolesManage           = "rbac.roles.manage"
	PermPermissionsManage     = "rbac.permissions.manage"
	PermUserRolesManage       = "rbac.user_roles.manage"
	PermUserPermissionsManage = "rbac.user_permissions.manage"

	PermUsersManage = "users.manage"
	PermAuditRead   = "audit.read"

	PermEnrollmentManage          = "enrollment.manage"
	PermEnrollmentTransferApprove = "enrollment.transfer.approve"

	PermFinancePolicyView         = "finance.policy.view"
	PermFinancePolicyManage       = "finance.policy.manage"
	PermFinanceFeesView           = "finance.fees.view"
	PermFinanceFeesManage         = "finance.fees.manage"
	PermFinanceScholarshipsView   = "finance.scholarships.view"
	PermFinanceScholarshipsManage = "finance.scholarships.manage"
	PermFinanceInvoicesView       = "finance.invoices.view"
	PermFinanceInvoicesManage     = "finance.invoices.manage"
	PermFinancePaymentsManage     = "finance.payments.manage"
)

// System role codes. Seeded globally, immutable from tenant scope.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleDirector   = "DIRECTOR"
	RoleSecretary  = "SECRETARY"
	RoleTeacher    = "TEACHER"
	RoleParent     = "PARENT"
)

type seedPermission struct {
	Code string
	Name string
}

var seedPermissions = []seedPermission{
	{PermTenantsReadAll, "View all tenants"},
	{PermTenantsCreate, "Create tenant"},
	{PermTenantsUpdate, "Update tenant"},
	{PermTenantsSuspend, "Suspend tenant"},
	{PermTenantsDelete, "Delete tenant"},

	{PermDashboardViewAll, "View SaaS dashboard summary"},
	{PermDashboardViewTenant, "View tenant dashboard summary"},

	{PermRolesManage, "Manage roles"},
	{PermPermissionsManage, "Manage permissions"},
	{PermUserRolesManage, "Assign roles to users"},
	{PermUserPermissionsManage, "Assign user permission overrides"},

	{PermUsersManage, "Manage users"},
	{PermAuditRead, "View audit logs"},

	{PermEnrollmentManage, "Manage enrollment"},
	{PermEnrollmentTransferApprove, "Approve student transfers"},

	{PermFinancePolicyView, "View finance policy"},
	{PermFinancePolicyManage, "Manage finance policy"},
	{PermFinanceFeesView, "View fee catalog/structures"},
	{PermFinanceFeesManage, "Manage fee catalog/structures"},
	{PermFinanceScholarshipsView, "View scholarships"},
	{PermFinanceScholarshipsManage, "Manage scholarships"},
	{PermFinanceInvoicesView, "View invoices"},
	{PermFinanceInvoicesManage, "Manage invoices"},
	{PermFinancePaymentsManage, "Record payments"},
}

type seedRole struct {
	Code        string
	Name        string
	Description string
}

var seedRoles = []seedRole{
	{RoleSuperAdmin, "Super Admin", "SaaS operator"},
	{RoleDirector, "Director", "Tenant admin (school director)"},
	{RoleSecretary, "Secretary", "Core ops + accounting tasks"},
	{RoleTeacher, "Teacher", "Teaching staff"},
	{RoleParent, "Parent", "Parent/guardian"},
}

// seedRolePermissions maps each system role to its seeded grants.
var seedRolePermissions = map[string][]string{
	RoleSuperAdmin: {
		PermTenantsReadAll, PermTenantsCreate, PermTenantsUpdate, PermTenantsSuspend, PermTenantsDelete,
		PermDashboardViewAll, PermAuditRead,
		PermRolesManage, PermPermissionsManage, PermUserRolesManage, PermUserPermissionsManage,
		PermUsersManage,
		PermFinancePolicyView, PermFinancePolicyManage,
		PermFinanceFeesView, PermFinanceFeesManage,
		PermFinanceScholarshipsView, PermFinanceScholarshipsManage,
		PermFinanceInvoicesView, PermFinanceInvoicesManage,
		PermFinancePaymentsManage,
		PermEnrollmentTransferApprove,
	},
	RoleDirector: {
		PermDashboardViewTenant, PermUsersManage, PermAuditRead,
		PermRolesManage, PermUserRolesManage, PermUserPermissionsManage,
		PermEnrollmentManage,
		PermFinancePolicyView, PermFinancePolicyManage,
		PermFinanceFeesView, PermFinanceFeesManage,
		PermFinanceScholarshipsView, PermFinanceScholarshipsManage,
		PermFinanceInvoicesView, PermFinanceInvoicesManage,
		PermFinancePaymentsManage,
		PermEnrollmentTransferApprove,
	},
	RoleSecretary: {
		PermDashboardViewTenant, PermEnrollmentManage,
		PermFinancePolicyView,
		PermFinanceFeesView, PermFinanceFeesManage,
		PermFinanceScholarshipsView, PermFinanceScholarshipsManage,
		PermFinanceInvoicesView, PermFinanceInvoicesManage,
		PermFinancePaymentsManage,
	},
	RoleTeacher: {
		PermDashboardViewTenant,
	},
	RoleParent: {
		PermDashboardViewTenant,
	},
}
