// Package directory manages organizations and their users.
//
// It owns registration (organization, seeded roles and first Super Admin in
// one transaction), password login with failed-attempt lockout, user
// administration and organization status. It also implements
// auth.IdentityLoader, building the per-request identity from the user, its
// organization and its role, and refusing to build one unless all three are
// active and belong together.
package directory
