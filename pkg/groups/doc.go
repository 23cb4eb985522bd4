// Package groups organizes an organization's users into a tree of
// departments, teams, projects and custom groups.
//
// Group names are unique within an organization. A group's parent and lead
// must belong to the same organization, and a group can never become its own
// ancestor. Groups that still have members or child groups cannot be
// deleted. Membership changes run in a transaction and are recorded in the
// activity log.
package groups
