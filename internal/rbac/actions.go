package rbac

// Catalog permission actions. These are the seeded vocabulary; the engine
// itself treats actions as opaque strings.
const (
	ActionCreateTeam          = "create_team"
	ActionDeleteTeam          = "delete_team"
	ActionAddTeamMember       = "add_team_member"
	ActionRemoveTeamMember    = "remove_team_member"
	ActionAssignTeamRole      = "assign_team_role"
	ActionCreateProject       = "create_project"
	ActionDeleteProject       = "delete_project"
	ActionAssignProjectRole   = "assign_project_role"
	ActionViewTeamMembers     = "view_team_members"
	ActionViewProject         = "view_project"
	ActionEditProject         = "edit_project"
	ActionCreateTask          = "create_task"
	ActionEditAnyTask         = "edit_any_task"
	ActionEditOwnTask         = "edit_own_task"
	ActionDeleteAnyTask       = "delete_any_task"
	ActionDeleteOwnTask       = "delete_own_task"
	ActionCommentTask         = "comment_task"
	ActionViewReports         = "view_reports"
	ActionAssignProjectToTeam = "assign_project_to_team"
	ActionViewProjectSettings = "view_project_settings"
	ActionManageProject       = "manage_project"
	ActionViewTasks           = "view_tasks"
	ActionAddRemoveMembers    = "add_remove_members"
)
