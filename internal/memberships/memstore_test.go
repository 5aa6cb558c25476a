package memberships

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/firmboard/backend/internal/models"
	"github.com/firmboard/backend/internal/rbac"
)

// memStore is an in-memory Store and rbac.MembershipReader for tests. WithTx
// snapshots state before the callback and restores it on error, matching the
// rollback behavior of the postgres store.
type memStore struct {
	users       map[uuid.UUID]models.User
	teams       map[uuid.UUID]models.Team
	projects    map[uuid.UUID]models.Project
	teamMembers map[pairKey]models.TeamMembership
	projMembers map[pairKey]models.ProjectMembership
	joinReqs    map[uuid.UUID]models.JoinRequest
	mgrReqs     map[uuid.UUID]models.ManagerRequest
	notes       []models.Notification
	firmRoles   map[uuid.UUID][]uuid.UUID
}

type pairKey struct {
	user  uuid.UUID
	scope uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[uuid.UUID]models.User{},
		teams:       map[uuid.UUID]models.Team{},
		projects:    map[uuid.UUID]models.Project{},
		teamMembers: map[pairKey]models.TeamMembership{},
		projMembers: map[pairKey]models.ProjectMembership{},
		joinReqs:    map[uuid.UUID]models.JoinRequest{},
		mgrReqs:     map[uuid.UUID]models.ManagerRequest{},
		firmRoles:   map[uuid.UUID][]uuid.UUID{},
	}
}

var _ Store = (*memStore)(nil)
var _ rbac.MembershipReader = (*memStore)(nil)

func (s *memStore) snapshot() *memStore {
	c := newMemStore()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.teams {
		c.teams[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.teamMembers {
		c.teamMembers[k] = v
	}
	for k, v := range s.projMembers {
		c.projMembers[k] = v
	}
	for k, v := range s.joinReqs {
		c.joinReqs[k] = v
	}
	for k, v := range s.mgrReqs {
		c.mgrReqs[k] = v
	}
	for k, v := range s.firmRoles {
		c.firmRoles[k] = append([]uuid.UUID(nil), v...)
	}
	c.notes = append([]models.Notification(nil), s.notes...)
	return c
}

func (s *memStore) restore(from *memStore) {
	s.users = from.users
	s.teams = from.teams
	s.projects = from.projects
	s.teamMembers = from.teamMembers
	s.projMembers = from.projMembers
	s.joinReqs = from.joinReqs
	s.mgrReqs = from.mgrReqs
	s.notes = from.notes
	s.firmRoles = from.firmRoles
}

func (s *memStore) WithTx(_ context.Context, fn func(Store) error) error {
	saved := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

func (s *memStore) GetTeam(_ context.Context, teamID uuid.UUID) (*models.Team, error) {
	if t, ok := s.teams[teamID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (s *memStore) LockTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return s.GetTeam(ctx, teamID)
}

func (s *memStore) InsertTeam(_ context.Context, t models.Team) (*models.Team, error) {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	s.teams[t.ID] = t
	return &t, nil
}

func (s *memStore) DeleteTeam(_ context.Context, teamID uuid.UUID) error {
	delete(s.teams, teamID)
	for k := range s.teamMembers {
		if k.scope == teamID {
			delete(s.teamMembers, k)
		}
	}
	for id, p := range s.projects {
		if p.OwnerTeamID != nil && *p.OwnerTeamID == teamID {
			p.OwnerTeamID = nil
			s.projects[id] = p
		}
	}
	return nil
}

func (s *memStore) GetProject(_ context.Context, projectID uuid.UUID) (*models.Project, error) {
	if p, ok := s.projects[projectID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *memStore) LockProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return s.GetProject(ctx, projectID)
}

func (s *memStore) InsertProject(_ context.Context, p models.Project) (*models.Project, error) {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.projects[p.ID] = p
	return &p, nil
}

func (s *memStore) SetTeamManager(_ context.Context, teamID, userID uuid.UUID) error {
	t, ok := s.teams[teamID]
	if !ok {
		return fmt.Errorf("no team %s", teamID)
	}
	t.ManagerID = userID
	s.teams[teamID] = t
	return nil
}

func (s *memStore) SetProjectOwner(_ context.Context, projectID, userID uuid.UUID) error {
	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("no project %s", projectID)
	}
	p.OwnerID = userID
	s.projects[projectID] = p
	return nil
}

func (s *memStore) ListTeamProjects(_ context.Context, teamID uuid.UUID) ([]models.Project, error) {
	var list []models.Project
	for _, p := range s.projects {
		if p.OwnerTeamID != nil && *p.OwnerTeamID == teamID {
			list = append(list, p)
		}
	}
	return list, nil
}

func (s *memStore) GetUser(_ context.Context, userID uuid.UUID) (*models.User, error) {
	if u, ok := s.users[userID]; ok {
		return &u, nil
	}
	return nil, nil
}

func (s *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetTeamMembership(_ context.Context, userID, teamID uuid.UUID) (*models.TeamMembership, error) {
	if m, ok := s.teamMembers[pairKey{userID, teamID}]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *memStore) ListTeamMemberships(_ context.Context, teamID uuid.UUID) ([]models.TeamMembership, error) {
	var list []models.TeamMembership
	for k, m := range s.teamMembers {
		if k.scope == teamID {
			list = append(list, m)
		}
	}
	return list, nil
}

func (s *memStore) InsertTeamMembership(_ context.Context, m models.TeamMembership) error {
	k := pairKey{m.UserID, m.TeamID}
	if _, ok := s.teamMembers[k]; ok {
		return fmt.Errorf("duplicate team membership")
	}
	m.CreatedAt = time.Now()
	s.teamMembers[k] = m
	return nil
}

func (s *memStore) UpdateTeamMembershipRole(_ context.Context, userID, teamID, roleID uuid.UUID) error {
	k := pairKey{userID, teamID}
	m, ok := s.teamMembers[k]
	if !ok {
		return fmt.Errorf("no team membership")
	}
	m.RoleID = roleID
	s.teamMembers[k] = m
	return nil
}

func (s *memStore) DeleteTeamMembership(_ context.Context, userID, teamID uuid.UUID) error {
	delete(s.teamMembers, pairKey{userID, teamID})
	return nil
}

func (s *memStore) GetProjectMembership(_ context.Context, userID, projectID uuid.UUID) (*models.ProjectMembership, error) {
	if m, ok := s.projMembers[pairKey{userID, projectID}]; ok {
		return &m, nil
	}
	return nil, nil
}

func (s *memStore) ListProjectMemberships(_ context.Context, projectID uuid.UUID) ([]models.ProjectMembership, error) {
	var list []models.ProjectMembership
	for k, m := range s.projMembers {
		if k.scope == projectID {
			list = append(list, m)
		}
	}
	return list, nil
}

func (s *memStore) InsertProjectMembership(_ context.Context, m models.ProjectMembership) error {
	k := pairKey{m.UserID, m.ProjectID}
	if _, ok := s.projMembers[k]; ok {
		return fmt.Errorf("duplicate project membership")
	}
	m.CreatedAt = time.Now()
	s.projMembers[k] = m
	return nil
}

func (s *memStore) UpdateProjectMembershipRole(_ context.Context, userID, projectID, roleID uuid.UUID) error {
	k := pairKey{userID, projectID}
	m, ok := s.projMembers[k]
	if !ok {
		return fmt.Errorf("no project membership")
	}
	m.RoleID = roleID
	s.projMembers[k] = m
	return nil
}

func (s *memStore) SetProjectMembershipOrigin(_ context.Context, userID, projectID uuid.UUID, origin models.MembershipOrigin) error {
	k := pairKey{userID, projectID}
	m, ok := s.projMembers[k]
	if !ok {
		return fmt.Errorf("no project membership")
	}
	m.Origin = origin
	s.projMembers[k] = m
	return nil
}

func (s *memStore) DeleteProjectMembership(_ context.Context, userID, projectID uuid.UUID) error {
	delete(s.projMembers, pairKey{userID, projectID})
	return nil
}

func (s *memStore) CountProjectMembersWithRole(_ context.Context, projectID, roleID uuid.UUID) (int, error) {
	n := 0
	for k, m := range s.projMembers {
		if k.scope == projectID && m.RoleID == roleID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteCascadedMembership(_ context.Context, userID, projectID uuid.UUID) (bool, error) {
	k := pairKey{userID, projectID}
	m, ok := s.projMembers[k]
	if !ok || m.Origin != models.OriginTeam {
		return false, nil
	}
	delete(s.projMembers, k)
	return true, nil
}

func (s *memStore) DeleteMembershipsWithRole(_ context.Context, projectID, roleID uuid.UUID) (int, error) {
	n := 0
	for k, m := range s.projMembers {
		if k.scope == projectID && m.RoleID == roleID {
			delete(s.projMembers, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindPendingJoinRequest(_ context.Context, projectID, userID uuid.UUID, typ models.JoinRequestType) (*models.JoinRequest, error) {
	for _, r := range s.joinReqs {
		if r.ProjectID == projectID && r.UserID == userID && r.Type == typ && r.Status == models.StatusPending {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetJoinRequest(_ context.Context, id uuid.UUID) (*models.JoinRequest, error) {
	if r, ok := s.joinReqs[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memStore) InsertJoinRequest(_ context.Context, r models.JoinRequest) (*models.JoinRequest, error) {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	s.joinReqs[r.ID] = r
	return &r, nil
}

func (s *memStore) ResolveJoinRequestStatus(_ context.Context, id uuid.UUID, status models.RequestStatus) error {
	r, ok := s.joinReqs[id]
	if !ok {
		return fmt.Errorf("no join request")
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	s.joinReqs[id] = r
	return nil
}

func (s *memStore) ListPendingJoinRequests(_ context.Context, projectID uuid.UUID, typ models.JoinRequestType) ([]models.JoinRequest, error) {
	var list []models.JoinRequest
	for _, r := range s.joinReqs {
		if r.ProjectID == projectID && r.Type == typ && r.Status == models.StatusPending {
			list = append(list, r)
		}
	}
	return list, nil
}

func (s *memStore) ListPendingInvitesForUser(_ context.Context, userID uuid.UUID) ([]models.JoinRequest, error) {
	var list []models.JoinRequest
	for _, r := range s.joinReqs {
		if r.UserID == userID && r.Type == models.JoinTypeInvite && r.Status == models.StatusPending {
			list = append(list, r)
		}
	}
	return list, nil
}

func (s *memStore) FindPendingManagerRequest(_ context.Context, teamID, userID uuid.UUID) (*models.ManagerRequest, error) {
	for _, r := range s.mgrReqs {
		if r.TeamID == teamID && r.UserID == userID && r.Status == models.StatusPending {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetManagerRequest(_ context.Context, id uuid.UUID) (*models.ManagerRequest, error) {
	if r, ok := s.mgrReqs[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *memStore) InsertManagerRequest(_ context.Context, r models.ManagerRequest) (*models.ManagerRequest, error) {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	s.mgrReqs[r.ID] = r
	return &r, nil
}

func (s *memStore) ResolveManagerRequestStatus(_ context.Context, id uuid.UUID, status models.RequestStatus) error {
	r, ok := s.mgrReqs[id]
	if !ok {
		return fmt.Errorf("no manager request")
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	s.mgrReqs[id] = r
	return nil
}

func (s *memStore) ListPendingManagerRequests(_ context.Context, teamID uuid.UUID) ([]models.ManagerRequest, error) {
	var list []models.ManagerRequest
	for _, r := range s.mgrReqs {
		if r.TeamID == teamID && r.Status == models.StatusPending {
			list = append(list, r)
		}
	}
	return list, nil
}

func (s *memStore) InsertNotification(_ context.Context, userID uuid.UUID, message string) (*models.Notification, error) {
	n := models.Notification{ID: uuid.New(), UserID: userID, Message: message, CreatedAt: time.Now()}
	s.notes = append(s.notes, n)
	return &n, nil
}

func (s *memStore) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	_, ok := s.users[userID]
	return ok, nil
}

func (s *memStore) FirmRoleIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.firmRoles[userID], nil
}

func (s *memStore) TeamRoleID(_ context.Context, userID, teamID uuid.UUID) (*uuid.UUID, error) {
	if m, ok := s.teamMembers[pairKey{userID, teamID}]; ok {
		id := m.RoleID
		return &id, nil
	}
	return nil, nil
}

func (s *memStore) ProjectRoleID(_ context.Context, userID, projectID uuid.UUID) (*uuid.UUID, error) {
	if m, ok := s.projMembers[pairKey{userID, projectID}]; ok {
		id := m.RoleID
		return &id, nil
	}
	return nil, nil
}
