package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/boardsync/pkg/domain/board"
)

// MembershipService caches project members and answers role questions for
// the acting user.
type MembershipService struct {
	backend  Backend
	session  Session
	logger   *slog.Logger
	mu       sync.RWMutex
	projects map[string]board.Project
}

func NewMembershipService(backend Backend, session Session, logger *slog.Logger) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{
		backend:  backend,
		session:  session,
		logger:   logger,
		projects: make(map[string]board.Project),
	}
}

// Load fetches the project and its member list.
func (m *MembershipService) Load(ctx context.Context, projectID string) (board.Project, error) {
	p, err := m.backend.GetProject(ctx, projectID)
	if err != nil {
		return board.Project{}, classify("load project", err)
	}
	if p.ID == "" {
		p.ID = projectID
	}
	m.mu.Lock()
	m.projects[projectID] = p
	m.mu.Unlock()
	return p, nil
}

func (m *MembershipService) Members(projectID string) []board.ProjectMember {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]board.ProjectMember(nil), m.projects[projectID].Members...)
}

// RoleOf returns the role of userID in projectID. ok is false when the
// project is not loaded or the user is not a member.
func (m *MembershipService) RoleOf(projectID, userID string) (board.Role, bool) {
	for _, mem := range m.Members(projectID) {
		if mem.User.ID == userID {
			return mem.Role, true
		}
	}
	return "", false
}

// CurrentRole returns the acting user's role in projectID.
func (m *MembershipService) CurrentRole(projectID string) (board.Role, bool) {
	if m.session == nil {
		return "", false
	}
	return m.RoleOf(projectID, m.session.UserID())
}

// AssignableMembers lists members a task can be assigned to: everyone except
// owners and the acting user.
func (m *MembershipService) AssignableMembers(projectID string) []board.UserRef {
	self := ""
	if m.session != nil {
		self = m.session.UserID()
	}
	var out []board.UserRef
	for _, mem := range m.Members(projectID) {
		if mem.Role == board.RoleOwner || mem.User.ID == self {
			continue
		}
		out = append(out, mem.User)
	}
	return out
}
