package identity

import "context"

// Event source tags distinguishing how a user entered the system.
const (
	SourceIdentity = "Identity"
	SourceOIDC     = "OIDC"
	SourceLDAP     = "LDAP"
)

// Integration event types appended to the outbox.
const (
	EventUserRegistered = "UserRegistered"
	EventRolesAssigned  = "RolesAssigned"
)

// RegisteredEvent is raised after a user was created and committed.
type RegisteredEvent struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	Username string `json:"username"`

	// Source tags the registration path (Identity, OIDC, LDAP).
	Source string `json:"source"`
}

// RolesAssignedEvent is raised after roles were newly assigned to a user.
type RolesAssignedEvent struct {
	UserID   string   `json:"userId"`
	TenantID string   `json:"tenantId"`
	Roles    []string `json:"roles"`
}

// EventHandler observes identity domain events after commit.
// Handlers run synchronously and must not block.
type EventHandler interface {
	HandleRegistered(ctx context.Context, event RegisteredEvent)
	HandleRolesAssigned(ctx context.Context, event RolesAssignedEvent)
}

// emitRegistered notifies all handlers about a committed registration.
func (s *Service) emitRegistered(ctx context.Context, event RegisteredEvent) {
	for _, handler := range s.collab.Events {
		handler.HandleRegistered(ctx, event)
	}
}

// emitRolesAssigned notifies all handlers about committed role grants.
func (s *Service) emitRolesAssigned(ctx context.Context, event RolesAssignedEvent) {
	for _, handler := range s.collab.Events {
		handler.HandleRolesAssigned(ctx, event)
	}
}
