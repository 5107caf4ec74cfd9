package services

import (
	"context"

	"github.com/matchdesk/scoring-system/models"
)

// Authorizer is the hook point to the excluded permission layer. Every
// mutating request passes through it before the validator runs. The core
// never interprets roles itself.
type Authorizer interface {
	CanCreateSet(ctx context.Context, actor models.Actor, match *models.Match) bool
	CanMarkSetPlayed(ctx context.Context, actor models.Actor, match *models.Match) bool
	CanUpdateMatch(ctx context.Context, actor models.Actor, match *models.Match) bool
}

// RoleAuthorizer is the default wiring: scorekeeping is restricted to the
// named roles. Standing in for the portal's ownership checks, which live in
// the excluded layer.
type RoleAuthorizer struct {
	ScoringRoles map[string]bool
}

func NewRoleAuthorizer(roles ...string) *RoleAuthorizer {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return &RoleAuthorizer{ScoringRoles: allowed}
}

func (a *RoleAuthorizer) CanCreateSet(_ context.Context, actor models.Actor, _ *models.Match) bool {
	return a.ScoringRoles[actor.Role]
}

func (a *RoleAuthorizer) CanMarkSetPlayed(_ context.Context, actor models.Actor, _ *models.Match) bool {
	return a.ScoringRoles[actor.Role]
}

func (a *RoleAuthorizer) CanUpdateMatch(_ context.Context, actor models.Actor, _ *models.Match) bool {
	return a.ScoringRoles[actor.Role]
}
