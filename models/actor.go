package models

import "github.com/google/uuid"

// Actor identifies the authenticated user behind a request. Role semantics
// belong to the authorization layer; the scoring core only carries the actor
// through to the Authorizer hooks.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}
