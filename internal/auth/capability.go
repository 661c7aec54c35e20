package auth

import (
	"slices"

	"github.com/pavelanni/quizdesk/internal/apperr"
	"github.com/pavelanni/quizdesk/internal/model"
)

// Capability names one protected operation.
type Capability string

const (
	CapSelf             Capability = "user:self"
	CapManageUsers      Capability = "users:manage"
	CapReadQuestionSet  Capability = "questionset:read"
	CapWriteQuestionSet Capability = "questionset:write"
	CapSubmitAttempt    Capability = "attempt:submit"
	CapViewOwnAttempts  Capability = "attempt:view-own"
	CapViewAllAttempts  Capability = "attempt:view-all"
	CapEvaluateAttempt  Capability = "attempt:evaluate"
	CapDeleteAttempt    Capability = "attempt:delete"
)

var (
	everyone = []model.Role{model.RoleTrainee, model.RoleAdmin, model.RoleSuperadmin}
	staff    = []model.Role{model.RoleAdmin, model.RoleSuperadmin}
)

// Capabilities is the single source of truth for role checks.
var Capabilities = map[Capability][]model.Role{
	CapSelf:             everyone,
	CapManageUsers:      {model.RoleSuperadmin},
	CapReadQuestionSet:  everyone,
	CapWriteQuestionSet: staff,
	CapSubmitAttempt:    {model.RoleTrainee},
	CapViewOwnAttempts:  {model.RoleTrainee},
	CapViewAllAttempts:  staff,
	CapEvaluateAttempt:  staff,
	CapDeleteAttempt:    {model.RoleSuperadmin},
}

// Allowed reports whether role holds c.
func Allowed(role model.Role, c Capability) bool {
	return slices.Contains(Capabilities[c], role)
}

// Check returns an authorization error unless id holds c.
func Check(id model.Identity, c Capability) error {
	if Allowed(id.Role, c) {
		return nil
	}
	return apperr.Forbidden("RoleNotAllowed", "role "+string(id.Role)+" may not perform "+string(c)).
		WithData(map[string]any{"Role": string(id.Role)})
}
