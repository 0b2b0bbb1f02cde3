// Package tenant carries the caller identity every ledger operation is
// scoped by.
package tenant

import (
	"errors"
	"fmt"
)

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
	// RoleSystem is used by background jobs acting on a company's behalf.
	RoleSystem Role = "SYSTEM"
)

var roles = map[Role]struct{}{
	RoleOwner:  {},
	RoleAdmin:  {},
	RoleMember: {},
	RoleViewer: {},
	RoleSystem: {},
}

var (
	ErrAccessDenied   = errors.New("access denied")
	ErrMissingContext = errors.New("company and user identity are required")
)

// RequestContext identifies who is acting and on which company's data.
// It is immutable and passed explicitly into every ledger call.
type RequestContext struct {
	CompanyID int64
	UserID    int64
	Role      Role
}

// New builds a validated RequestContext.
func New(companyID, userID int64, role Role) (RequestContext, error) {
	rc := RequestContext{CompanyID: companyID, UserID: userID, Role: role}
	if err := rc.Validate(); err != nil {
		return RequestContext{}, err
	}
	return rc, nil
}

// System returns the context background jobs use for a company.
func System(companyID int64) RequestContext {
	return RequestContext{CompanyID: companyID, Role: RoleSystem}
}

func (rc RequestContext) Validate() error {
	if rc.CompanyID <= 0 {
		return ErrMissingContext
	}
	if rc.Role != RoleSystem && rc.UserID <= 0 {
		return ErrMissingContext
	}
	if _, ok := roles[rc.Role]; !ok {
		return fmt.Errorf("%w: unknown role %q", ErrAccessDenied, rc.Role)
	}
	return nil
}

// Authorize fails with ErrAccessDenied unless the entity's company matches
// the caller's.
func (rc RequestContext) Authorize(companyID int64) error {
	if companyID != rc.CompanyID {
		return ErrAccessDenied
	}
	return nil
}

// CanWrite reports whether the role may change ledger state.
func (rc RequestContext) CanWrite() bool {
	return rc.Role != RoleViewer
}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	_, ok := roles[r]
	return ok
}
