package types

import (
	"errors"
	"strings"
)

// Scope is the (org, app, environment-type) triple every ledger operation is
// partitioned by. Keys in different scopes are unrelated even when their
// names collide, and no replay, diff, or rollback ever crosses a scope.
type Scope struct {
	OrgID     string
	AppID     string
	EnvTypeID string
}

var errScopeIncomplete = errors.New("SCOPE_INCOMPLETE")

func (s Scope) Validate() error {
	if strings.TrimSpace(s.OrgID) == "" || strings.TrimSpace(s.AppID) == "" || strings.TrimSpace(s.EnvTypeID) == "" {
		return errScopeIncomplete
	}
	return nil
}

func (s Scope) String() string {
	return s.OrgID + "/" + s.AppID + "/" + s.EnvTypeID
}
