package authz

// Resource types the ledger's controllers check against.
const (
	ResourceOrg         = "org"
	ResourceApp         = "app"
	ResourceEnvironment = "environment"
)

// Relations. Protected environment types require the elevated relation for
// writes and rollbacks; unprotected ones accept the plain one.
const (
	RelationViewVariables    = "view_variables"
	RelationWriteVariables   = "write_variables"
	RelationRevealSecrets    = "reveal_secrets"
	RelationRollback         = "rollback"
	RelationElevatedWrite    = "elevated_write"
	RelationElevatedRollback = "elevated_rollback"
	RelationManageRegistry   = "manage_registry"
)
