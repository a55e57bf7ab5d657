package types

// App is the registry row secrets handling hangs off. A BYOK app supplies
// only PublicKey and the server never holds the matching private key; a
// managed app custodies PrivateKey server-side, which is what enables the
// reveal (full decrypt) path.
type App struct {
	OrgID           string `json:"org_id"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	EnableSecrets   bool   `json:"enable_secrets"`
	IsManagedSecret bool   `json:"is_managed_secret"`
	PublicKey       string `json:"public_key,omitempty"`
	PrivateKey      string `json:"-"`
}

// EnvironmentType gates which relation the controllers require: protected
// environment types demand the elevated relations for writes and rollbacks.
type EnvironmentType struct {
	OrgID       string `json:"org_id"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsProtected bool   `json:"is_protected"`
}
