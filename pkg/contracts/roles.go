package contracts

// Role names a capability an account may hold.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleVerifier Role = "verifier"
	RoleOracle   Role = "oracle"
)

// ParseRole maps a path segment or config key to a role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleVerifier, RoleOracle:
		return Role(s), nil
	case RoleAdmin:
		return "", Errorf(KindInvalidInput, "parse_role", "admin is transferred, not granted")
	}
	return "", Errorf(KindInvalidInput, "parse_role", "unknown role %q", s)
}
