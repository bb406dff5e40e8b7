package auth

// None grants full admin permission to any principal without checking
// a credential. Intended for local/embedded use where the process
// boundary is the trust boundary.
type None struct{}

func (None) Authenticate(principal, credential string) (Permission, error) {
	return PermRead | PermWrite | PermAdmin, nil
}
