package auth

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"

	"github.com/inputlayer/inputlayer/errs"
)

// nativeUser is one row of the on-disk user table.
type nativeUser struct {
	Principal  string     `json:"principal"`
	PasswordSHA1 string   `json:"password_sha1"`
	Permission Permission `json:"permission"`
}

// Native authenticates against a JSON file of principal/password-hash/
// permission rows, the simplest durable auth backend.
type Native struct {
	mu    sync.RWMutex
	users map[string]nativeUser
}

// LoadNative reads the user table from path. A missing file yields an
// empty (deny-all) table rather than an error, since a freshly created
// KG has no users configured yet.
func LoadNative(path string) (*Native, error) {
	n := &Native{users: map[string]nativeUser{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return n, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []nativeUser
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		n.users[row.Principal] = row
	}
	return n, nil
}

// Save writes the current user table back to path.
func (n *Native) Save(path string) error {
	n.mu.RLock()
	rows := make([]nativeUser, 0, len(n.users))
	for _, u := range n.users {
		rows = append(rows, u)
	}
	n.mu.RUnlock()
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SetUser upserts a principal's password and permission.
func (n *Native) SetUser(principal, password string, perm Permission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users[principal] = nativeUser{
		Principal:    principal,
		PasswordSHA1: hashPassword(password),
		Permission:   perm,
	}
}

func hashPassword(password string) string {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (n *Native) Authenticate(principal, credential string) (Permission, error) {
	n.mu.RLock()
	u, ok := n.users[principal]
	n.mu.RUnlock()
	if !ok || u.PasswordSHA1 != hashPassword(credential) {
		return 0, errs.ErrAuth.New()
	}
	return u.Permission, nil
}
