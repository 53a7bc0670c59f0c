package registry

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// RegisterUser creates an account. The passwordHash argument is the one-way
// digest the client computed before transmission; it is hashed again with
// bcrypt before it touches storage, so neither a plaintext password nor a
// replayable digest is kept at rest.
func (r *Registry) RegisterUser(ctx context.Context, username, passwordHash string) error {
	digest, err := bcrypt.GenerateFromPassword([]byte(passwordHash), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash credentials: %w", err)
	}

	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	if _, exists := r.users[username]; exists {
		return ErrUserExists
	}
	if err := r.store.SaveUser(ctx, username, string(digest)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	r.users[username] = string(digest)

	r.log.Info("user registered", "username", username)
	return nil
}

// Authenticate checks credentials for the login flow. Unknown usernames and
// wrong digests both report ErrInvalidCredentials.
func (r *Registry) Authenticate(username, passwordHash string) error {
	r.usersMu.RLock()
	stored, ok := r.users[username]
	r.usersMu.RUnlock()

	if !ok {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(passwordHash)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
