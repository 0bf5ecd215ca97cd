package oauth

import (
	"context"
	"slices"

	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/oauth/store"
	"golang.org/x/crypto/bcrypt"
)

// Registry resolves registered clients and verifies their credentials and
// redirect URIs.
type Registry struct {
	Clients store.ClientStore
}

func NewRegistry(clients store.ClientStore) *Registry {
	return &Registry{Clients: clients}
}

// Resolve looks up a client by its public ID.
func (r *Registry) Resolve(ctx context.Context, clientID string) (domain.Client, error) {
	return r.Clients.GetClientByID(ctx, clientID)
}

// VerifyRedirectURI checks candidate against the client's registered set by
// exact string equality. No scheme or host relaxation and no prefix
// matching: anything short of an exact match opens the door to redirect
// spoofing.
func (r *Registry) VerifyRedirectURI(client domain.Client, candidate string) bool {
	if candidate == "" {
		return false
	}
	return slices.Contains(client.RedirectURIs, candidate)
}

// VerifySecret compares the presented secret against the stored bcrypt
// hash. The comparison is constant time with respect to the hash, so it
// leaks no timing signal about how close a guess came.
func (r *Registry) VerifySecret(client domain.Client, presented string) bool {
	if presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(presented)) == nil
}

// HashSecret hashes a client secret for storage at registration time.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
