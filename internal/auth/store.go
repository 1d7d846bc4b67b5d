package auth

import (
	"context"

	"github.com/desertthunder/sift/internal/models"
	"github.com/desertthunder/sift/internal/repositories"
)

// CredentialStore persists the single credential.
type CredentialStore interface {
	// Load returns nil when no credential is stored.
	Load(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, c models.Credential) error
	Clear(ctx context.Context) error
}

type kvStore interface {
	Get(ctx context.Context, store, key string, dst any) (bool, error)
	Put(ctx context.Context, store, key string, value any) error
	Delete(ctx context.Context, store, key string) error
}

const credentialKey = "credential"

// KVCredentialStore keeps the credential in the auth partition of the key/value store.
type KVCredentialStore struct {
	kv kvStore
}

// NewKVCredentialStore wraps kv, usually a [repositories.KVRepository].
func NewKVCredentialStore(kv kvStore) *KVCredentialStore {
	return &KVCredentialStore{kv: kv}
}

func (s *KVCredentialStore) Load(ctx context.Context) (*models.Credential, error) {
	var c models.Credential
	found, err := s.kv.Get(ctx, repositories.StoreAuth, credentialKey, &c)
	if err != nil || !found {
		return nil, err
	}
	return &c, nil
}

// Save replaces the stored credential in a single upsert.
func (s *KVCredentialStore) Save(ctx context.Context, c models.Credential) error {
	return s.kv.Put(ctx, repositories.StoreAuth, credentialKey, c)
}

func (s *KVCredentialStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, repositories.StoreAuth, credentialKey)
}
