// Package apikey resolves a presented API key to an owning identity
// plus an optional permission mask. It is consulted only at the HTTP
// layer; the access evaluator itself never imports this package. Key
// secrets are hashed at rest the same way the operator's login password
// is, just with a different algorithm suited to a high-entropy secret
// rather than a human-chosen password.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/google/uuid"
)

// Permission is a named capability mask entry, e.g. "read", "write",
// "delete" — consulted only by the HTTP layer, never by the core.
type Permission string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermDelete Permission = "delete"
)

type Key struct {
	ID          uuid.UUID    `bson:"_id"`
	OwnerID     string       `bson:"owner_id"`
	HashedKey   string       `bson:"hashed_key"`
	Permissions []Permission `bson:"permissions"`
	CreatedAt   time.Time    `bson:"created_at"`
	RevokedAt   *time.Time   `bson:"revoked_at,omitempty"`
}

type Store struct {
	keys *mongo.Collection
}

func NewStore(client *mongo.Client, dbName string) *Store {
	return &Store{keys: client.Database(dbName).Collection("api_keys")}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.keys.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "hashed_key", Value: 1}},
	})
	return err
}

// generateSecret produces a high-entropy, hex-encoded random secret.
func generateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("apikey: generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Create issues a new key for ownerID and returns the clear secret
// (shown to the caller exactly once) alongside the persisted record.
func (s *Store) Create(ctx context.Context, ownerID string, perms []Permission) (string, *Key, error) {
	secret, err := generateSecret()
	if err != nil {
		return "", nil, err
	}
	key := &Key{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		HashedKey:   hashSecret(secret),
		Permissions: perms,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.keys.InsertOne(ctx, key); err != nil {
		return "", nil, fmt.Errorf("apikey: insert: %w", err)
	}
	return secret, key, nil
}

// Validate resolves a presented secret to its owning identity and
// permission mask, or returns (nil, nil) if the key is unknown or
// revoked.
func (s *Store) Validate(ctx context.Context, secret string) (*Key, error) {
	var key Key
	err := s.keys.FindOne(ctx, bson.M{"hashed_key": hashSecret(secret)}).Decode(&key)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apikey: lookup: %w", err)
	}
	if key.RevokedAt != nil {
		return nil, nil
	}
	return &key, nil
}

func (s *Store) Revoke(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.keys.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"revoked_at": now}})
	return err
}

func (s *Store) List(ctx context.Context, ownerID string) ([]Key, error) {
	cursor, err := s.keys.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var keys []Key
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// Has reports whether the key carries perm.
func (k *Key) Has(perm Permission) bool {
	for _, p := range k.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
