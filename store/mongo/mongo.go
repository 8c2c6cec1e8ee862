// Package mongo implements account.Store on MongoDB. Unique indexes on
// email and external_id close the registration race; duplicate key errors
// surface as account.ErrDuplicate.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/orbitadevhub/backDashboard/account"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const collectionName = "accounts"

type document struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash,omitempty"`
	ExternalID   string    `bson:"external_id,omitempty"`
	Roles        []string  `bson:"roles"`
	TOTPSecret   string    `bson:"totp_secret,omitempty"`
	TOTPEnabled  bool      `bson:"totp_enabled"`
	FirstName    string    `bson:"first_name,omitempty"`
	LastName     string    `bson:"last_name,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// Store is a MongoDB-backed account.Store.
type Store struct {
	accounts *mongo.Collection
	now      func() time.Time
}

// Connect opens a client with OpenTelemetry command monitoring.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor())
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// New binds the store to db and ensures its indexes exist.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{
		accounts: db.Collection(collectionName),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	if err := s.createIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("accounts_email_key"),
		},
		{
			Keys: bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("accounts_external_id_key").
				SetPartialFilterExpression(bson.M{"external_id": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (account.Account, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (account.Account, error) {
	if externalID == "" {
		return account.Account{}, account.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"external_id": externalID})
}

func (s *Store) Create(ctx context.Context, draft account.Draft) (account.Account, error) {
	if err := draft.Validate(); err != nil {
		return account.Account{}, err
	}

	a := draft.Account(uuid.NewString(), s.now())
	if _, err := s.accounts.InsertOne(ctx, toDocument(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return account.Account{}, account.ErrDuplicate
		}
		return account.Account{}, fmt.Errorf("mongo insert: %w", err)
	}
	return a, nil
}

// Update applies patch with a compare-and-swap on updated_at; a concurrent
// writer makes the swap miss and the update is retried on the fresh document.
func (s *Store) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		current, err := s.FindByID(ctx, id)
		if err != nil {
			return account.Account{}, err
		}
		if patch.Empty() {
			return current, nil
		}

		next, err := patch.Apply(current, s.now())
		if err != nil {
			return account.Account{}, err
		}

		res, err := s.accounts.ReplaceOne(ctx,
			bson.M{"_id": id, "updated_at": current.UpdatedAt},
			toDocument(next))
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return account.Account{}, account.ErrDuplicate
			}
			return account.Account{}, fmt.Errorf("mongo replace: %w", err)
		}
		if res.MatchedCount == 1 {
			return next, nil
		}
	}
	return account.Account{}, fmt.Errorf("mongo replace: concurrent modification of %s", id)
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (account.Account, error) {
	var doc document
	err := s.accounts.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("mongo find: %w", err)
	}
	return fromDocument(doc), nil
}

func toDocument(a account.Account) document {
	return document{
		ID:           a.ID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		ExternalID:   a.ExternalID,
		Roles:        a.Roles,
		TOTPSecret:   a.TOTPSecret,
		TOTPEnabled:  a.TOTPEnabled,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromDocument(d document) account.Account {
	return account.Account{
		ID:           d.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		ExternalID:   d.ExternalID,
		Roles:        append([]string(nil), d.Roles...),
		TOTPSecret:   d.TOTPSecret,
		TOTPEnabled:  d.TOTPEnabled,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}
