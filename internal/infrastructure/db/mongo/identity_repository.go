package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventplanner/planner/internal/core/domain"
)

const identityCollection = "identities"

// IdentityRepository implements ports.IdentityDirectory using MongoDB.
type IdentityRepository struct {
	coll *mongo.Collection
}

func NewIdentityRepository(db *mongo.Database) *IdentityRepository {
	return &IdentityRepository{coll: db.Collection(identityCollection)}
}

type mongoIdentity struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Email          string             `bson:"email"`
	PasswordHash   string             `bson:"password_hash"`
	Metadata       map[string]string  `bson:"metadata,omitempty"`
	EmailConfirmed bool               `bson:"email_confirmed"`
	CreatedAt      int64              `bson:"created_at"`
	UpdatedAt      int64              `bson:"updated_at"`
}

func (m mongoIdentity) toDomain() *domain.Account {
	return &domain.Account{
		Identity: domain.Identity{
			ID:             m.ID.Hex(),
			Email:          m.Email,
			Metadata:       m.Metadata,
			EmailConfirmed: m.EmailConfirmed,
			CreatedAt:      unixToTime(m.CreatedAt),
		},
		PasswordHash: m.PasswordHash,
	}
}

// EnsureIndexes creates the unique email index.
func (r *IdentityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("identity indexes: %w", err)
	}
	return nil
}

func (r *IdentityRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	created := account.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	doc := mongoIdentity{
		ID:             primitive.NewObjectID(),
		Email:          normalizeEmail(account.Email),
		PasswordHash:   account.PasswordHash,
		Metadata:       account.Metadata,
		EmailConfirmed: account.EmailConfirmed,
		CreatedAt:      created.Unix(),
		UpdatedAt:      created.Unix(),
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (r *IdentityRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *IdentityRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var mi mongoIdentity
	if err := r.coll.FindOne(ctx, filter).Decode(&mi); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return mi.toDomain(), nil
}

// UpdateMetadata merges patch into the metadata bag. An empty value removes
// the key.
func (r *IdentityRepository) UpdateMetadata(ctx context.Context, id string, patch map[string]string) (*domain.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC().Unix()}
	unset := bson.M{}
	for k, v := range patch {
		if v == "" {
			unset["metadata."+k] = ""
			continue
		}
		set["metadata."+k] = v
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var mi mongoIdentity
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&mi)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("update identity metadata: %w", err)
	}
	return mi.toDomain(), nil
}

func (r *IdentityRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.setFields(ctx, id, bson.M{"password_hash": hash})
}

func (r *IdentityRepository) ConfirmEmail(ctx context.Context, id string) error {
	return r.setFields(ctx, id, bson.M{"email_confirmed": true})
}

func (r *IdentityRepository) setFields(ctx context.Context, id string, fields bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}
	fields["updated_at"] = time.Now().UTC().Unix()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
