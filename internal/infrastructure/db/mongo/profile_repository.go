package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/ports"
)

// ProfileRepository implements ports.RoleRepository over the profiles,
// vendors and admins collections.
type ProfileRepository struct {
	profiles *mongo.Collection
	vendors  *mongo.Collection
	admins   *mongo.Collection
	notify   func(domain.ChangeEvent)
}

var _ ports.RoleRepository = (*ProfileRepository)(nil)

// ProfileOption configures a ProfileRepository.
type ProfileOption func(*ProfileRepository)

// WithNotifier publishes every successful write to fn. Use it when change
// streams are unavailable (standalone servers).
func WithNotifier(fn func(domain.ChangeEvent)) ProfileOption {
	return func(r *ProfileRepository) { r.notify = fn }
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *mongo.Database, opts ...ProfileOption) *ProfileRepository {
	r := &ProfileRepository{
		profiles: db.Collection(domain.TableProfiles),
		vendors:  db.Collection(domain.TableVendors),
		admins:   db.Collection(domain.TableAdmins),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureIndexes creates the collections' lookup indexes. One vendor record
// and one admin record per user.
func (r *ProfileRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.profiles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
	}); err != nil {
		return classify("profile indexes", err)
	}
	for _, coll := range []*mongo.Collection{r.vendors, r.admins} {
		if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}); err != nil {
			return classify(coll.Name()+" indexes", err)
		}
	}
	return nil
}

func (r *ProfileRepository) FindProfile(ctx context.Context, id string) (*domain.Profile, error) {
	return r.findProfile(ctx, bson.M{"_id": id})
}

func (r *ProfileRepository) FindProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return r.findProfile(ctx, bson.M{"email": normalizeEmail(email)})
}

func (r *ProfileRepository) findProfile(ctx context.Context, filter bson.M) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.profiles.FindOne(ctx, filter).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, classify("find profile", err)
	}
	return &p, nil
}

func (r *ProfileRepository) CreateProfile(ctx context.Context, p *domain.Profile) error {
	doc := *p
	doc.Email = normalizeEmail(doc.Email)
	stamp(&doc.CreatedAt, &doc.UpdatedAt)

	if _, err := r.profiles.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return classify("insert profile", err)
	}
	r.publish(domain.TableProfiles, domain.ChangeInsert, map[string]string{"id": doc.ID, "role": string(doc.Role)})
	return nil
}

func (r *ProfileRepository) UpdateProfileRole(ctx context.Context, id string, role domain.Role) error {
	res, err := r.profiles.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"role": role, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return classify("update profile role", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProfileNotFound
	}
	r.publish(domain.TableProfiles, domain.ChangeUpdate, map[string]string{"id": id, "role": string(role)})
	return nil
}

func (r *ProfileRepository) VendorExists(ctx context.Context, userID string) (bool, error) {
	return exists(ctx, r.vendors, userID)
}

func (r *ProfileRepository) FindVendorByUser(ctx context.Context, userID string) (*domain.VendorRecord, error) {
	var v domain.VendorRecord
	if err := r.vendors.FindOne(ctx, bson.M{"user_id": userID}).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrVendorNotFound
		}
		return nil, classify("find vendor", err)
	}
	return &v, nil
}

func (r *ProfileRepository) CreateVendor(ctx context.Context, v *domain.VendorRecord) error {
	doc := *v
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	stamp(&doc.CreatedAt, &doc.UpdatedAt)

	if _, err := r.vendors.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return classify("insert vendor", err)
	}
	r.publish(domain.TableVendors, domain.ChangeInsert, map[string]string{"id": doc.ID, "user_id": doc.UserID})
	return nil
}

func (r *ProfileRepository) AdminExists(ctx context.Context, userID string) (bool, error) {
	return exists(ctx, r.admins, userID)
}

func (r *ProfileRepository) CreateAdmin(ctx context.Context, a *domain.AdminRecord) error {
	doc := *a
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	if _, err := r.admins.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserExists
		}
		return classify("insert admin", err)
	}
	r.publish(domain.TableAdmins, domain.ChangeInsert, map[string]string{"id": doc.ID, "user_id": doc.UserID})
	return nil
}

func (r *ProfileRepository) CountAdmins(ctx context.Context) (int64, error) {
	n, err := r.admins.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, classify("count admins", err)
	}
	return n, nil
}

func (r *ProfileRepository) publish(table string, op domain.ChangeOp, cols map[string]string) {
	if r.notify == nil {
		return
	}
	r.notify(domain.ChangeEvent{Table: table, Op: op, Columns: cols})
}

func exists(ctx context.Context, coll *mongo.Collection, userID string) (bool, error) {
	n, err := coll.CountDocuments(ctx, bson.M{"user_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify("lookup "+coll.Name(), err)
	}
	return n > 0, nil
}

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}
