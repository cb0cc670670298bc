package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

const collectionMembers = "members"

type MemberRepository struct {
	col *mongo.Collection
}

func NewMemberRepository(db *mongo.Database) *MemberRepository {
	return &MemberRepository{col: db.Collection(collectionMembers)}
}

// GetOrCreate returns the record for externalID, inserting a bare record when
// none exists. The upsert is a single FindOneAndUpdate so concurrent
// first-contact events cannot produce duplicates.
func (r *MemberRepository) GetOrCreate(ctx context.Context, externalID string) (*domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	filter := bson.M{"external_id": externalID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"external_id": externalID,
			"verified":    false,
			"whitelisted": false,
			"created_at":  now,
			"updated_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var m domain.Member
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m domain.Member
	err := r.col.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Update replaces the stored record, matched by external id. Records are
// never deleted; every mutation flows through here.
func (r *MemberRepository) Update(ctx context.Context, m *domain.Member) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m.UpdatedAt = time.Now().UTC()
	result, err := r.col.ReplaceOne(ctx, bson.M{"external_id": m.ExternalID}, m)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *MemberRepository) ListVerified(ctx context.Context) ([]*domain.Member, error) {
	verified := true
	return r.List(ctx, ports.MemberFilter{Verified: &verified})
}

func (r *MemberRepository) List(ctx context.Context, filter ports.MemberFilter) ([]*domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := bson.M{}
	if filter.Verified != nil {
		query["verified"] = *filter.Verified
	}
	if filter.Whitelisted != nil {
		query["whitelisted"] = *filter.Whitelisted
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var members []*domain.Member
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// EnsureIndexes creates the indexes on the members collection. Called once at
// process start, never lazily.
func (r *MemberRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "verified", Value: 1}}},
		{Keys: bson.D{{Key: "wallet_address", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
