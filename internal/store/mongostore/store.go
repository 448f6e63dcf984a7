// Package mongostore persists disagreements as MongoDB documents.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

// CollectionName holds one document per disagreement.
const CollectionName = "disagreements"

// Store implements dispute.Store with a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri and selects database. The caller owns Close.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if strings.TrimSpace(database) == "" {
		database = "mediation"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{client: client, coll: client.Database(database).Collection(CollectionName)}, nil
}

// EnsureIndexes creates the listing indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "participants.userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, session *dispute.Session) error {
	doc := docFromSession(session)
	doc.Version = 1

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return dispute.ErrAlreadyExists
		}
		return fmt.Errorf("insert disagreement: %w", err)
	}
	session.Version = 1
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*dispute.Session, error) {
	var doc sessionDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, dispute.ErrNotFound
		}
		return nil, fmt.Errorf("find disagreement: %w", err)
	}
	return doc.toSession(), nil
}

// Save replaces the document only if its version still matches.
func (s *Store) Save(ctx context.Context, session *dispute.Session) error {
	doc := docFromSession(session)
	doc.Version = session.Version + 1

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": session.ID, "version": session.Version}, doc)
	if err != nil {
		return fmt.Errorf("replace disagreement: %w", err)
	}
	if res.MatchedCount == 0 {
		count, err := s.coll.CountDocuments(ctx, bson.M{"_id": session.ID}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("count disagreement: %w", err)
		}
		if count == 0 {
			return dispute.ErrNotFound
		}
		return dispute.ErrConflict
	}

	session.Version = doc.Version
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]*dispute.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list disagreements: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode disagreements: %w", err)
	}

	out := make([]*dispute.Session, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toSession())
	}
	return out, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
