package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ashureev/lastminute/internal/domain"
)

type sessionDocument struct {
	ID        string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

type recentDocument struct {
	OwnerID   string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore implements Repository on MongoDB. A TTL index on expires_at
// lets the server drop expired sessions; reads also filter on expiry since
// the TTL monitor only runs periodically.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	recent   *mongo.Collection
	now      func() time.Time
}

// NewMongo connects, verifies the connection and ensures indexes.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	m := &MongoStore{
		client:   client,
		sessions: db.Collection("sessions"),
		recent:   db.Collection("recent_sessions"),
		now:      time.Now,
	}
	if err := m.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoStore) createIndexes(ctx context.Context) error {
	_, err := m.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create session ttl index: %w", err)
	}
	return nil
}

// CreateSession inserts a session document.
func (m *MongoStore) CreateSession(ctx context.Context, s *domain.Session) error {
	stamp(s, m.now())
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = m.sessions.InsertOne(ctx, sessionDocument{
		ID:        s.ID,
		Payload:   string(payload),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a live session.
func (m *MongoStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var doc sessionDocument
	err := m.sessions.FindOne(ctx, bson.M{
		"_id":        id,
		"expires_at": bson.M{"$gt": m.now()},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal([]byte(doc.Payload), &s); err != nil {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

// DeleteExpiredSessions removes sessions the TTL monitor has not reached yet.
func (m *MongoStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.sessions.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// RecentSessions returns the owner's recent list.
func (m *MongoStore) RecentSessions(ctx context.Context, ownerID string) ([]domain.RecentSession, error) {
	var doc recentDocument
	err := m.recent.FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []domain.RecentSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent sessions: %w", err)
	}
	return domain.ParseRecentSessions([]byte(doc.Payload)), nil
}

// AddRecentSession records entry at the front of the owner's list.
func (m *MongoStore) AddRecentSession(ctx context.Context, ownerID string, entry domain.RecentSession) ([]domain.RecentSession, error) {
	current, err := m.RecentSessions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	list := domain.AddRecentSession(current, entry)
	payload, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal recent sessions: %w", err)
	}
	_, err = m.recent.ReplaceOne(ctx,
		bson.M{"_id": ownerID},
		recentDocument{OwnerID: ownerID, Payload: string(payload), UpdatedAt: m.now()},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert recent sessions: %w", err)
	}
	return list, nil
}

// Ping verifies connectivity.
func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
