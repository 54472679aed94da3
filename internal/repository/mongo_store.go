package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"prompt-chaining/backend/pkg/models"
)

// Collection names.
const (
	colWorkflows     = "workflows"
	colUsers         = "users"
	colRefreshTokens = "refresh_tokens"
)

// MongoStore is a MongoDB implementation of Repository.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Repository = (*MongoStore)(nil)

// NewMongoStore creates a MongoStore on database. The store disconnects
// client on Close.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

// ConnectMongo opens a client for uri and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// Migrate creates the indexes the store relies on.
func (s *MongoStore) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colWorkflows: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colRefreshTokens: {
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for col, idx := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", col, err)
		}
	}
	return nil
}

type workflowDoc struct {
	ID        string                `bson:"_id"`
	Nodes     []models.WorkflowNode `bson:"nodes"`
	CreatedAt time.Time             `bson:"created_at"`
}

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	FirstName    string    `bson:"first_name"`
	LastName     string    `bson:"last_name"`
	Role         string    `bson:"role"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type refreshTokenDoc struct {
	UserID    string    `bson:"_id"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// ReplaceAll deletes every workflow document and inserts workflow.
func (s *MongoStore) ReplaceAll(ctx context.Context, workflow *models.Workflow) error {
	col := s.db.Collection(colWorkflows)
	if _, err := col.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete workflows: %w", err)
	}
	doc := workflowDoc{ID: workflow.ID, Nodes: workflow.Nodes, CreatedAt: workflow.CreatedAt.UTC()}
	if _, err := col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// LoadLatest returns the newest workflow document.
func (s *MongoStore) LoadLatest(ctx context.Context) (*models.Workflow, error) {
	var doc workflowDoc
	err := s.db.Collection(colWorkflows).
		FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	return &models.Workflow{ID: doc.ID, Nodes: doc.Nodes, CreatedAt: doc.CreatedAt}, nil
}

// CreateUser inserts user.
func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, userDoc{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

// GetUserByID looks a user up by id.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	err := s.db.Collection(colUsers).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &models.User{
		ID:           doc.ID,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Role:         models.Role(doc.Role),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// SaveRefreshToken upserts the refresh token of token.UserID.
func (s *MongoStore) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	_, err := s.db.Collection(colRefreshTokens).UpdateOne(ctx,
		bson.M{"_id": token.UserID},
		bson.M{"$set": bson.M{"token": token.Token, "expires_at": token.ExpiresAt.UTC()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns an unexpired refresh token.
func (s *MongoStore) GetRefreshToken(ctx context.Context, token string, now time.Time) (*models.RefreshToken, error) {
	var doc refreshTokenDoc
	err := s.db.Collection(colRefreshTokens).
		FindOne(ctx, bson.M{"token": token, "expires_at": bson.M{"$gte": now.UTC()}}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &models.RefreshToken{Token: doc.Token, UserID: doc.UserID, ExpiresAt: doc.ExpiresAt}, nil
}

// Ping checks database connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
