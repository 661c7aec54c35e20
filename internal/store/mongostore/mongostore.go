// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/quizdesk/internal/model"
	"github.com/pavelanni/quizdesk/internal/store"
)

const (
	colUsers        = "users"
	colQuestionSets = "question_sets"
	colAttempts     = "attempts"
	colMetadata     = "metadata"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, selects database and creates the unique indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = "quizdesk"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	slog.Debug("document store ready", "driver", "mongo", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colQuestionSets: {
			{Keys: bson.D{{Key: "date", Value: -1}}},
		},
		colAttempts: {
			{Keys: bson.D{{Key: "traineeId", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "questionSetId", Value: 1}}},
		},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	}
	return err
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter any) (T, error) {
	var out T
	if err := c.FindOne(ctx, filter).Decode(&out); err != nil {
		return out, translate(err)
	}
	return out, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts *options.FindOptions) ([]T, error) {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deleteByID(ctx context.Context, c *mongo.Collection, id string) error {
	res, err := c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func replaceByID(ctx context.Context, c *mongo.Collection, id string, doc any) error {
	res, err := c.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.db.Collection(colUsers).InsertOne(ctx, u)
	if err != nil {
		return translate(err)
	}
	slog.Info("created user", "id", u.ID, "email", u.Email, "role", u.Role)
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	return findOne[model.User](ctx, s.db.Collection(colUsers), bson.M{"_id": id})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return findOne[model.User](ctx, s.db.Collection(colUsers), bson.M{"email": email})
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[model.User](ctx, s.db.Collection(colUsers), bson.M{}, opts)
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) error {
	return replaceByID(ctx, s.db.Collection(colUsers), u.ID, u)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db.Collection(colUsers), id)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	n, err := s.db.Collection(colUsers).CountDocuments(ctx, bson.M{})
	return int(n), err
}

// Question sets

func (s *Store) CreateQuestionSet(ctx context.Context, qs model.QuestionSet) error {
	_, err := s.db.Collection(colQuestionSets).InsertOne(ctx, qs)
	return translate(err)
}

func (s *Store) GetQuestionSet(ctx context.Context, id string) (model.QuestionSet, error) {
	return findOne[model.QuestionSet](ctx, s.db.Collection(colQuestionSets), bson.M{"_id": id})
}

func (s *Store) ListQuestionSets(ctx context.Context, f store.QuestionSetFilter) ([]model.QuestionSet, error) {
	filter := bson.M{}
	if f.Date != "" {
		filter["date"] = f.Date
	}
	if f.CreatedBy != "" {
		filter["createdBy"] = f.CreatedBy
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[model.QuestionSet](ctx, s.db.Collection(colQuestionSets), filter, opts)
}

func (s *Store) UpdateQuestionSet(ctx context.Context, qs model.QuestionSet) error {
	return replaceByID(ctx, s.db.Collection(colQuestionSets), qs.ID, qs)
}

func (s *Store) DeleteQuestionSet(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db.Collection(colQuestionSets), id)
}

// Attempts

func (s *Store) CreateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	a.Version = 1
	if _, err := s.db.Collection(colAttempts).InsertOne(ctx, a); err != nil {
		return model.Attempt{}, translate(err)
	}
	return a, nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (model.Attempt, error) {
	return findOne[model.Attempt](ctx, s.db.Collection(colAttempts), bson.M{"_id": id})
}

func (s *Store) FindAttempt(ctx context.Context, traineeID, date string) (model.Attempt, error) {
	return findOne[model.Attempt](ctx, s.db.Collection(colAttempts), bson.M{"traineeId": traineeID, "date": date})
}

func (s *Store) ListAttempts(ctx context.Context, f store.AttemptFilter) ([]model.Attempt, error) {
	filter := bson.M{}
	if f.TraineeID != "" {
		filter["traineeId"] = f.TraineeID
	}
	if f.QuestionSetID != "" {
		filter["questionSetId"] = f.QuestionSetID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	date := bson.M{}
	if f.Date != "" {
		date["$eq"] = f.Date
	}
	if f.From != "" {
		date["$gte"] = f.From
	}
	if f.To != "" {
		date["$lte"] = f.To
	}
	if len(date) > 0 {
		filter["date"] = date
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return findAll[model.Attempt](ctx, s.db.Collection(colAttempts), filter, opts)
}

// UpdateAttempt replaces the attempt only if its stored version matches.
func (s *Store) UpdateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	expected := a.Version
	a.Version = expected + 1
	res, err := s.db.Collection(colAttempts).ReplaceOne(ctx, bson.M{"_id": a.ID, "version": expected}, a)
	if err != nil {
		return model.Attempt{}, translate(err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetAttempt(ctx, a.ID); err != nil {
			return model.Attempt{}, err
		}
		slog.Warn("stale attempt update", "id", a.ID, "version", expected)
		return model.Attempt{}, store.ErrStale
	}
	return a, nil
}

func (s *Store) DeleteAttempt(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db.Collection(colAttempts), id)
}

// Metadata

type metaDoc struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	d, err := findOne[metaDoc](ctx, s.db.Collection(colMetadata), bson.M{"_id": key})
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return d.Value, err
}

func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.Collection(colMetadata).ReplaceOne(ctx,
		bson.M{"_id": key}, metaDoc{Key: key, Value: value}, options.Replace().SetUpsert(true))
	return err
}
