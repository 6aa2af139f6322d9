package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Dreamy/core"
	"Dreamy/lib/sl"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "sessions"

// sessionDocument holds one session. Appends are a single $push so a batch
// lands in the document completely or not at all; the 16MB document limit
// bounds how many images a session can hold.
type sessionDocument struct {
	SessionId string         `bson:"session_id"`
	Images    [][]byte       `bson:"images"`
	Settings  *core.Settings `bson:"settings,omitempty"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)

	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		log.Warn("creating index", sl.Err(err))
	}

	return &MongoStorage{
		client:     client,
		collection: collection,
		log:        log.With(sl.Module("mongo")),
	}, nil
}

func (m *MongoStorage) find(sessionId string, projection bson.M) (*sessionDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var doc sessionDocument
	err := m.collection.FindOne(ctx, bson.M{"session_id": sessionId}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return &doc, nil
}

func (m *MongoStorage) GetImages(sessionId string) ([]core.Artifact, error) {
	doc, err := m.find(sessionId, bson.M{"images": 1})
	if err != nil || doc == nil {
		return nil, err
	}
	images := make([]core.Artifact, len(doc.Images))
	for i, img := range doc.Images {
		images[i] = img
	}
	return images, nil
}

func (m *MongoStorage) AppendImages(sessionId string, images []core.Artifact) error {
	if len(images) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	raw := make([][]byte, len(images))
	for i, img := range images {
		raw[i] = img
	}
	update := bson.M{
		"$push": bson.M{
			"images": bson.M{"$each": raw},
		},
		"$set": bson.M{
			"updated_at": time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := m.collection.UpdateOne(ctx, bson.M{"session_id": sessionId}, update, opts); err != nil {
		return fmt.Errorf("appending images: %w", err)
	}
	return nil
}

func (m *MongoStorage) ClearImages(sessionId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"images":     bson.A{},
			"updated_at": time.Now(),
		},
	}
	_, err := m.collection.UpdateOne(ctx, bson.M{"session_id": sessionId}, update)
	return err
}

func (m *MongoStorage) DeleteSession(sessionId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionId})
	return err
}

func (m *MongoStorage) GetSettings(sessionId string) (*core.Settings, error) {
	doc, err := m.find(sessionId, bson.M{"settings": 1})
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Settings, nil
}

func (m *MongoStorage) SaveSettings(sessionId string, settings core.Settings) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"settings":   settings,
			"updated_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"images": bson.A{},
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.collection.UpdateOne(ctx, bson.M{"session_id": sessionId}, update, opts)
	return err
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
