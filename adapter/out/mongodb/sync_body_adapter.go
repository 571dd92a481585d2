package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailsync_server/core/port/out"
)

// =============================================================================
// MongoDB Body Adapter
// =============================================================================

const (
	collectionBodies = "mail_bodies"

	// Only compress content larger than this.
	compressionThreshold = 1024 // 1KB

	// Bodies are re-fetchable from the provider, so they expire.
	bodyRetention = 90 * 24 * time.Hour
)

// BodyAdapter implements out.BodyStore using MongoDB.
type BodyAdapter struct {
	collection *mongo.Collection
}

// NewBodyAdapter creates the adapter over the given database.
func NewBodyAdapter(db *mongo.Database) *BodyAdapter {
	return &BodyAdapter{collection: db.Collection(collectionBodies)}
}

// EnsureIndexes creates the key and TTL indexes for the collection.
func (a *BodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type bodyDocument struct {
	Key          string    `bson:"key"`
	Content      []byte    `bson:"content"`
	IsCompressed bool      `bson:"is_compressed"`
	OriginalSize int64     `bson:"original_size"`
	StoredAt     time.Time `bson:"stored_at"`
	ExpiresAt    time.Time `bson:"expires_at"`
}

// Put stores one HTML body under the given key, replacing any previous
// version. Returns the key the caller should record on the message row.
func (a *BodyAdapter) Put(ctx context.Context, key string, content string) (string, error) {
	now := time.Now()
	doc := bodyDocument{
		Key:          key,
		OriginalSize: int64(len(content)),
		StoredAt:     now,
		ExpiresAt:    now.Add(bodyRetention),
	}

	if len(content) > compressionThreshold {
		compressed, err := compress([]byte(content))
		if err != nil {
			return "", fmt.Errorf("compress body: %w", err)
		}
		doc.Content = compressed
		doc.IsCompressed = true
	} else {
		doc.Content = []byte(content)
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := a.collection.ReplaceOne(ctx, bson.M{"key": key}, doc, opts); err != nil {
		return "", fmt.Errorf("store body: %w", err)
	}
	return key, nil
}

// Get returns the stored body, or "" when the key is absent.
func (a *BodyAdapter) Get(ctx context.Context, key string) (string, error) {
	var doc bodyDocument
	err := a.collection.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", fmt.Errorf("load body: %w", err)
	}

	if !doc.IsCompressed {
		return string(doc.Content), nil
	}
	decompressed, err := decompress(doc.Content)
	if err != nil {
		return "", fmt.Errorf("decompress body: %w", err)
	}
	return string(decompressed), nil
}

// =============================================================================
// Compression helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var _ out.BodyStore = (*BodyAdapter)(nil)
