package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/panyam/scribe"
)

const notesCollection = "notes"

type noteDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d *noteDoc) toNote() *scribe.Note {
	return &scribe.Note{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Title:     d.Title,
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// NoteStore implements scribe.NoteStore on a notes collection.
type NoteStore struct {
	col    *mongo.Collection
	logger *zap.Logger
}

func NewNoteStore(db *mongo.Database, logger *zap.Logger) *NoteStore {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection(notesCollection)
	index := mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}}}
	if _, err := col.Indexes().CreateOne(ctx, index); err != nil {
		logger.Warn("failed to ensure note indexes (may already exist)", zap.Error(err))
	}
	return &NoteStore{col: col, logger: logger.Named("NoteStore")}
}

func (s *NoteStore) Create(ctx context.Context, n *scribe.Note) (*scribe.Note, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	doc := &noteDoc{
		ID:        primitive.NewObjectID(),
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		s.logger.Error("failed to create note", zap.String("userID", n.UserID), zap.Error(err))
		return nil, err
	}
	return doc.toNote(), nil
}

func (s *NoteStore) FindByID(ctx context.Context, id string) (*scribe.Note, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, scribe.ErrMalformedID
	}
	var doc noteDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, scribe.ErrNoteNotFound
		}
		return nil, err
	}
	return doc.toNote(), nil
}

func (s *NoteStore) FindByUser(ctx context.Context, userID string) ([]*scribe.Note, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := s.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*noteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	notes := make([]*scribe.Note, len(docs))
	for i, doc := range docs {
		notes[i] = doc.toNote()
	}
	return notes, nil
}

func (s *NoteStore) Update(ctx context.Context, n *scribe.Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(n.ID)
	if err != nil {
		return scribe.ErrMalformedID
	}
	update := bson.M{"$set": bson.M{
		"title":      n.Title,
		"content":    n.Content,
		"updated_at": time.Now(),
	}}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		s.logger.Error("failed to update note", zap.String("noteID", n.ID), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return scribe.ErrNoteNotFound
	}
	return nil
}

func (s *NoteStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return scribe.ErrMalformedID
	}
	result, err := s.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		s.logger.Error("failed to delete note", zap.String("noteID", id), zap.Error(err))
		return err
	}
	if result.DeletedCount == 0 {
		return scribe.ErrNoteNotFound
	}
	return nil
}
