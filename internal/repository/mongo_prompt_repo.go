package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harshit-ig/startup-genie/internal/db"
	"github.com/harshit-ig/startup-genie/internal/domain"
)

// MongoPromptRepository implementa PromptRepository sobre la coleccion prompts.
type MongoPromptRepository struct {
	coll *mongo.Collection
}

func NewMongoPromptRepository(database *mongo.Database) *MongoPromptRepository {
	return &MongoPromptRepository{coll: database.Collection(db.CollectionPrompts)}
}

func (r *MongoPromptRepository) Create(ctx context.Context, prompt domain.Prompt) error {
	oid, err := objectID(prompt.ID)
	if err != nil {
		return err
	}
	userOID, err := objectID(prompt.UserID)
	if err != nil {
		return err
	}
	doc := promptDoc{
		ID:         oid,
		UserID:     userOID,
		Message:    prompt.Message,
		Processed:  prompt.Processed,
		Processing: prompt.Processing,
		CreatedAt:  prompt.CreatedAt,
	}
	if prompt.ResponseID != "" {
		respOID, err := objectID(prompt.ResponseID)
		if err != nil {
			return err
		}
		doc.ResponseID = &respOID
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return mapMongoErr(err)
}

func (r *MongoPromptRepository) GetByID(ctx context.Context, id string) (domain.Prompt, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Prompt{}, err
	}
	var doc promptDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return domain.Prompt{}, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func (r *MongoPromptRepository) ClaimNextPending(ctx context.Context, responseID string, now time.Time) (domain.Prompt, bool, error) {
	respOID, err := objectID(responseID)
	if err != nil {
		return domain.Prompt{}, false, err
	}
	filter := bson.M{"processed": false, "processing": false}
	update := bson.M{"$set": bson.M{
		"processing":   true,
		"response_id":  respOID,
		"processed_at": now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc promptDoc
	err = r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Prompt{}, false, nil
	}
	if err != nil {
		return domain.Prompt{}, false, err
	}
	return doc.toDomain(), true, nil
}

func (r *MongoPromptRepository) MarkProcessed(ctx context.Context, id string, now time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"processed":  true,
		"processing": false,
	}})
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
