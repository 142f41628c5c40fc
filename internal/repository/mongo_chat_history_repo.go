package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harshit-ig/startup-genie/internal/db"
	"github.com/harshit-ig/startup-genie/internal/domain"
)

// MongoChatHistoryRepository implementa ChatHistoryRepository sobre chathistories.
type MongoChatHistoryRepository struct {
	coll *mongo.Collection
}

func NewMongoChatHistoryRepository(database *mongo.Database) *MongoChatHistoryRepository {
	return &MongoChatHistoryRepository{coll: database.Collection(db.CollectionChatHistories)}
}

func (r *MongoChatHistoryRepository) GetOrCreate(ctx context.Context, userID string, now time.Time) (domain.ChatHistory, error) {
	userOID, err := objectID(userID)
	if err != nil {
		return domain.ChatHistory{}, err
	}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":        primitive.NewObjectID(),
		"messages":   bson.A{},
		"created_at": now,
		"updated_at": now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc chatHistoryDoc
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"user_id": userOID}, update, opts).Decode(&doc); err != nil {
		return domain.ChatHistory{}, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func (r *MongoChatHistoryRepository) Save(ctx context.Context, history domain.ChatHistory) error {
	userOID, err := objectID(history.UserID)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set": bson.M{
			"messages":   chatMessageDocs(history.Messages),
			"updated_at": history.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": history.UpdatedAt},
	}
	_, err = r.coll.UpdateOne(ctx, bson.M{"user_id": userOID}, update, options.Update().SetUpsert(true))
	return mapMongoErr(err)
}
