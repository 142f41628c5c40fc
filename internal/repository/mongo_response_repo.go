package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harshit-ig/startup-genie/internal/db"
	"github.com/harshit-ig/startup-genie/internal/domain"
)

// MongoResponseRepository implementa ResponseRepository sobre la coleccion responses.
type MongoResponseRepository struct {
	coll *mongo.Collection
}

func NewMongoResponseRepository(database *mongo.Database) *MongoResponseRepository {
	return &MongoResponseRepository{coll: database.Collection(db.CollectionResponses)}
}

func (r *MongoResponseRepository) Create(ctx context.Context, response domain.Response) error {
	oid, err := objectID(response.ID)
	if err != nil {
		return err
	}
	userOID, err := objectID(response.UserID)
	if err != nil {
		return err
	}
	tokens := response.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	doc := responseDoc{
		ID:        oid,
		UserID:    userOID,
		Tokens:    tokens,
		Complete:  response.Complete,
		CreatedAt: response.CreatedAt,
		UpdatedAt: response.UpdatedAt,
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return mapMongoErr(err)
}

func (r *MongoResponseRepository) GetByID(ctx context.Context, id string) (domain.Response, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Response{}, err
	}
	var doc responseDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return domain.Response{}, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func (r *MongoResponseRepository) AppendToken(ctx context.Context, id, token string, now time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return r.update(ctx, bson.M{"_id": oid, "complete": false}, bson.M{
		"$push": bson.M{"tokens": token},
		"$set":  bson.M{"updated_at": now},
	})
}

func (r *MongoResponseRepository) Complete(ctx context.Context, id, fullResponse string, now time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return r.update(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"complete":      true,
		"full_response": fullResponse,
		"updated_at":    now,
	}})
}

func (r *MongoResponseRepository) Fail(ctx context.Context, id, errText string, now time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return r.update(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"complete":   true,
		"error":      errText,
		"updated_at": now,
	}})
}

func (r *MongoResponseRepository) update(ctx context.Context, filter, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
