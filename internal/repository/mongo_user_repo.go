package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harshit-ig/startup-genie/internal/db"
	"github.com/harshit-ig/startup-genie/internal/domain"
)

// MongoUserRepository implementa UserRepository sobre la coleccion users.
type MongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(database *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: database.Collection(db.CollectionUsers)}
}

func (r *MongoUserRepository) Create(ctx context.Context, user domain.User) error {
	oid, err := objectID(user.ID)
	if err != nil {
		return err
	}
	doc := userDoc{
		ID:        oid,
		Name:      user.Name,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Password:  user.PasswordHash,
		CreatedAt: user.CreatedAt,
	}
	_, err = r.coll.InsertOne(ctx, doc)
	return mapMongoErr(err)
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.User{}, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) UpdateProfile(ctx context.Context, id, firstName, lastName string) (domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.User{}, err
	}
	set := bson.M{}
	if firstName != "" {
		set["firstName"] = firstName
	}
	if lastName != "" {
		set["lastName"] = lastName
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}
	var doc userDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		return domain.User{}, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}

func (r *MongoUserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	update := bson.M{"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpire": ""}}
	if tokenHash != "" {
		update = bson.M{"$set": bson.M{"resetPasswordToken": tokenHash, "resetPasswordExpire": expiresAt}}
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	return r.findOne(ctx, bson.M{
		"resetPasswordToken":  tokenHash,
		"resetPasswordExpire": bson.M{"$gt": now},
	})
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	update := bson.M{
		"$set":   bson.M{"password": passwordHash},
		"$unset": bson.M{"resetPasswordToken": "", "resetPasswordExpire": ""},
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return mapMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return domain.User{}, mapMongoErr(err)
	}
	return doc.toDomain(), nil
}
