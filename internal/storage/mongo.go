package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowcore/flowexpr/pkg/api"
)

// Mongo is an api.Storage backed by MongoDB, grounded on the teacher's
// mongo/internal/persistence.MongoInstanceStore.
type Mongo struct {
	coll *mongo.Collection
}

var _ api.Storage = (*Mongo)(nil)

// NewMongo creates a Mongo-backed store. dbName defaults to "flowexpr"
// and collName to "expressions" when empty.
func NewMongo(client *mongo.Client, dbName, collName string) *Mongo {
	if dbName == "" {
		dbName = "flowexpr"
	}
	if collName == "" {
		collName = "expressions"
	}
	return &Mongo{coll: client.Database(dbName).Collection(collName)}
}

type mongoExpressionDoc struct {
	ID     string `bson:"_id"`
	Record []byte `bson:"record"`
}

func (s *Mongo) Load(ctx context.Context, fei api.FEI) (api.ExpressionRecord, error) {
	var doc mongoExpressionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": fei.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return api.ExpressionRecord{}, api.ErrExpressionNotFound
		}
		return api.ExpressionRecord{}, err
	}
	return decodeRecord(doc.Record)
}

func (s *Mongo) Save(ctx context.Context, rec api.ExpressionRecord) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	doc := mongoExpressionDoc{ID: rec.Fei.String(), Record: blob}
	opts := options.Replace().SetUpsert(true)
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	return err
}

func (s *Mongo) Delete(ctx context.Context, fei api.FEI) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": fei.String()})
	return err
}
