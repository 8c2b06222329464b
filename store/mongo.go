package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stevemurr/booksdb/query"
)

// Server error codes the mongo backend translates into store errors.
const (
	codeNamespaceExists           = 48
	codeDocumentValidationFailure = 121
)

// MongoStore runs every operation against a MongoDB database. Validators
// are installed as $jsonSchema collection validators, so the server itself
// rejects bad writes.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateCollection(ctx context.Context, name string, validator map[string]any) error {
	opts := options.CreateCollection()
	if validator != nil {
		opts.SetValidator(bson.D{{Key: "$jsonSchema", Value: validator}})
	}
	if err := s.db.CreateCollection(ctx, name, opts); err != nil {
		return translateMongoErr(err)
	}
	return nil
}

func (s *MongoStore) Drop(ctx context.Context, name string) error {
	return s.db.Collection(name).Drop(ctx)
}

func (s *MongoStore) GetSchema(ctx context.Context, collection string) (map[string]any, error) {
	schemas, err := s.schemas(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return nil, err
	}
	return schemas[collection], nil
}

func (s *MongoStore) ListSchemas(ctx context.Context) (map[string]map[string]any, error) {
	return s.schemas(ctx, bson.D{})
}

func (s *MongoStore) schemas(ctx context.Context, filter bson.D) (map[string]map[string]any, error) {
	specs, err := s.db.ListCollectionSpecifications(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := make(map[string]map[string]any)
	for _, spec := range specs {
		if spec.Options == nil {
			continue
		}
		var opts bson.D
		if err := bson.Unmarshal(spec.Options, &opts); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", spec.Name, err)
		}
		validator, _ := query.Canonical(opts).(map[string]any)["validator"].(map[string]any)
		if js, ok := validator["$jsonSchema"].(map[string]any); ok {
			result[spec.Name] = js
		}
	}
	return result, nil
}

func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *MongoStore) InsertMany(ctx context.Context, collection string, docs []Document) ([]any, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(docs))
	batch := make([]any, len(docs))
	for i, in := range docs {
		doc := copyDoc(in)
		if doc == nil {
			doc = Document{}
		}
		if _, ok := doc["_id"]; !ok {
			doc["_id"] = primitive.NewObjectID()
		}
		ids[i] = doc["_id"]
		batch[i] = doc
	}
	_, err := s.db.Collection(collection).InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	if err == nil {
		return ids, nil
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		first := bwe.WriteErrors[0]
		return ids[:first.Index], &InsertError{Index: first.Index, Err: translateWriteError(first.WriteError)}
	}
	return nil, err
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter query.Filter, proj query.Projection) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		opts := options.Find()
		if p := proj.BSON(); p != nil {
			opts.SetProjection(p)
		}
		cur, err := s.db.Collection(collection).Find(ctx, filter.BSON(), opts)
		if err != nil {
			yield(nil, err)
			return
		}
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var d bson.D
			if err := cur.Decode(&d); err != nil {
				yield(nil, err)
				return
			}
			if !yield(query.Canonical(d).(map[string]any), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter query.Filter, update query.Update) (UpdateResult, error) {
	res, err := s.db.Collection(collection).UpdateOne(ctx, filter.BSON(), update.BSON())
	if err != nil {
		return UpdateResult{}, translateMongoErr(err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	res, err := s.db.Collection(collection).DeleteMany(ctx, filter.BSON())
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func translateWriteError(we mongo.WriteError) error {
	switch {
	case we.Code == codeDocumentValidationFailure:
		return fmt.Errorf("%w: %s", ErrValidation, we.Message)
	case mongo.IsDuplicateKeyError(we):
		return fmt.Errorf("%w: %s", ErrDuplicateKey, we.Message)
	}
	return we
}

func translateMongoErr(err error) error {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.HasErrorCode(codeDocumentValidationFailure):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	case se.HasErrorCode(codeNamespaceExists):
		return fmt.Errorf("%w: %v", ErrCollectionExists, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return err
}
