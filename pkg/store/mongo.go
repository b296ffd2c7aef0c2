package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blockboard/blockboard/pkg/geometry"
	"github.com/blockboard/blockboard/pkg/persist"
)

// Mongo is a document store: one document per board/breakpoint with a
// version counter. Geometry writes are compare-and-swap on the version, so
// a concurrent writer surfaces as ErrStaleWrite rather than a lost update.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// MongoConfig configures the mongo store.
type MongoConfig struct {
	URI        string
	Database   string // defaults to "blockboard"
	Collection string // defaults to "layouts"
}

// NewMongo connects to mongo and verifies connectivity.
func NewMongo(ctx context.Context, cfg MongoConfig) (*Mongo, error) {
	if cfg.Database == "" {
		cfg.Database = "blockboard"
	}
	if cfg.Collection == "" {
		cfg.Collection = "layouts"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return &Mongo{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// mongoDoc is the stored document shape.
type mongoDoc struct {
	ID      string           `bson:"_id"`
	Version uint64           `bson:"version"`
	Blocks  []geometry.Block `bson:"blocks"`
}

func docID(boardID, breakpoint string) string {
	return boardID + "/" + breakpoint
}

// SaveGeometry applies the batch with a version compare-and-swap.
func (m *Mongo) SaveGeometry(ctx context.Context, boardID, breakpoint string, batch persist.Batch) error {
	id := docID(boardID, breakpoint)

	var doc mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, id, err)
	}

	next := applyBatch(doc.Blocks, batch)
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": id, "version": doc.Version},
		bson.M{"$set": bson.M{"blocks": next}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, id, err)
	}
	if res.MatchedCount == 0 {
		// Someone moved the document's version underneath us.
		return ErrStaleWrite
	}
	return nil
}

// LoadBlocks reads the stored block list.
func (m *Mongo) LoadBlocks(ctx context.Context, boardID, breakpoint string) ([]geometry.Block, error) {
	var doc mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": docID(boardID, breakpoint)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return doc.Blocks, nil
}

// ReplaceBlocks overwrites the stored block list, creating the document on
// first write.
func (m *Mongo) ReplaceBlocks(ctx context.Context, boardID, breakpoint string, blocks []geometry.Block) error {
	id := docID(boardID, breakpoint)
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"blocks": blocks}, "$inc": bson.M{"version": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrUnavailable, id, err)
	}
	return nil
}

// Close disconnects from mongo.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ensure Mongo implements Store.
var _ Store = (*Mongo)(nil)
