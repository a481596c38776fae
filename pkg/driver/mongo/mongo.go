// Package mongo implements the store driver contract on top of the official
// MongoDB driver. All calls are context-aware, so the monitoring loop invokes
// this driver directly without going through the worker pool.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
)

const codeNamespaceExists = 48

// Driver talks to the MongoDB replica set.
type Driver struct {
	uri    string
	dbName string
	logger *zap.Logger

	mu     sync.Mutex
	client *mongo.Client
	wc     *writeconcern.WriteConcern
	rc     *readconcern.ReadConcern
}

// New creates an unconnected driver. Connect must be called before use.
func New(uri, dbName string, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		uri:    uri,
		dbName: dbName,
		logger: logger,
		wc:     writeconcern.W1(),
		rc:     readconcern.Local(),
	}
}

func (d *Driver) Name() string { return driver.StoreMongoDB }

// SetConsistency maps the benchmark consistency level onto read/write
// concerns: "strong" uses majority, anything else w:1 / local.
func (d *Driver) SetConsistency(level string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if level == "strong" {
		d.wc = writeconcern.Majority()
		d.rc = readconcern.Majority()
		return
	}
	d.wc = writeconcern.W1()
	d.rc = readconcern.Local()
}

func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.uri))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("mongo ping: %w", err)
	}
	d.client = client
	d.logger.Info("mongodb connected", zap.String("uri", d.uri), zap.String("db", d.dbName))
	return nil
}

func (d *Driver) collection(table string) (*mongo.Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil, errors.New("mongo: not connected")
	}
	db := d.client.Database(d.dbName,
		options.Database().SetWriteConcern(d.wc).SetReadConcern(d.rc))
	return db.Collection(table), nil
}

func (d *Driver) EnsureTable(ctx context.Context, table string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return errors.New("mongo: not connected")
	}
	err := client.Database(d.dbName).CreateCollection(ctx, table)
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
			return nil
		}
		return fmt.Errorf("mongo create collection %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Insert(ctx context.Context, table string, rec driver.Record) error {
	coll, err := d.collection(table)
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, bson.M(rec)); err != nil {
		return fmt.Errorf("mongo insert into %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Find(ctx context.Context, table string, filter driver.Filter) ([]driver.Record, error) {
	coll, err := d.collection(table)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M(filter))
	if err != nil {
		return nil, fmt.Errorf("mongo find in %s: %w", table, err)
	}
	defer cur.Close(ctx)

	var out []driver.Record
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		delete(doc, "_id")
		out = append(out, driver.Record(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return out, nil
}

func (d *Driver) Update(ctx context.Context, table string, filter driver.Filter, patch driver.Patch) error {
	coll, err := d.collection(table)
	if err != nil {
		return err
	}
	if _, err := coll.UpdateMany(ctx, bson.M(filter), bson.M{"$set": bson.M(patch)}); err != nil {
		return fmt.Errorf("mongo update in %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Truncate(ctx context.Context, table string) error {
	coll, err := d.collection(table)
	if err != nil {
		return err
	}
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("mongo drop %s: %w", table, err)
	}
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Disconnect(ctx)
	d.client = nil
	return err
}
