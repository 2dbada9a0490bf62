package store

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
)

// MongoStore is the production Store backed by a single "files"
// collection, matching the collection MongoDBPathIO drives in the
// source system.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and selects database/files.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &MongoStore{client: client, coll: client.Database(database).Collection("files")}, nil
}

// EnsureIndexes creates the unique compound (parent, name) index plus
// the secondary indexes on parent and status, per spec §4.2/§6.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "parent", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "parent", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (s *MongoStore) FindOne(ctx context.Context, parent, name string) (*vfsmodel.Node, error) {
	var n vfsmodel.Node
	err := s.coll.FindOne(ctx, bson.M{"parent": parent, "name": name}).Decode(&n)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *MongoStore) Insert(ctx context.Context, n *vfsmodel.Node) error {
	res, err := s.coll.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return err
	}
	n.ID = res.InsertedID
	return nil
}

func (s *MongoStore) Replace(ctx context.Context, parent, name string, n *vfsmodel.Node) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"parent": parent, "name": name}, n,
		options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) UpdateByID(ctx context.Context, id any, set map[string]any, unset []string) error {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		u := bson.M{}
		for _, f := range unset {
			u[f] = ""
		}
		update["$unset"] = u
	}
	_, err := s.coll.UpdateByID(ctx, id, update)
	return err
}

func (s *MongoStore) DeleteOne(ctx context.Context, parent, name string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"parent": parent, "name": name})
	return err
}

func (s *MongoStore) DeleteMany(ctx context.Context, parentPrefix string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"parent": bson.M{"$regex": "^" + regexEscape(parentPrefix)}})
	return err
}

// partialExclude matches the trailing ".partial" suffix the way
// pathio.py's `{"$not": {"$regex": r"\.partial$"}}` does.
var partialExclude = bson.M{"$not": bson.M{"$regex": `\.partial$`}}

func (s *MongoStore) List(ctx context.Context, parent string) (Lister, error) {
	cur, err := s.coll.Find(ctx, bson.M{"parent": parent, "name": partialExclude})
	if err != nil {
		return nil, err
	}
	return &mongoLister{cur: cur}, nil
}

func (s *MongoStore) FindPending(ctx context.Context) (Lister, error) {
	filter := bson.M{"$or": []bson.M{
		{"status": string(vfsmodel.StatusStaging)},
		{"local_path": bson.M{"$exists": true}, "status": bson.M{"$ne": string(vfsmodel.StatusCompleted)}},
	}}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &mongoLister{cur: cur}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoLister struct {
	cur *mongo.Cursor
}

func (l *mongoLister) Next(ctx context.Context) (*vfsmodel.Node, bool, error) {
	if !l.cur.Next(ctx) {
		return nil, false, l.cur.Err()
	}
	var n vfsmodel.Node
	if err := l.cur.Decode(&n); err != nil {
		return nil, false, err
	}
	return &n, true, nil
}

func (l *mongoLister) Close(ctx context.Context) error { return l.cur.Close(ctx) }

func regexEscape(s string) string {
	r := strings.NewReplacer(
		`.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`, `(`, `\(`, `)`, `\)`,
		`[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `^`, `\^`, `$`, `\$`, `|`, `\|`,
	)
	return r.Replace(s)
}
