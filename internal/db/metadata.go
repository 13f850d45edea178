package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/google/uuid"
	"github.com/teledrop/teledrop/internal/models"
)

// MetadataStore is a relational-shaped store backed by MongoDB's own
// multi-document transactions as the per-operation transactional
// session primitive. drops.slug carries a unique index; files.drop_id
// carries a unique index, enforcing the Drop/File 1:1 relationship at
// the store level rather than only in application code.
type MetadataStore struct {
	client *mongo.Client
	drops  *mongo.Collection
	files  *mongo.Collection
	log    *logrus.Entry
}

func NewMetadataStore(client *mongo.Client, dbName string, log *logrus.Entry) *MetadataStore {
	database := client.Database(dbName)
	return &MetadataStore{
		client: client,
		drops:  database.Collection("drops"),
		files:  database.Collection("files"),
		log:    log,
	}
}

// EnsureIndexes creates the unique indexes the store relies on. Safe to
// call on every startup.
func (s *MetadataStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.drops.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("db: create slug index: %w", err)
	}
	_, err = s.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "drop_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("db: create drop_id index: %w", err)
	}
	return nil
}

// Session is the transactional scope handed to callers of WithTransaction.
// It exposes only the operations the coordinator needs while inside a
// transaction; the coordinator never reaches for the raw collections.
type Session struct {
	ctx   context.Context
	drops *mongo.Collection
	files *mongo.Collection
}

// SessionOps is the set of operations available inside a transaction.
// *Session is the live MongoDB implementation; tests substitute a
// hand-written in-memory fake against this interface instead of a
// real MongoDB session.
type SessionOps interface {
	InsertDrop(drop *models.Drop) error
	InsertFile(file *models.File) error
	GetDropBySlugForUpdate(slug string) (*models.Drop, error)
	GetFileByDropID(dropID uuid.UUID) (*models.File, error)
	UpdateDropFields(dropID uuid.UUID, set bson.M) error
	DeleteDropAndFile(dropID uuid.UUID) error
}

// ErrSlugConflict is returned by InsertDrop when the unique slug index
// rejects a duplicate.
var ErrSlugConflict = fmt.Errorf("db: slug conflict")

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = fmt.Errorf("db: not found")

func (s *Session) InsertDrop(drop *models.Drop) error {
	_, err := s.drops.InsertOne(s.ctx, drop)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSlugConflict
	}
	return err
}

func (s *Session) InsertFile(file *models.File) error {
	_, err := s.files.InsertOne(s.ctx, file)
	return err
}

func (s *Session) GetDropBySlugForUpdate(slug string) (*models.Drop, error) {
	var drop models.Drop
	err := s.drops.FindOne(s.ctx, bson.M{"slug": slug}).Decode(&drop)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &drop, nil
}

func (s *Session) GetFileByDropID(dropID uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.files.FindOne(s.ctx, bson.M{"drop_id": dropID}).Decode(&file)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *Session) UpdateDropFields(dropID uuid.UUID, set bson.M) error {
	res, err := s.drops.UpdateOne(s.ctx, bson.M{"_id": dropID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Session) DeleteDropAndFile(dropID uuid.UUID) error {
	if _, err := s.files.DeleteOne(s.ctx, bson.M{"drop_id": dropID}); err != nil {
		return err
	}
	res, err := s.drops.DeleteOne(s.ctx, bson.M{"_id": dropID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// WithTransaction runs fn inside a MongoDB session/transaction. Any
// error returned by fn aborts the transaction; a nil return commits it.
// fn is typed against SessionOps rather than the concrete *Session so
// callers above this package can be exercised against a fake.
func (s *MetadataStore) WithTransaction(ctx context.Context, fn func(sess SessionOps) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("db: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(&Session{ctx: sessCtx, drops: s.drops, files: s.files})
	})
	return err
}

// GetBySlug loads a Drop (and, if eagerFile, its File) outside any
// transaction. This is the read path for preview/download requests.
func (s *MetadataStore) GetBySlug(ctx context.Context, slug string, eagerFile bool) (*models.Drop, error) {
	var drop models.Drop
	err := s.drops.FindOne(ctx, bson.M{"slug": slug}).Decode(&drop)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if eagerFile {
		var file models.File
		err := s.files.FindOne(ctx, bson.M{"drop_id": drop.ID}).Decode(&file)
		if err != nil && err != mongo.ErrNoDocuments {
			return nil, err
		}
		if err == nil {
			drop.File = &file
		}
	}
	return &drop, nil
}

func (s *MetadataStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	n, err := s.drops.CountDocuments(ctx, bson.M{"slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type SortKey string

const (
	SortCreatedAt SortKey = "created_at"
	SortTitle     SortKey = "title"
	SortSize      SortKey = "size"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// ListPage is a page of an owner's drops.
type ListPage struct {
	Drops []models.Drop
	Total int64
}

func (s *MetadataStore) List(ctx context.Context, ownerID string, sortKey SortKey, order Order, page, pageSize int) (*ListPage, error) {
	filter := bson.M{"owner_id": ownerID}

	total, err := s.drops.CountDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	dir := 1
	if order == Desc {
		dir = -1
	}
	sortField := string(SortCreatedAt)
	if sortKey == SortTitle {
		sortField = "title"
	}
	// Size lives on the file collection, not the drop collection, so a
	// size-sorted page is resolved with an aggregation join rather than
	// a plain find.
	if sortKey == SortSize {
		return s.listSortedBySize(ctx, ownerID, dir, page, pageSize, total)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: dir}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := s.drops.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var drops []models.Drop
	if err := cursor.All(ctx, &drops); err != nil {
		return nil, err
	}
	return &ListPage{Drops: drops, Total: total}, nil
}

func (s *MetadataStore) listSortedBySize(ctx context.Context, ownerID string, dir, page, pageSize int, total int64) (*ListPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	pipeline := bson.A{
		bson.M{"$match": bson.M{"owner_id": ownerID}},
		bson.M{"$lookup": bson.M{
			"from":         "files",
			"localField":   "_id",
			"foreignField": "drop_id",
			"as":           "file",
		}},
		bson.M{"$unwind": bson.M{"path": "$file", "preserveNullAndEmptyArrays": true}},
		bson.M{"$sort": bson.M{"file.size": dir}},
		bson.M{"$skip": (page - 1) * pageSize},
		bson.M{"$limit": pageSize},
	}
	cursor, err := s.drops.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		models.Drop `bson:",inline"`
		File        *models.File `bson:"file"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	drops := make([]models.Drop, len(rows))
	for i, r := range rows {
		drops[i] = r.Drop
		drops[i].File = r.File
	}
	return &ListPage{Drops: drops, Total: total}, nil
}
