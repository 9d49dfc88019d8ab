// Package mongostore is the MongoDB implementation of store.Store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/query"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collection = "issues"

var _ store.Store = (*Store)(nil)

type Store struct {
	col *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{col: db.Collection(collection)}
}

// EnsureIndexes creates the list and geo indexes. Failures are collected so
// one bad index does not hide the others.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		name  string
		model mongo.IndexModel
	}{
		{"createdAt", mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}}},
		{"status", mongo.IndexModel{Keys: bson.D{{Key: "status", Value: 1}}}},
		{"category", mongo.IndexModel{Keys: bson.D{{Key: "category", Value: 1}}}},
		{"owner", mongo.IndexModel{Keys: bson.D{{Key: "owner", Value: 1}}}},
		{"location.coordinates", mongo.IndexModel{Keys: bson.D{{Key: "location.coordinates", Value: "2dsphere"}}}},
	}
	var errs []string
	for _, m := range indexes {
		if _, err := s.col.Indexes().CreateOne(ctx, m.model); err != nil {
			errs = append(errs, m.name+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (s *Store) Find(ctx context.Context, plan *query.Plan) ([]models.Issue, error) {
	filter, err := Filter(plan.Filter)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(Sort(plan.Sort)).
		SetSkip(int64(plan.Skip())).
		SetLimit(int64(plan.Limit))
	if proj := Projection(plan.Select); proj != nil {
		opts.SetProjection(proj)
	}

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer cur.Close(ctx)

	issues := make([]models.Issue, 0, plan.Limit)
	for cur.Next(ctx) {
		var doc issueDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode issue: %w", err)
		}
		issues = append(issues, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *Store) Count(ctx context.Context, filter query.Predicate) (int64, error) {
	f, err := Filter(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.col.CountDocuments(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var doc issueDocument
	err := s.col.FindOne(ctx, byID(id)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	issue := doc.toModel()
	return &issue, nil
}

func (s *Store) Create(ctx context.Context, issue *models.Issue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	now := time.Now().UTC()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now
	if issue.Status == "" {
		issue.Status = models.StatusReported
	}
	if issue.Severity == "" {
		issue.Severity = models.SeverityMedium
	}
	if _, err := s.col.InsertOne(ctx, toDocument(issue)); err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id uuid.UUID, patch store.Patch) (*models.Issue, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc issueDocument
	err := s.col.FindOneAndUpdate(ctx, byID(id), bson.D{{Key: "$set", Value: patchSet(patch)}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	issue := doc.toModel()
	return &issue, nil
}

func patchSet(p store.Patch) bson.D {
	set := bson.D{}
	if p.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *p.Title})
	}
	if p.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *p.Description})
	}
	if p.Category != nil {
		set = append(set, bson.E{Key: "category", Value: *p.Category})
	}
	if p.Location != nil {
		set = append(set, bson.E{Key: "location", Value: toLocationDocument(*p.Location)})
	}
	if p.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *p.Status})
	}
	if p.Severity != nil {
		set = append(set, bson.E{Key: "severity", Value: *p.Severity})
	}
	if p.AssigneeID != nil {
		set = append(set, bson.E{Key: "assignee", Value: p.AssigneeID.String()})
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return append(set, bson.E{Key: "updatedAt", Value: updated})
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.col.DeleteOne(ctx, byID(id))
	if err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendImages pushes only when images[max-len(paths)] does not exist yet,
// i.e. the array has room for every new path.
func (s *Store) AppendImages(ctx context.Context, id uuid.UUID, paths []string, max int) ([]string, error) {
	room := max - len(paths)
	if room < 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, store.ErrImageLimit
	}
	filter, update := appendImagesUpdate(id, paths, room)
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "images", Value: 1}})

	var doc issueDocument
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.Images, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to append images: %w", err)
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, store.ErrImageLimit
}

func appendImagesUpdate(id uuid.UUID, paths []string, room int) (bson.D, bson.D) {
	filter := bson.D{
		{Key: "_id", Value: id.String()},
		{Key: "images." + strconv.Itoa(room), Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "images", Value: bson.D{{Key: "$each", Value: paths}}}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	}
	return filter, update
}

func (s *Store) AddUpvoter(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	update := bson.D{{Key: "$addToSet", Value: bson.D{{Key: "upvoters", Value: userID.String()}}}}
	res, err := s.col.UpdateOne(ctx, byID(id), update)
	if err != nil {
		return fmt.Errorf("failed to upvote issue: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GroupCount(ctx context.Context, field query.Field) ([]store.GroupCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field.Path},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to group issues by %s: %w", field.Name, err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Key   any   `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]store.GroupCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.GroupCount{Key: fmt.Sprint(r.Key), Count: r.Count})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, readpref.Primary())
}

func byID(id uuid.UUID) bson.D {
	return bson.D{{Key: "_id", Value: id.String()}}
}
