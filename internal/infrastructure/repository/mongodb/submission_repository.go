package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

type SubmissionRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewSubmissionRepository(coll *mongo.Collection) *SubmissionRepository {
	return &SubmissionRepository{
		coll: coll,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (r *SubmissionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("userId_createdAt"),
	})
	if err != nil {
		return fmt.Errorf("create submissions index: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	doc := *sub
	if doc.Topics == nil {
		doc.Topics = []string{}
	}
	if _, err := r.coll.InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	var sub domain.Submission
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&sub)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.WrapError(domain.ErrSubmissionNotFound, "get submission", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	if sub.Topics == nil {
		sub.Topics = []string{}
	}
	return &sub, nil
}

func (r *SubmissionRepository) SaveFile(ctx context.Context, id string, file domain.FilePointer) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"file": file, "updatedAt": r.now()}},
	)
	if err != nil {
		return fmt.Errorf("save submission file: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.WrapError(domain.ErrSubmissionNotFound, "save submission file", fmt.Errorf("id=%s", id))
	}
	return nil
}

// TransitionReport matches on the current report status so a stale writer
// cannot move a record backwards.
func (r *SubmissionRepository) TransitionReport(ctx context.Context, id string, report domain.Report) error {
	from := report.Status.Predecessors()
	if len(from) == 0 {
		return domain.WrapError(domain.ErrInvalidTransition, "transition report", fmt.Errorf("no transition into %s", report.Status))
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "report.status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"report": report, "updatedAt": r.now()}},
	)
	if err != nil {
		return fmt.Errorf("transition submission report: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count submission: %w", err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrSubmissionNotFound, "transition report", fmt.Errorf("id=%s", id))
	}
	return domain.WrapError(domain.ErrInvalidTransition, "transition report", fmt.Errorf("into %s", report.Status))
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := r.coll.Find(ctx, userMatch(filter.UserID), opts)
	if err != nil {
		return nil, fmt.Errorf("find submissions: %w", err)
	}
	out := make([]domain.Submission, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}
	for i := range out {
		if out[i].Topics == nil {
			out[i].Topics = []string{}
		}
	}
	return out, nil
}

type statsRow struct {
	Total      int64    `bson:"total"`
	Queued     int64    `bson:"queued"`
	Processing int64    `bson:"processing"`
	Done       int64    `bson:"done"`
	Error      int64    `bson:"error"`
	Flagged    int64    `bson:"flagged"`
	AvgPlag    *float64 `bson:"avgPlagiarismScore"`
	AvgAI      *float64 `bson:"avgAiProbability"`
}

func (r *SubmissionRepository) Stats(ctx context.Context, userID string) (domain.SubmissionStats, error) {
	isDone := bson.M{"$eq": bson.A{"$report.status", string(domain.StatusDone)}}
	countWhen := func(cond any) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{cond, 1, 0}}}
	}
	statusIs := func(s domain.SubmissionStatus) bson.M {
		return bson.M{"$eq": bson.A{"$report.status", string(s)}}
	}
	doneValue := func(field string) bson.M {
		return bson.M{"$avg": bson.M{"$cond": bson.A{isDone, field, nil}}}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: userMatch(userID)}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"total":      bson.M{"$sum": 1},
			"queued":     countWhen(statusIs(domain.StatusQueued)),
			"processing": countWhen(statusIs(domain.StatusProcessing)),
			"done":       countWhen(isDone),
			"error":      countWhen(statusIs(domain.StatusError)),
			"flagged": countWhen(bson.M{"$and": bson.A{
				isDone,
				bson.M{"$or": bson.A{
					bson.M{"$gte": bson.A{"$report.aiGenerated.probability", domain.FlaggedAIProbability}},
					bson.M{"$gte": bson.A{"$report.plagiarism.score", domain.FlaggedPlagiarismScore}},
				}},
			}}),
			"avgPlagiarismScore": doneValue("$report.plagiarism.score"),
			"avgAiProbability":   doneValue("$report.aiGenerated.probability"),
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return domain.SubmissionStats{}, fmt.Errorf("aggregate submission stats: %w", err)
	}
	var rows []statsRow
	if err := cur.All(ctx, &rows); err != nil {
		return domain.SubmissionStats{}, fmt.Errorf("decode submission stats: %w", err)
	}

	stats := domain.SubmissionStats{UserID: userID}
	if len(rows) == 0 {
		return stats, nil
	}
	row := rows[0]
	stats.Total = row.Total
	stats.Queued = row.Queued
	stats.Processing = row.Processing
	stats.Done = row.Done
	stats.Error = row.Error
	stats.Flagged = row.Flagged
	if row.AvgPlag != nil {
		stats.AvgPlagiarismScore = *row.AvgPlag
	}
	if row.AvgAI != nil {
		stats.AvgAIProbability = *row.AvgAI
	}
	return stats, nil
}

func userMatch(userID string) bson.M {
	if userID == "" {
		return bson.M{}
	}
	return bson.M{"userId": userID}
}
