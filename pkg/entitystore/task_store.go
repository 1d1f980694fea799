package entitystore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/task"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/retrieval"
	"github.com/google/uuid"
)

// TaskStore is the reference EntityStore implementation for "tasks".
type TaskStore struct {
	db       *ent.Client
	embedder embedclient.Client
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore(db *ent.Client, embedder embedclient.Client) *TaskStore {
	return &TaskStore{db: db, embedder: embedder}
}

var _ EntityStore = (*TaskStore)(nil)

// Find applies the supported filter keys (status, priority, project_id,
// assignee) and returns matching tasks for userID, newest first unless
// sort overrides.
func (s *TaskStore) Find(ctx context.Context, userID string, filter Filter, limit int, srt Sort) ([]interface{}, error) {
	q := s.db.Task.Query().Where(task.UserID(userID))

	if v, ok := filter["id"].(string); ok && v != "" {
		q = q.Where(task.ID(v))
	}
	if v, ok := filter["status"].(string); ok && v != "" {
		q = q.Where(task.StatusEQ(task.Status(v)))
	}
	if v, ok := filter["priority"].(string); ok && v != "" {
		q = q.Where(task.PriorityEQ(task.Priority(v)))
	}
	if v, ok := filter["project_id"].(string); ok && v != "" {
		q = q.Where(task.ProjectID(v))
	}
	if v, ok := filter["assignee"].(string); ok && v != "" {
		q = q.Where(task.Assignee(v))
	}

	if limit <= 0 {
		limit = 50
	}
	q = q.Limit(limit)

	switch srt.Field {
	case "due_date":
		if srt.Descending {
			q = q.Order(ent.Desc(task.FieldDueDate))
		} else {
			q = q.Order(ent.Asc(task.FieldDueDate))
		}
	case "title":
		if srt.Descending {
			q = q.Order(ent.Desc(task.FieldTitle))
		} else {
			q = q.Order(ent.Asc(task.FieldTitle))
		}
	default:
		q = q.Order(ent.Desc(task.FieldCreatedAt))
	}

	tasks, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding tasks: %w", err)
	}
	docs := make([]interface{}, len(tasks))
	for i, t := range tasks {
		docs[i] = t
	}
	return docs, nil
}

// Insert creates a task from a document map, embedding title+description
// for later vector_search.
func (s *TaskStore) Insert(ctx context.Context, userID string, doc map[string]interface{}) (string, error) {
	title, _ := doc["title"].(string)
	if title == "" {
		return "", fmt.Errorf("insert task: title is required")
	}

	id := uuid.NewString()
	create := s.db.Task.Create().
		SetID(id).
		SetUserID(userID).
		SetTitle(title)

	if v, ok := doc["description"].(string); ok && v != "" {
		create = create.SetDescription(v)
	}
	if v, ok := doc["status"].(string); ok && v != "" {
		create = create.SetStatus(task.Status(v))
	}
	if v, ok := doc["priority"].(string); ok && v != "" {
		create = create.SetPriority(task.Priority(v))
	}
	if v, ok := doc["assignee"].(string); ok && v != "" {
		create = create.SetAssignee(v)
	}
	if v, ok := doc["due_date"].(time.Time); ok {
		create = create.SetDueDate(v)
	}
	if v, ok := doc["blockers"].([]string); ok {
		create = create.SetBlockers(v)
	}
	if v, ok := doc["context"].(string); ok && v != "" {
		create = create.SetContext(v)
	}
	if v, ok := doc["project_id"].(string); ok && v != "" {
		create = create.SetProjectID(v)
	}

	if s.embedder != nil {
		embedSource := title
		if desc, ok := doc["description"].(string); ok && desc != "" {
			embedSource += " " + desc
		}
		if vec, err := s.embedder.Embed(ctx, embedSource); err == nil {
			create = create.SetEmbedding(vec.ToFloat32Slice())
		}
	}

	t, err := create.Save(ctx)
	if err != nil {
		return "", fmt.Errorf("inserting task: %w", err)
	}
	return t.ID, nil
}

// Update applies a partial patch to a task owned by userID.
func (s *TaskStore) Update(ctx context.Context, userID, id string, patch Patch) error {
	update := s.db.Task.Update().Where(task.ID(id), task.UserID(userID))

	if v, ok := patch["title"].(string); ok && v != "" {
		update = update.SetTitle(v)
	}
	if v, ok := patch["description"].(string); ok {
		update = update.SetDescription(v)
	}
	if v, ok := patch["status"].(string); ok && v != "" {
		update = update.SetStatus(task.Status(v))
	}
	if v, ok := patch["priority"].(string); ok && v != "" {
		update = update.SetPriority(task.Priority(v))
	}
	if v, ok := patch["assignee"].(string); ok {
		update = update.SetAssignee(v)
	}
	if v, ok := patch["due_date"].(time.Time); ok {
		update = update.SetDueDate(v)
	}
	if v, ok := patch["blockers"].([]string); ok {
		update = update.SetBlockers(v)
	}
	if v, ok := patch["context"].(string); ok {
		update = update.SetContext(v)
	}
	if v, ok := patch["project_id"].(string); ok {
		update = update.SetProjectID(v)
	}
	update = update.AddActivityCount(1)

	n, err := update.Save(ctx)
	if err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s not found for user %s", id, userID)
	}
	return nil
}

// VectorSearch ranks a user's tasks by cosine similarity to queryVec,
// brute force over embedded rows — standing in for a real vector index
// per spec §4.10 and §9.
func (s *TaskStore) VectorSearch(ctx context.Context, userID string, queryVec embedclient.Vector, k int) ([]retrieval.Hit, error) {
	if k <= 0 {
		k = 10
	}
	tasks, err := s.db.Task.Query().Where(task.UserID(userID)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tasks for vector search: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(tasks))
	for _, t := range tasks {
		if len(t.Embedding) == 0 {
			continue
		}
		score := embedclient.Dot(queryVec, embedclient.FromFloat32Slice(t.Embedding))
		hits = append(hits, retrieval.Hit{Doc: t, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// TextSearch full-text searches task titles and descriptions, mirroring
// SessionService.SearchSessions's to_tsvector/plainto_tsquery pattern —
// not expressible through ent's schema DSL, so it drops to raw
// predicates via sql.ExprP.
func (s *TaskStore) TextSearch(ctx context.Context, userID, query string, k int) ([]retrieval.Hit, error) {
	if k <= 0 {
		k = 10
	}
	tasks, err := s.db.Task.Query().
		Where(task.UserID(userID)).
		Where(func(sel *sql.Selector) {
			sel.Where(sql.Or(
				sql.ExprP("to_tsvector('english', title) @@ plainto_tsquery($1)", query),
				sql.ExprP("to_tsvector('english', COALESCE(description, '')) @@ plainto_tsquery($2)", query),
			))
		}).
		Limit(k).
		Order(ent.Desc(task.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("text searching tasks: %w", err)
	}

	hits := make([]retrieval.Hit, len(tasks))
	for i, t := range tasks {
		// Full-text rank isn't surfaced by this query; a flat relevance
		// score preserves recency order from the query above.
		hits[i] = retrieval.Hit{Doc: t, Score: 1}
	}
	return hits, nil
}

// HybridSearch fuses VectorSearch and TextSearch via reciprocal rank
// fusion, weights 0.6 vector / 0.4 text per spec §4.10.
func (s *TaskStore) HybridSearch(ctx context.Context, userID string, queryVec embedclient.Vector, query string, k int) ([]retrieval.Hit, error) {
	vecHits, err := s.VectorSearch(ctx, userID, queryVec, k)
	if err != nil {
		return nil, err
	}
	textHits, err := s.TextSearch(ctx, userID, query, k)
	if err != nil {
		return nil, err
	}
	fused := retrieval.HybridSearch(vecHits, textHits, taskDocKey, retrieval.DefaultVectorWeight, retrieval.DefaultTextWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func taskDocKey(doc interface{}) string {
	return doc.(*ent.Task).ID
}
