package entitystore

import (
	"context"
	"fmt"
	"sort"

	"entgo.io/ent/dialect/sql"
	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/project"
	"github.com/coretask-core/coretask/pkg/embedclient"
	"github.com/coretask-core/coretask/pkg/retrieval"
	"github.com/google/uuid"
)

// ProjectStore is the reference EntityStore implementation for
// "projects".
type ProjectStore struct {
	db       *ent.Client
	embedder embedclient.Client
}

// NewProjectStore constructs a ProjectStore.
func NewProjectStore(db *ent.Client, embedder embedclient.Client) *ProjectStore {
	return &ProjectStore{db: db, embedder: embedder}
}

var _ EntityStore = (*ProjectStore)(nil)

// Find returns a user's projects, newest first unless sort overrides.
func (s *ProjectStore) Find(ctx context.Context, userID string, filter Filter, limit int, srt Sort) ([]interface{}, error) {
	q := s.db.Project.Query().Where(project.UserID(userID))

	if v, ok := filter["id"].(string); ok && v != "" {
		q = q.Where(project.ID(v))
	}
	if v, ok := filter["name"].(string); ok && v != "" {
		q = q.Where(project.Name(v))
	}

	if limit <= 0 {
		limit = 50
	}
	q = q.Limit(limit)

	if srt.Field == "name" {
		if srt.Descending {
			q = q.Order(ent.Desc(project.FieldName))
		} else {
			q = q.Order(ent.Asc(project.FieldName))
		}
	} else {
		q = q.Order(ent.Desc(project.FieldCreatedAt))
	}

	projects, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding projects: %w", err)
	}
	docs := make([]interface{}, len(projects))
	for i, p := range projects {
		docs[i] = p
	}
	return docs, nil
}

// Insert creates a project from a document map, embedding name+description
// for later vector_search.
func (s *ProjectStore) Insert(ctx context.Context, userID string, doc map[string]interface{}) (string, error) {
	name, _ := doc["name"].(string)
	if name == "" {
		return "", fmt.Errorf("insert project: name is required")
	}

	id := uuid.NewString()
	create := s.db.Project.Create().
		SetID(id).
		SetUserID(userID).
		SetName(name)

	if v, ok := doc["description"].(string); ok && v != "" {
		create = create.SetDescription(v)
	}
	if v, ok := doc["notes"].(string); ok && v != "" {
		create = create.SetNotes(v)
	}

	if s.embedder != nil {
		embedSource := name
		if desc, ok := doc["description"].(string); ok && desc != "" {
			embedSource += " " + desc
		}
		if vec, err := s.embedder.Embed(ctx, embedSource); err == nil {
			create = create.SetEmbedding(vec.ToFloat32Slice())
		}
	}

	p, err := create.Save(ctx)
	if err != nil {
		return "", fmt.Errorf("inserting project: %w", err)
	}
	return p.ID, nil
}

// Update applies a partial patch to a project owned by userID.
func (s *ProjectStore) Update(ctx context.Context, userID, id string, patch Patch) error {
	update := s.db.Project.Update().Where(project.ID(id), project.UserID(userID))

	if v, ok := patch["name"].(string); ok && v != "" {
		update = update.SetName(v)
	}
	if v, ok := patch["description"].(string); ok {
		update = update.SetDescription(v)
	}
	if v, ok := patch["notes"].(string); ok {
		update = update.SetNotes(v)
	}
	update = update.AddActivityCount(1)

	n, err := update.Save(ctx)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s not found for user %s", id, userID)
	}
	return nil
}

// VectorSearch ranks a user's projects by cosine similarity to queryVec,
// brute force over embedded rows.
func (s *ProjectStore) VectorSearch(ctx context.Context, userID string, queryVec embedclient.Vector, k int) ([]retrieval.Hit, error) {
	if k <= 0 {
		k = 10
	}
	projects, err := s.db.Project.Query().Where(project.UserID(userID)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading projects for vector search: %w", err)
	}

	hits := make([]retrieval.Hit, 0, len(projects))
	for _, p := range projects {
		if len(p.Embedding) == 0 {
			continue
		}
		score := embedclient.Dot(queryVec, embedclient.FromFloat32Slice(p.Embedding))
		hits = append(hits, retrieval.Hit{Doc: p, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// TextSearch full-text searches project name and description, mirroring
// SessionService.SearchSessions.
func (s *ProjectStore) TextSearch(ctx context.Context, userID, query string, k int) ([]retrieval.Hit, error) {
	if k <= 0 {
		k = 10
	}
	projects, err := s.db.Project.Query().
		Where(project.UserID(userID)).
		Where(func(sel *sql.Selector) {
			sel.Where(sql.Or(
				sql.ExprP("to_tsvector('english', name) @@ plainto_tsquery($1)", query),
				sql.ExprP("to_tsvector('english', COALESCE(description, '')) @@ plainto_tsquery($2)", query),
			))
		}).
		Limit(k).
		Order(ent.Desc(project.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("text searching projects: %w", err)
	}

	hits := make([]retrieval.Hit, len(projects))
	for i, p := range projects {
		hits[i] = retrieval.Hit{Doc: p, Score: 1}
	}
	return hits, nil
}

// HybridSearch fuses VectorSearch and TextSearch via reciprocal rank
// fusion, weights 0.6 vector / 0.4 text per spec §4.10.
func (s *ProjectStore) HybridSearch(ctx context.Context, userID string, queryVec embedclient.Vector, query string, k int) ([]retrieval.Hit, error) {
	vecHits, err := s.VectorSearch(ctx, userID, queryVec, k)
	if err != nil {
		return nil, err
	}
	textHits, err := s.TextSearch(ctx, userID, query, k)
	if err != nil {
		return nil, err
	}
	fused := retrieval.HybridSearch(vecHits, textHits, projectDocKey, retrieval.DefaultVectorWeight, retrieval.DefaultTextWeight)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

func projectDocKey(doc interface{}) string {
	return doc.(*ent.Project).ID
}
