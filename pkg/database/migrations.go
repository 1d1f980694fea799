package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These back MemoryStore.search_episodic, search_knowledge, and the
// reference entity store's text_search, none of which are expressible
// through Ent's schema DSL.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	statements := []struct {
		name string
		sql  string
	}{
		{
			"episodic_events_description_gin",
			`CREATE INDEX IF NOT EXISTS idx_episodic_events_description_gin
			ON episodic_events USING gin(to_tsvector('english', description))`,
		},
		{
			"knowledge_cache_entries_query_gin",
			`CREATE INDEX IF NOT EXISTS idx_knowledge_cache_entries_query_gin
			ON knowledge_cache_entries USING gin(to_tsvector('english', query))`,
		},
		{
			"knowledge_cache_entries_result_gin",
			`CREATE INDEX IF NOT EXISTS idx_knowledge_cache_entries_result_gin
			ON knowledge_cache_entries USING gin(to_tsvector('english', result))`,
		},
		{
			"tasks_title_gin",
			`CREATE INDEX IF NOT EXISTS idx_tasks_title_gin
			ON tasks USING gin(to_tsvector('english', title))`,
		},
		{
			"projects_name_gin",
			`CREATE INDEX IF NOT EXISTS idx_projects_name_gin
			ON projects USING gin(to_tsvector('english', name))`,
		},
	}

	for _, s := range statements {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("failed to create %s GIN index: %w", s.name, err)
		}
	}

	return nil
}
