package memory

import (
	"context"
	"fmt"

	"github.com/coretask-core/coretask/ent"
	"github.com/coretask-core/coretask/ent/preferencerecord"
	"github.com/google/uuid"
)

// UpsertPreference writes or updates a (user_id, key) preference.
func (s *Store) UpsertPreference(ctx context.Context, userID, key, value string, source preferencerecord.Source, confidence float64) error {
	existing, err := s.db.PreferenceRecord.Query().
		Where(preferencerecord.UserID(userID), preferencerecord.Key(key)).
		Only(ctx)
	if err != nil && !ent.IsNotFound(err) {
		return fmt.Errorf("querying preference: %w", err)
	}

	if existing != nil {
		return existing.Update().
			SetValue(value).
			SetSource(source).
			SetConfidence(confidence).
			Exec(ctx)
	}

	return s.db.PreferenceRecord.Create().
		SetID(uuid.NewString()).
		SetUserID(userID).
		SetKey(key).
		SetValue(value).
		SetSource(source).
		SetConfidence(confidence).
		Exec(ctx)
}

// GetPreferences returns preferences at or above minConfidence, sorted by
// confidence descending, for context injection.
func (s *Store) GetPreferences(ctx context.Context, userID string, minConfidence float64) ([]*ent.PreferenceRecord, error) {
	prefs, err := s.db.PreferenceRecord.Query().
		Where(
			preferencerecord.UserID(userID),
			preferencerecord.ConfidenceGTE(minConfidence),
		).
		Order(ent.Desc(preferencerecord.FieldConfidence)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing preferences: %w", err)
	}
	return prefs, nil
}

// GetPreference returns a single preference by key, atomically incrementing
// times_used on every successful retrieval.
func (s *Store) GetPreference(ctx context.Context, userID, key string) (*ent.PreferenceRecord, error) {
	tx, err := s.db.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting tx: %w", err)
	}
	defer tx.Rollback()

	pref, err := tx.PreferenceRecord.Query().
		Where(preferencerecord.UserID(userID), preferencerecord.Key(key)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying preference: %w", err)
	}

	if err := tx.PreferenceRecord.UpdateOneID(pref.ID).
		AddTimesUsed(1).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("incrementing times_used: %w", err)
	}

	pref, err = tx.PreferenceRecord.Get(ctx, pref.ID)
	if err != nil {
		return nil, fmt.Errorf("refetching preference: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return pref, nil
}
