package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/points"
)

type pointsEntryRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Points      int       `db:"points"`
	SourceType  string    `db:"source_type"`
	ReferenceID string    `db:"reference_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type pointsRepository struct {
	db *sqlx.DB
}

var _ points.Repository = (*pointsRepository)(nil) // interface compliance check

func NewPointsRepository(db *sqlx.DB) *pointsRepository {
	return &pointsRepository{db: db}
}

func (repo pointsRepository) unpack(row pointsEntryRow) points.Entry {
	return points.Entry{
		ID:          row.ID,
		UserID:      row.UserID,
		Points:      row.Points,
		SourceType:  row.SourceType,
		ReferenceID: row.ReferenceID,
		CreatedAt:   row.CreatedAt,
	}
}

func (repo pointsRepository) InsertEntryOnce(ctx context.Context, entry points.Entry) (points.Entry, error) {
	row := pointsEntryRow{
		ID:          entry.ID,
		UserID:      entry.UserID,
		Points:      entry.Points,
		SourceType:  entry.SourceType,
		ReferenceID: entry.ReferenceID,
		CreatedAt:   entry.CreatedAt.UTC(),
	}
	query := `
		INSERT INTO points_history (id, user_id, points, source_type, reference_id, created_at)
		VALUES (:id, :user_id, :points, :source_type, :reference_id, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, row); err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return points.Entry{}, points.ErrAlreadyAwarded
		}
		return points.Entry{}, errors.Wrap(err, "inserting points entry")
	}
	return repo.unpack(row), nil
}

func (repo pointsRepository) IncrementUserPoints(ctx context.Context, userID string, pointsToAdd int) error {
	query := `
		INSERT INTO user_points (user_id, points)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET points = user_points.points + EXCLUDED.points`
	if _, err := repo.db.ExecContext(ctx, query, userID, pointsToAdd); err != nil {
		return errors.Wrap(err, "incrementing user points")
	}
	return nil
}

func (repo pointsRepository) GetUserPoints(ctx context.Context, userID string) (int, error) {
	var total int
	query := `SELECT COALESCE((SELECT points FROM user_points WHERE user_id = $1), 0)`
	if err := repo.db.GetContext(ctx, &total, query, userID); err != nil {
		return 0, errors.Wrap(err, "getting user points")
	}
	return total, nil
}

func (repo pointsRepository) QueryHistory(ctx context.Context, userID string) ([]points.Entry, error) {
	var rows []pointsEntryRow
	query := `SELECT * FROM points_history WHERE user_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying points history")
	}

	entries := make([]points.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, repo.unpack(row))
	}
	return entries, nil
}

func (repo pointsRepository) QueryLeaderboard(ctx context.Context, limit int) ([]points.RankEntry, error) {
	var rows []struct {
		UserID string `db:"user_id"`
		Name   string `db:"name"`
		Points int    `db:"points"`
	}
	query := `
		SELECT up.user_id, u.name, up.points
		FROM user_points up
		JOIN "user" u ON u.id = up.user_id
		WHERE u.is_active
		ORDER BY up.points DESC, u.name ASC
		LIMIT $1`
	if err := repo.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}

	ranks := make([]points.RankEntry, 0, len(rows))
	for _, row := range rows {
		ranks = append(ranks, points.RankEntry{UserID: row.UserID, Name: row.Name, Points: row.Points})
	}
	return ranks, nil
}

func (repo pointsRepository) GetConfig(ctx context.Context) (points.Config, error) {
	var row struct {
		ResourceAccessPoints    int `db:"resource_access_points"`
		DefaultCompletionPoints int `db:"default_completion_points"`
	}
	query := `SELECT resource_access_points, default_completion_points FROM ranking_config LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, query); err != nil {
		return points.Config{}, trapNoRowsErr(err, points.ErrConfigNotFound, "getting ranking config")
	}
	return points.Config{
		ResourceAccessPoints:    row.ResourceAccessPoints,
		DefaultCompletionPoints: row.DefaultCompletionPoints,
	}, nil
}

func (repo pointsRepository) UpdateConfig(ctx context.Context, cfg points.Config) (points.Config, error) {
	query := `UPDATE ranking_config SET resource_access_points = $1, default_completion_points = $2`
	if _, err := repo.db.ExecContext(ctx, query, cfg.ResourceAccessPoints, cfg.DefaultCompletionPoints); err != nil {
		return points.Config{}, errors.Wrap(err, "updating ranking config")
	}
	return cfg, nil
}
