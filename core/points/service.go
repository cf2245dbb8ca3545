package points

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
)

var (
	// ErrAlreadyAwarded signals that an award already exists for the
	// (user, source, reference) triple. Callers treat it as a no-op.
	ErrAlreadyAwarded = errors.New("points already awarded for this reference")

	ErrConfigNotFound = errors.New("ranking config not found")
)

type (
	Repository interface {
		// InsertEntryOnce inserts the entry or returns ErrAlreadyAwarded when
		// one already exists for (UserID, SourceType, ReferenceID).
		InsertEntryOnce(ctx context.Context, entry Entry) (Entry, error)
		IncrementUserPoints(ctx context.Context, userID string, pointsToAdd int) error
		GetUserPoints(ctx context.Context, userID string) (int, error)
		QueryHistory(ctx context.Context, userID string) ([]Entry, error)
		QueryLeaderboard(ctx context.Context, limit int) ([]RankEntry, error)
		GetConfig(ctx context.Context) (Config, error)
		UpdateConfig(ctx context.Context, cfg Config) (Config, error)
	}

	Service struct {
		repo Repository
		log  core.Logger
	}
)

func NewService(repo Repository, log core.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// AwardLessonCompletion awards the lesson-completion points for one lesson:
// a flat 1/10 of the course completion budget, whatever the lesson count.
// A course without a budget of its own falls back to the configured default.
// Idempotent per (user, lesson); returns 0 when already awarded.
func (svc *Service) AwardLessonCompletion(ctx context.Context, userID, lessonID string, coursePoints int) (int, error) {
	if coursePoints <= 0 {
		cfg, err := svc.GetConfig(ctx)
		if err != nil {
			return 0, err
		}
		coursePoints = cfg.DefaultCompletionPoints
	}
	return svc.award(ctx, userID, SourceLesson, lessonID, coursePoints/10)
}

// AwardResourceAccess awards the flat first-access points for a resource.
// Idempotent per (user, resource); returns 0 when already awarded.
func (svc *Service) AwardResourceAccess(ctx context.Context, userID, resourceID string) (int, error) {
	cfg, err := svc.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return svc.award(ctx, userID, SourceResource, resourceID, cfg.ResourceAccessPoints)
}

func (svc *Service) award(ctx context.Context, userID, sourceType, referenceID string, pts int) (int, error) {
	entry := Entry{
		ID:          uuid.New().String(),
		UserID:      userID,
		Points:      pts,
		SourceType:  sourceType,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := svc.repo.InsertEntryOnce(ctx, entry); err != nil {
		if errors.Cause(err) == ErrAlreadyAwarded {
			return 0, nil
		}
		return 0, errors.Wrap(err, "inserting points entry")
	}

	// fire-and-forget counter increment: failure is logged, never surfaced
	// to the user and never retried
	if err := svc.repo.IncrementUserPoints(ctx, userID, pts); err != nil {
		svc.log.Error("incrementing user points", err)
	}
	return pts, nil
}

func (svc *Service) GetUserPoints(ctx context.Context, userID string) (int, error) {
	return svc.repo.GetUserPoints(ctx, userID)
}

func (svc *Service) History(ctx context.Context, userID string) ([]Entry, error) {
	return svc.repo.QueryHistory(ctx, userID)
}

func (svc *Service) Leaderboard(ctx context.Context, limit int) ([]RankEntry, error) {
	return svc.repo.QueryLeaderboard(ctx, limit)
}

func (svc *Service) GetConfig(ctx context.Context) (Config, error) {
	cfg, err := svc.repo.GetConfig(ctx)
	if err != nil {
		if errors.Cause(err) == ErrConfigNotFound {
			return Config{ResourceAccessPoints: 5, DefaultCompletionPoints: 100}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

func (svc *Service) UpdateConfig(ctx context.Context, cfg Config) (Config, error) {
	return svc.repo.UpdateConfig(ctx, cfg)
}
