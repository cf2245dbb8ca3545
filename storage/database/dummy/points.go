package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/elimu/core/points"
)

type pointsRepository struct {
	db    *pointsTable
	users *userTable
}

var _ points.Repository = (*pointsRepository)(nil) // interface compliance check

func NewPointsRepository(db *DB) points.Repository {
	return &pointsRepository{db: db.points, users: db.user}
}

func entryKey(userID, sourceType, referenceID string) string {
	return userID + "|" + sourceType + "|" + referenceID
}

func (repo *pointsRepository) InsertEntryOnce(_ context.Context, entry points.Entry) (points.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := entryKey(entry.UserID, entry.SourceType, entry.ReferenceID)
	if _, ok := repo.db.entries[key]; ok {
		return points.Entry{}, points.ErrAlreadyAwarded
	}
	repo.db.entries[key] = &entry
	return entry, nil
}

func (repo *pointsRepository) IncrementUserPoints(_ context.Context, userID string, pointsToAdd int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.totals[userID] += pointsToAdd
	return nil
}

func (repo *pointsRepository) GetUserPoints(_ context.Context, userID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.totals[userID], nil
}

func (repo *pointsRepository) QueryHistory(_ context.Context, userID string) ([]points.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var entries []points.Entry
	for _, entry := range repo.db.entries {
		if entry.UserID == userID {
			entries = append(entries, *entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

func (repo *pointsRepository) QueryLeaderboard(_ context.Context, limit int) ([]points.RankEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.users.RLock()
	defer repo.users.RUnlock()

	ranks := make([]points.RankEntry, 0, len(repo.db.totals))
	for userID, total := range repo.db.totals {
		rank := points.RankEntry{UserID: userID, Points: total}
		if usr, ok := repo.users.table[userID]; ok {
			if !usr.IsActive {
				continue
			}
			rank.Name = usr.Name
		}
		ranks = append(ranks, rank)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Points != ranks[j].Points {
			return ranks[i].Points > ranks[j].Points
		}
		return ranks[i].Name < ranks[j].Name
	})
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks, nil
}

func (repo *pointsRepository) GetConfig(_ context.Context) (points.Config, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if repo.db.config == nil {
		return points.Config{}, points.ErrConfigNotFound
	}
	return *repo.db.config, nil
}

func (repo *pointsRepository) UpdateConfig(_ context.Context, cfg points.Config) (points.Config, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.config = &cfg
	return cfg, nil
}
