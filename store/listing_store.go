package store

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/CUknot/lostfound_backend/chat"
	"github.com/CUknot/lostfound_backend/models"
)

var _ chat.ListingDirectory = (*ListingStore)(nil)

// ListingStore resolves listing metadata for conversation summaries.
type ListingStore struct {
	db *gorm.DB
}

func NewListingStore(db *gorm.DB) *ListingStore {
	return &ListingStore{db: db}
}

// Listings loads the listings with the given ids. Ids that are not numeric
// or no longer exist are left out of the result.
func (s *ListingStore) Listings(ctx context.Context, ids []string) (map[string]chat.Listing, error) {
	out := make(map[string]chat.Listing)

	numeric := make([]uint, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		numeric = append(numeric, uint(n))
	}
	if len(numeric) == 0 {
		return out, nil
	}

	var rows []models.Listing
	if err := s.db.WithContext(ctx).Preload("User").Where("id IN ?", numeric).Find(&rows).Error; err != nil {
		return nil, &chat.PersistenceError{Op: "load listings", Err: err}
	}
	for _, r := range rows {
		id := strconv.FormatUint(uint64(r.ID), 10)
		l := chat.Listing{ID: id, Title: r.Title}
		if r.UserID != 0 {
			l.OwnerID = strconv.FormatUint(uint64(r.UserID), 10)
			l.OwnerName = r.User.Username
		}
		out[id] = l
	}
	return out, nil
}
