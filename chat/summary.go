package chat

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/CUknot/lostfound_backend/logger"
)

// SummaryIndex builds a user's conversation list from the message log and
// listing metadata.
type SummaryIndex struct {
	store    MessageStore
	listings ListingDirectory
	cache    SummaryCache
	log      zerolog.Logger
	group    singleflight.Group
}

// NewSummaryIndex returns an index. cache may be nil.
func NewSummaryIndex(store MessageStore, listings ListingDirectory, cache SummaryCache, log zerolog.Logger) *SummaryIndex {
	return &SummaryIndex{
		store:    store,
		listings: listings,
		cache:    cache,
		log:      log,
	}
}

// ListConversations returns one summary per room the user took part in,
// most recent first. Missing listing metadata yields a placeholder title
// rather than an error.
func (x *SummaryIndex) ListConversations(ctx context.Context, userID string) ([]Summary, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user", Reason: "required"}
	}

	if x.cache != nil {
		cached, err := x.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			x.log.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("summary cache read")
		}
	}

	v, err, _ := x.group.Do(userID, func() (any, error) {
		return x.build(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	summaries := v.([]Summary)

	if x.cache != nil {
		if err := x.cache.Set(ctx, userID, summaries); err != nil {
			x.log.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("summary cache write")
		}
	}
	return summaries, nil
}

// Invalidate drops cached lists of everyone who took part in room.
func (x *SummaryIndex) Invalidate(ctx context.Context, room string) {
	if x.cache == nil {
		return
	}
	participants, err := x.store.Participants(ctx, room)
	if err != nil {
		x.log.Warn().Err(err).Str(logger.FieldRoom, room).Msg("load participants for invalidation")
		return
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	x.Forget(ctx, ids...)
}

// Forget drops the cached lists of userIDs.
func (x *SummaryIndex) Forget(ctx context.Context, userIDs ...string) {
	if x.cache == nil || len(userIDs) == 0 {
		return
	}
	if err := x.cache.Invalidate(ctx, userIDs...); err != nil {
		x.log.Warn().Err(err).Strs(logger.FieldUserID, userIDs).Msg("summary cache invalidate")
	}
}

func (x *SummaryIndex) build(ctx context.Context, userID string) ([]Summary, error) {
	latest, err := x.store.LatestPerRoom(ctx, userID)
	if err != nil {
		return nil, asPersistence("latest per room", err)
	}
	if len(latest) == 0 {
		return []Summary{}, nil
	}

	rooms := make([]string, 0, len(latest))
	seen := make(map[string]struct{})
	listingIDs := make([]string, 0, len(latest))
	for room := range latest {
		rooms = append(rooms, room)
		id := ListingID(room)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			listingIDs = append(listingIDs, id)
		}
	}
	sort.Strings(rooms)
	sort.Strings(listingIDs)

	listings, err := x.listings.Listings(ctx, listingIDs)
	if err != nil {
		x.log.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("listing lookup failed, using placeholders")
		listings = nil
	}
	others, err := x.store.Counterparts(ctx, userID, rooms)
	if err != nil {
		x.log.Warn().Err(err).Str(logger.FieldUserID, userID).Msg("counterpart lookup failed")
		others = nil
	}

	out := make([]Summary, 0, len(rooms))
	for _, room := range rooms {
		msg := latest[room]
		s := Summary{
			Room:        room,
			ItemTitle:   PlaceholderTitle,
			OtherUser:   UnknownUser,
			LastMessage: msg.Text,
			Timestamp:   msg.DisplayTimestamp(),
			LastSeq:     msg.Seq,
			LastAt:      msg.CreatedAt,
		}
		listing, hasListing := listings[ListingID(room)]
		if hasListing && listing.Title != "" {
			s.ItemTitle = listing.Title
		}
		if p, ok := others[room]; ok {
			s.OtherUserID = p.UserID
			s.OtherUser = p.UserName
		} else if hasListing && listing.OwnerID != "" && listing.OwnerID != userID {
			s.OtherUserID = listing.OwnerID
			s.OtherUser = listing.OwnerName
		}
		if s.OtherUser == "" {
			s.OtherUser = UnknownUser
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].LastAt, out[i].LastSeq, out[j].LastAt, out[j].LastSeq)
	})
	return out, nil
}

func newer(at1 time.Time, seq1 int64, at2 time.Time, seq2 int64) bool {
	if !at1.Equal(at2) {
		return at1.After(at2)
	}
	return seq1 > seq2
}
