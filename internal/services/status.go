package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/cache"
	"github.com/nowplaying/backend/internal/db"
	"github.com/nowplaying/backend/internal/models"
)

const (
	MinStatusID      = 1
	MaxStatusID      = 3
	MaxStatusTextLen = 500

	// StatusETagKey is the cache key of the public status listing.
	StatusETagKey = "life-updates"
)

// DefaultStatusTexts seed an empty table and are restored by Reset.
var DefaultStatusTexts = [MaxStatusID]string{
	"80% done with the project <strong>Leetcode Status Tracker Extension</strong>",
	"Got selected for <strong>Hack[0]lution </strong>(Hackathon) (26 July - 27 July) in Kolkata.",
	"Going through some docs about <strong>Profiling</strong> in py.",
}

// StatusStore is the subset of db.Queries used for status records.
type StatusStore interface {
	ListStatusRecords(ctx context.Context) ([]db.StatusRecord, error)
	UpsertStatusRecord(ctx context.Context, arg db.UpsertStatusRecordParams) error
	DeleteAllStatusRecords(ctx context.Context) error
	CountStatusRecords(ctx context.Context) (int64, error)
}

// StatusService manages the short status records shown on the public site.
type StatusService struct {
	store StatusStore
	etags cache.Store
	now   func() time.Time

	// mu orders ETag cache writes against invalidations; gen counts the
	// invalidations.
	mu  sync.Mutex
	gen uint64
}

func NewStatusService(store StatusStore, etags cache.Store) *StatusService {
	return &StatusService{store: store, etags: etags, now: time.Now}
}

// List returns every record ordered by id.
func (s *StatusService) List(ctx context.Context) ([]models.StatusRecord, error) {
	rows, err := s.store.ListStatusRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list status records: %w", err)
	}

	records := make([]models.StatusRecord, len(rows))
	for i, r := range rows {
		records[i] = models.StatusRecord{ID: int(r.ID), Text: r.Text, UpdatedAt: r.UpdatedAt}
	}
	return records, nil
}

// ValidInputs keeps entries with an id in range and non-blank text of
// acceptable length. Text is trimmed.
func ValidInputs(inputs []models.StatusRecordInput) []models.StatusRecordInput {
	var valid []models.StatusRecordInput
	for _, in := range inputs {
		text := strings.TrimSpace(in.Text)
		if in.ID < MinStatusID || in.ID > MaxStatusID || text == "" || len([]rune(text)) > MaxStatusTextLen {
			continue
		}
		valid = append(valid, models.StatusRecordInput{ID: in.ID, Text: text})
	}
	return valid
}

// Update upserts every valid input and returns the full record list along
// with how many inputs were applied.
func (s *StatusService) Update(ctx context.Context, inputs []models.StatusRecordInput) ([]models.StatusRecord, int, error) {
	if len(inputs) == 0 {
		return nil, 0, apperror.New(apperror.KindBadRequest, "Updates array is required")
	}
	valid := ValidInputs(inputs)
	if len(valid) == 0 {
		return nil, 0, apperror.New(apperror.KindBadRequest, "At least one valid update is required")
	}

	now := s.now()
	for _, in := range valid {
		err := s.store.UpsertStatusRecord(ctx, db.UpsertStatusRecordParams{
			ID:        int64(in.ID),
			Text:      in.Text,
			UpdatedAt: now,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to update status record %d: %w", in.ID, err)
		}
	}
	s.invalidate(ctx)

	records, err := s.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, len(valid), nil
}

// Reset replaces every record with the defaults.
func (s *StatusService) Reset(ctx context.Context) ([]models.StatusRecord, error) {
	if err := s.store.DeleteAllStatusRecords(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear status records: %w", err)
	}
	if err := s.seed(ctx); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return s.List(ctx)
}

// EnsureDefaults seeds the defaults when the table is empty.
func (s *StatusService) EnsureDefaults(ctx context.Context) error {
	count, err := s.store.CountStatusRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to count status records: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := s.seed(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "default status records initialized")
	return nil
}

func (s *StatusService) seed(ctx context.Context) error {
	now := s.now()
	for i, text := range DefaultStatusTexts {
		err := s.store.UpsertStatusRecord(ctx, db.UpsertStatusRecordParams{
			ID:        int64(i + MinStatusID),
			Text:      text,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to seed status record %d: %w", i+MinStatusID, err)
		}
	}
	return nil
}

// PublicList serves the conditional GET. When ifNoneMatch matches the cached
// ETag it reports notModified without reading the store.
func (s *StatusService) PublicList(ctx context.Context, ifNoneMatch string) (records []models.StatusRecord, etag string, notModified bool, err error) {
	cached, ok, err := s.etags.Get(ctx, StatusETagKey)
	if err != nil {
		slog.WarnContext(ctx, "etag cache read failed", slog.Any("error", err))
	} else if ok && cache.MatchesIfNoneMatch(ifNoneMatch, cached) {
		return nil, cached, true, nil
	}

	gen := s.generation()
	records, err = s.List(ctx)
	if err != nil {
		return nil, "", false, err
	}

	etag, err = cache.ComputeETag(records)
	if err != nil {
		return nil, "", false, err
	}
	s.storeETag(ctx, gen, etag)
	if cache.MatchesIfNoneMatch(ifNoneMatch, etag) {
		return nil, etag, true, nil
	}
	return records, etag, false, nil
}

// ETag computes the tag of records as served publicly.
func (s *StatusService) ETag(records []models.StatusRecord) (string, error) {
	return cache.ComputeETag(records)
}

func (s *StatusService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// storeETag caches etag unless a write invalidated the listing after gen was
// read, in which case etag may describe records that are already stale.
func (s *StatusService) storeETag(ctx context.Context, gen uint64, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if err := s.etags.Set(ctx, StatusETagKey, etag); err != nil {
		slog.WarnContext(ctx, "etag cache write failed", slog.Any("error", err))
	}
}

func (s *StatusService) invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if err := s.etags.Invalidate(ctx, StatusETagKey); err != nil {
		slog.WarnContext(ctx, "etag cache invalidation failed", slog.Any("error", err))
	}
}
