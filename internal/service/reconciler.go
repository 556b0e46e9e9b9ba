package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/thiagoooop/morada-de-praia/internal/daterange"
	"github.com/thiagoooop/morada-de-praia/internal/domain"
	"github.com/thiagoooop/morada-de-praia/internal/events"
	"github.com/thiagoooop/morada-de-praia/internal/metrics"
	"github.com/thiagoooop/morada-de-praia/internal/models"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpdated    Outcome = "updated"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeConflicted Outcome = "conflicted"
	OutcomeFailed     Outcome = "failed"
)

const (
	ReasonNoChange         = "no change"
	ReasonUnmappedListing  = "unmapped listing"
	ReasonCancelled        = "cancelled upstream"
	ReasonAlreadyCancelled = "already cancelled"
	ReasonSuperseded       = "superseded by a later record in the batch"
)

// RecordResult is the outcome of one external record, in input order.
type RecordResult struct {
	Channel        models.Channel `json:"channel"`
	ExternalID     string         `json:"external_id"`
	Outcome        Outcome        `json:"outcome"`
	Reason         string         `json:"reason,omitempty"`
	BookingID      int64          `json:"booking_id,omitempty"`
	ConflictingIDs []int64        `json:"conflicting_booking_ids,omitempty"`
	Err            error          `json:"-"`
}

type SyncSummary struct {
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
	Conflicted int `json:"conflicted"`
	Failed     int `json:"failed"`
}

func (s *SyncSummary) add(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeConflicted:
		s.Conflicted++
	case OutcomeFailed:
		s.Failed++
	}
}

type SyncResult struct {
	IntegrationID int64          `json:"integration_id"`
	Channel       models.Channel `json:"channel"`
	SyncedAt      time.Time      `json:"synced_at"`
	Summary       SyncSummary    `json:"summary"`
	Records       []RecordResult `json:"records"`
}

type ReconcileConfig struct {
	LockTTL      time.Duration
	MaxBatchSize int
}

// ReconcileService converges local bookings with a batch from one channel
// integration. Batches of one integration never run concurrently.
type ReconcileService struct {
	repo     domain.SyncRepository
	bookings *BookingService
	locker   domain.Locker
	eventBus domain.EventPublisher
	cfg      ReconcileConfig
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewReconcileService(
	repo domain.SyncRepository,
	bookings *BookingService,
	locker domain.Locker,
	eventBus domain.EventPublisher,
	cfg ReconcileConfig,
	logger *zerolog.Logger,
) *ReconcileService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = models.SyncLockTTL * time.Second
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = models.MaxSyncBatchSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReconcileService{
		repo:     repo,
		bookings: bookings,
		locker:   locker,
		eventBus: eventBus,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// plan is one record that survived validation, with what the prepass resolved.
type plan struct {
	pos      int
	record   models.ExternalBooking
	mapping  *models.ApartmentMapping
	existing *models.SyncRecord
}

// phase orders a batch: cancellations free ranges first, then changes to known
// bookings, then new bookings.
func (p plan) phase() int {
	switch {
	case p.record.Cancelled:
		return 0
	case p.existing != nil:
		return 1
	default:
		return 2
	}
}

// Reconcile applies a batch of external records for one integration. Per-record
// failures are reported in the result and never abort the batch.
func (s *ReconcileService) Reconcile(ctx context.Context, integrationID int64, records []models.ExternalBooking) (*SyncResult, error) {
	if len(records) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d records exceeds limit %d: %w", len(records), s.cfg.MaxBatchSize, domain.ErrInvalidInput)
	}

	integration, err := s.repo.GetIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !integration.IsActive {
		return nil, fmt.Errorf("integration %d: %w", integrationID, domain.ErrIntegrationInactive)
	}

	lockKey := fmt.Sprintf("sync:integration:%d", integrationID)
	token, err := s.locker.Lock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("integration %d: %w", integrationID, domain.ErrSyncInProgress)
		}
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.Warn().Err(err).Str("key", lockKey).Msg("sync lock release failed")
		}
	}()

	started := s.now()
	logger := s.logger.With().Int64("integration_id", integrationID).Str("channel", string(integration.Channel)).Logger()

	results := make([]RecordResult, len(records))
	plans := s.prepare(ctx, integration, records, results)
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].phase() < plans[j].phase() })

	var retry []plan
	for _, p := range plans {
		res := s.apply(ctx, integration, p)
		if res.Outcome == OutcomeConflicted {
			retry = append(retry, p)
		}
		results[p.pos] = res
	}
	// a record may collide with a range another record of the batch released later
	for _, p := range retry {
		results[p.pos] = s.apply(ctx, integration, p)
	}
	s.resolveSwaps(ctx, integration, retry, results)

	syncedAt := s.now()
	if err := s.repo.TouchIntegrationSync(ctx, integrationID, syncedAt, models.IntegrationConnected); err != nil {
		return nil, fmt.Errorf("failed to record sync time: %w", err)
	}

	result := &SyncResult{
		IntegrationID: integrationID,
		Channel:       integration.Channel,
		SyncedAt:      syncedAt,
		Records:       results,
	}
	for _, r := range results {
		result.Summary.add(r.Outcome)
		metrics.IncReconcileRecord(string(integration.Channel), string(r.Outcome))
		if r.Err != nil {
			logger.Debug().Err(r.Err).Str("external_id", r.ExternalID).Str("outcome", string(r.Outcome)).Msg("record not applied")
		}
	}
	metrics.ObserveReconcile(string(integration.Channel), syncedAt.Sub(started))

	logger.Info().
		Int("records", len(records)).
		Int("created", result.Summary.Created).
		Int("updated", result.Summary.Updated).
		Int("skipped", result.Summary.Skipped).
		Int("conflicted", result.Summary.Conflicted).
		Int("failed", result.Summary.Failed).
		Dur("took", syncedAt.Sub(started)).
		Msg("reconcile finished")

	s.publishSummary(integration, result.Summary)
	return result, nil
}

// prepare validates every record, resolves its mapping and sync link, and fills
// the final result of records that need no further work.
func (s *ReconcileService) prepare(ctx context.Context, integration *models.Integration, records []models.ExternalBooking, results []RecordResult) []plan {
	last := make(map[string]int, len(records))
	for i, rec := range records {
		last[strings.TrimSpace(rec.ExternalID)] = i
	}

	plans := make([]plan, 0, len(records))
	for i, rec := range records {
		rec.ExternalID = strings.TrimSpace(rec.ExternalID)
		if rec.Channel == "" {
			rec.Channel = integration.Channel
		}
		results[i] = RecordResult{Channel: rec.Channel, ExternalID: rec.ExternalID}

		switch {
		case rec.ExternalID == "":
			results[i] = failed(results[i], fmt.Errorf("external id is required: %w", domain.ErrInvalidInput))
			continue
		case rec.Channel != integration.Channel:
			results[i] = failed(results[i], fmt.Errorf("record channel %s does not match integration %s: %w",
				rec.Channel, integration.Channel, domain.ErrInvalidInput))
			continue
		case last[rec.ExternalID] != i:
			results[i].Outcome = OutcomeSkipped
			results[i].Reason = ReasonSuperseded
			continue
		}

		mapping, err := s.repo.GetMappingByListing(ctx, integration.ID, rec.ExternalListingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				results[i].Outcome = OutcomeSkipped
				results[i].Reason = ReasonUnmappedListing
				results[i].Err = fmt.Errorf("listing %q: %w", rec.ExternalListingID, domain.ErrUnmappedListing)
			} else {
				results[i] = failed(results[i], err)
			}
			continue
		}

		existing, err := s.repo.GetSyncRecord(ctx, rec.Channel, rec.ExternalID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			results[i] = failed(results[i], err)
			continue
		}

		plans = append(plans, plan{pos: i, record: rec, mapping: mapping, existing: existing})
	}
	return plans
}

func (s *ReconcileService) apply(ctx context.Context, integration *models.Integration, p plan) RecordResult {
	res := RecordResult{Channel: p.record.Channel, ExternalID: p.record.ExternalID}
	if p.existing == nil {
		return s.applyNew(ctx, integration, p, res)
	}
	res.BookingID = p.existing.BookingID
	return s.applyExisting(ctx, p, res)
}

func (s *ReconcileService) applyNew(ctx context.Context, integration *models.Integration, p plan, res RecordResult) RecordResult {
	rec := p.record
	if rec.Cancelled {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonCancelled
		return res
	}

	guest, err := s.resolveGuest(ctx, rec.Guest)
	if err != nil {
		return failed(res, err)
	}

	snap := snapshotOf(rec)
	link := &models.SyncRecord{
		IntegrationID: integration.ID,
		Channel:       rec.Channel,
		ExternalID:    rec.ExternalID,
	}
	link.ApplySnapshot(snap, string(rec.Raw))

	booking, err := s.bookings.Create(ctx, CreateBookingRequest{
		ApartmentID: p.mapping.ApartmentID,
		GuestID:     guest.ID,
		Start:       snap.Start,
		End:         snap.End,
		Price:       snap.Price,
		Sync:        link,
	})
	if err != nil {
		if errors.Is(err, domain.ErrOverlapConflict) {
			return conflicted(res, err)
		}
		return failed(res, err)
	}

	res.Outcome = OutcomeCreated
	res.BookingID = booking.ID
	return res
}

// applyExisting diffs the incoming snapshot against the last one received, not
// against the booking, so fields edited locally survive until the channel
// changes them again.
func (s *ReconcileService) applyExisting(ctx context.Context, p plan, res RecordResult) RecordResult {
	rec, stored := p.record, p.existing
	incoming := snapshotOf(rec)
	raw := string(rec.Raw)

	if incoming.Equal(stored.Snapshot()) {
		if raw != "" && raw != stored.RawPayload {
			stored.RawPayload = raw
			if err := s.repo.UpdateSyncSnapshot(ctx, stored); err != nil {
				return failed(res, err)
			}
		}
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonNoChange
		return res
	}

	booking, err := s.bookings.GetBooking(ctx, stored.BookingID)
	if err != nil {
		return failed(res, err)
	}

	res.Outcome = OutcomeUpdated
	switch {
	case incoming.Cancelled && booking.Status == models.StatusCancelled:
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonAlreadyCancelled
	case incoming.Cancelled:
		if _, err := s.bookings.Transition(ctx, booking.ID, models.StatusCancelled); err != nil {
			return failed(res, err)
		}
	case booking.Status == models.StatusCancelled:
		return failed(res, fmt.Errorf("booking %d was cancelled locally: %w", booking.ID, domain.ErrBookingClosed))
	default:
		if !incoming.SameDates(stored.Snapshot()) {
			if _, err := s.bookings.Reschedule(ctx, booking.ID, incoming.Start, incoming.End); err != nil {
				if errors.Is(err, domain.ErrOverlapConflict) {
					return conflicted(res, err)
				}
				return failed(res, err)
			}
		}
		if incoming.Price != stored.Price {
			if _, err := s.bookings.Reprice(ctx, booking.ID, incoming.Price); err != nil {
				return failed(res, err)
			}
		}
	}

	stored.ApplySnapshot(incoming, raw)
	if err := s.repo.UpdateSyncSnapshot(ctx, stored); err != nil {
		return failed(res, err)
	}
	return res
}

// resolveSwaps handles known bookings that still conflict only with each other,
// such as two stays trading dates. Each such group is moved in one joint
// reschedule per apartment and then applied again.
func (s *ReconcileService) resolveSwaps(ctx context.Context, integration *models.Integration, candidates []plan, results []RecordResult) {
	byApartment := make(map[int64][]plan)
	for _, p := range candidates {
		if results[p.pos].Outcome != OutcomeConflicted || p.existing == nil || p.record.Cancelled {
			continue
		}
		booking, err := s.bookings.GetBooking(ctx, p.existing.BookingID)
		if err != nil {
			continue
		}
		byApartment[booking.ApartmentID] = append(byApartment[booking.ApartmentID], p)
	}

	for apartmentID, group := range byApartment {
		group = closedGroup(group, results)
		if len(group) < 2 {
			continue
		}

		targets := make([]RescheduleTarget, len(group))
		for i, p := range group {
			targets[i] = RescheduleTarget{BookingID: p.existing.BookingID, Start: p.record.Start, End: p.record.End}
		}
		if _, err := s.bookings.RescheduleTogether(ctx, apartmentID, targets); err != nil {
			s.logger.Debug().Err(err).Int64("apartment_id", apartmentID).Int("bookings", len(group)).Msg("joint reschedule rejected")
			continue
		}
		for _, p := range group {
			results[p.pos] = s.apply(ctx, integration, p)
		}
	}
}

// closedGroup drops plans that collide with bookings outside the group until
// every remaining conflict points inside it.
func closedGroup(group []plan, results []RecordResult) []plan {
	for {
		ids := make(map[int64]bool, len(group))
		for _, p := range group {
			ids[p.existing.BookingID] = true
		}

		var kept []plan
		for _, p := range group {
			inside := len(results[p.pos].ConflictingIDs) > 0
			for _, id := range results[p.pos].ConflictingIDs {
				if !ids[id] {
					inside = false
					break
				}
			}
			if inside {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(group) {
			return kept
		}
		group = kept
	}
}

func (s *ReconcileService) resolveGuest(ctx context.Context, g models.ExternalGuest) (*models.Guest, error) {
	email := models.NormalizeEmail(g.Email)
	if email == "" {
		return nil, fmt.Errorf("guest email is required: %w", domain.ErrInvalidInput)
	}
	name := strings.TrimSpace(g.Name)
	if name == "" {
		name = email
	}

	guest, created, err := s.repo.GetOrCreateGuest(ctx, &models.Guest{Name: name, Email: email, Phone: g.Phone})
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info().Int64("guest_id", guest.ID).Str("email", email).Msg("guest created from channel record")
	}
	return guest, nil
}

func (s *ReconcileService) publishSummary(integration *models.Integration, summary SyncSummary) {
	if s.eventBus == nil {
		return
	}
	payload := events.SyncEventPayload{
		IntegrationID: integration.ID,
		Channel:       string(integration.Channel),
		Created:       summary.Created,
		Updated:       summary.Updated,
		Skipped:       summary.Skipped,
		Conflicted:    summary.Conflicted,
		Failed:        summary.Failed,
	}
	if err := s.eventBus.PublishJSON(events.EventSyncCompleted, payload); err != nil {
		s.logger.Error().Err(err).Int64("integration_id", integration.ID).Msg("publish event error")
	}
}

func snapshotOf(rec models.ExternalBooking) models.SyncSnapshot {
	snap := rec.Snapshot()
	snap.Start = daterange.Day(snap.Start)
	snap.End = daterange.Day(snap.End)
	return snap
}

func failed(res RecordResult, err error) RecordResult {
	res.Outcome = OutcomeFailed
	res.Reason = err.Error()
	res.Err = err
	return res
}

func conflicted(res RecordResult, err error) RecordResult {
	res.Outcome = OutcomeConflicted
	res.ConflictingIDs = domain.ConflictingIDs(err)
	res.Err = &domain.SyncConflictError{Channel: res.Channel, ExternalID: res.ExternalID, Cause: err}
	res.Reason = res.Err.Error()
	return res
}
