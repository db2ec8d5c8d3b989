package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/events"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/upstream"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/utils"
)

// memoLimit bounds the content-hash memo. Past the limit the memo is
// cleared rather than evicted piecemeal; the store duplicate check still
// catches anything the memo forgets.
const memoLimit = 1000

type UpdaterStatus struct {
	Running      bool      `json:"running"`
	Cursor       time.Time `json:"cursor"`
	LastRun      time.Time `json:"last_run,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Cycles       int64     `json:"cycles"`
	Fetched      int64     `json:"fetched"`
	Inserted     int64     `json:"inserted"`
	Deduplicated int64     `json:"deduplicated"`
	MemoSize     int       `json:"memo_size"`
}

// Updater polls the upstream system of record on a fixed interval and
// materializes new appointments. It is constructed once and injected where
// needed; Start is idempotent and only the first call launches the loop.
type Updater struct {
	Store    Store
	Upstream upstream.Client
	Bus      *events.Bus
	Interval time.Duration
	Logger   zerolog.Logger

	// Now is swappable for tests; zero value means time.Now.
	Now func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	cursor  time.Time
	memo    map[uint64]bool
	status  UpdaterStatus
}

func (u *Updater) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

// Start launches the polling loop. Subsequent calls are no-ops while the
// loop is running. The cursor starts at the current instant, so only
// changes made after startup are ingested.
func (u *Updater) Start(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		u.Logger.Warn().Msg("updater already running, ignoring start")
		return
	}
	u.running = true
	u.cursor = u.now()
	u.memo = make(map[uint64]bool)
	u.done = make(chan struct{})

	loopCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel
	go u.loop(loopCtx)
	u.Logger.Info().Dur("interval", u.Interval).Time("cursor", u.cursor).Msg("updater started")
}

// Stop cancels the loop and waits for the current cycle to finish.
func (u *Updater) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	cancel, done := u.cancel, u.done
	u.mu.Unlock()

	cancel()
	<-done

	u.mu.Lock()
	u.running = false
	u.mu.Unlock()
	u.Logger.Info().Msg("updater stopped")
}

func (u *Updater) Status() UpdaterStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	st := u.status
	st.Running = u.running
	st.Cursor = u.cursor
	st.MemoSize = len(u.memo)
	return st
}

func (u *Updater) loop(ctx context.Context) {
	defer close(u.done)
	ticker := time.NewTicker(u.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.RunOnce(ctx); err != nil {
				u.Logger.Error().Err(err).Msg("ingestion cycle failed")
			}
		}
	}
}

// RunOnce executes a single ingestion cycle. The fetch instant is snapshotted
// before the call so changes landing upstream during the cycle are not lost;
// the cursor only advances after a fully successful persist.
func (u *Updater) RunOnce(ctx context.Context) error {
	u.mu.Lock()
	since := u.cursor
	u.mu.Unlock()

	fetchStartedAt := u.now()
	records, err := u.Upstream.FetchChangedSince(ctx, since)

	u.mu.Lock()
	u.status.Cycles++
	u.status.LastRun = fetchStartedAt
	u.mu.Unlock()

	if err != nil {
		u.setLastError(err)
		return fmt.Errorf("fetch changed since %s: %w", since.Format(time.RFC3339), err)
	}

	fresh, deduped, err := u.materialize(ctx, records)
	if err != nil {
		u.setLastError(err)
		return err
	}

	u.mu.Lock()
	u.status.Fetched += int64(len(records))
	u.status.Inserted += int64(len(fresh))
	u.status.Deduplicated += deduped
	u.status.LastError = ""
	u.cursor = fetchStartedAt.Add(time.Second)
	u.mu.Unlock()

	if len(fresh) > 0 {
		u.Logger.Info().Int("inserted", len(fresh)).Int64("deduplicated", deduped).Msg("ingestion cycle applied")
		if u.Bus != nil {
			u.Bus.Publish(events.AgendaBulkCreated, map[string]any{
				"count":  len(fresh),
				"source": "updater",
			})
		}
	}
	return nil
}

// materialize converts INSERT records into appointments and bulk-inserts the
// ones not already seen. Hashes memoized during the cycle are rolled back if
// the persist fails, so the records are retried next cycle.
func (u *Updater) materialize(ctx context.Context, records []upstream.Record) ([]models.Appointment, int64, error) {
	var (
		fresh      []models.Appointment
		newHashes  []uint64
		duplicates int64
	)
	for _, rec := range records {
		if rec.Action != upstream.ActionInsert {
			continue
		}
		appt, err := recordToAppointment(rec)
		if err != nil {
			u.Logger.Warn().Err(err).Int64("record_id", rec.ID).Msg("skipping malformed record")
			continue
		}

		hash := contentHash(rec)
		u.mu.Lock()
		seen := u.memo[hash]
		u.mu.Unlock()
		if seen {
			duplicates++
			continue
		}

		exists, err := u.Store.ExistsAppointment(ctx, appt.MedicID, appt.BoxID, appt.Date, appt.Start, appt.End)
		if err != nil {
			return nil, 0, fmt.Errorf("duplicate check: %w", err)
		}
		u.remember(hash)
		newHashes = append(newHashes, hash)
		if exists {
			duplicates++
			continue
		}
		fresh = append(fresh, appt)
	}

	if len(fresh) == 0 {
		return nil, duplicates, nil
	}

	if _, err := u.Store.BulkInsertAppointments(ctx, fresh); err != nil {
		u.forget(newHashes)
		return nil, 0, fmt.Errorf("bulk insert: %w", err)
	}
	return fresh, duplicates, nil
}

func (u *Updater) remember(hash uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.memo) >= memoLimit {
		u.Logger.Debug().Int("size", len(u.memo)).Msg("hash memo full, clearing")
		u.memo = make(map[uint64]bool)
	}
	u.memo[hash] = true
}

func (u *Updater) forget(hashes []uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, h := range hashes {
		delete(u.memo, h)
	}
}

func (u *Updater) setLastError(err error) {
	u.mu.Lock()
	u.status.LastError = err.Error()
	u.mu.Unlock()
}

func contentHash(rec upstream.Record) uint64 {
	key := fmt.Sprintf("%d|%d|%s|%s|%s", rec.MedicID, rec.BoxID, rec.Date, rec.Start, rec.End)
	return utils.HashStringToUint64(key)
}

func recordToAppointment(rec upstream.Record) (models.Appointment, error) {
	date, err := time.Parse("2006-01-02", rec.Date)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("record %d: bad date %q", rec.ID, rec.Date)
	}
	start, err := models.ParseClock(rec.Start)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	end, err := models.ParseClock(rec.End)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	if end <= start {
		return models.Appointment{}, fmt.Errorf("record %d: empty window %s-%s", rec.ID, rec.Start, rec.End)
	}
	appt := models.Appointment{
		BoxID:     rec.BoxID,
		Date:      date,
		Start:     start,
		End:       end,
		Enabled:   true,
		IsMedical: true,
	}
	if rec.MedicID != 0 {
		medicID := rec.MedicID
		appt.MedicID = &medicID
	}
	return appt, nil
}
