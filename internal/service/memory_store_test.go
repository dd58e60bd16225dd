package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// newTxMock returns a sqlmock-backed transaction source. Stores in these tests ignore the tx, so only
// Begin/Commit/Rollback are expected.
func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectCommits(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

var testDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func clock(raw string) models.ClockTime {
	c, err := models.ParseClockTime(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// memoryWorld is a mutex-guarded in-memory database mirroring the conditional writes of the SQL repositories.
type memoryWorld struct {
	mu           sync.Mutex
	seq          int
	requests     map[string]*models.SubstituteRequest
	invitations  []*models.Invitation
	availability map[string]*models.TeacherAvailability
	names        map[string]string

	assignCalls int
}

func newMemoryWorld() *memoryWorld {
	return &memoryWorld{
		requests:     map[string]*models.SubstituteRequest{},
		availability: map[string]*models.TeacherAvailability{},
		names:        map[string]string{},
	}
}

func (w *memoryWorld) nextID(prefix string) string {
	w.seq++
	return fmt.Sprintf("%s-%d", prefix, w.seq)
}

func (w *memoryWorld) request(id string) models.SubstituteRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.requests[id]
}

func (w *memoryWorld) invitationsFor(requestID string) []models.Invitation {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Invitation
	for _, inv := range w.invitations {
		if inv.RequestID == requestID {
			out = append(out, *inv)
		}
	}
	return out
}

func (w *memoryWorld) calendar(teacherID string) []models.TeacherAvailability {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.TeacherAvailability
	for _, a := range w.availability {
		if a.TeacherID == teacherID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (w *memoryWorld) seedRequest(req models.SubstituteRequest) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if req.ID == "" {
		req.ID = w.nextID("req")
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	w.requests[req.ID] = &req
	return req.ID
}

func (w *memoryWorld) seedAvailability(teacherID, start, end string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID("avail")
	w.availability[id] = &models.TeacherAvailability{
		ID:        id,
		TeacherID: teacherID,
		Date:      testDate,
		StartTime: clock(start),
		EndTime:   clock(end),
		Status:    models.AvailabilityAvailable,
	}
}

type memRequests struct{ w *memoryWorld }

func (r memRequests) Create(ctx context.Context, req *models.SubstituteRequest) error {
	req.ID = r.w.seedRequest(*req)
	return nil
}

func (r memRequests) FindByID(ctx context.Context, id string) (*models.SubstituteRequest, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	req, ok := r.w.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (r memRequests) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SubstituteRequest, error) {
	return r.FindByID(ctx, id)
}

func (r memRequests) List(ctx context.Context, filter models.SubstituteRequestFilter) ([]models.SubstituteRequest, int, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []models.SubstituteRequest
	for _, req := range r.w.requests {
		if req.SchoolID == filter.SchoolID {
			out = append(out, *req)
		}
	}
	return out, len(out), nil
}

func (r memRequests) ListAwaiting(ctx context.Context) ([]models.SubstituteRequest, error) {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	var out []models.SubstituteRequest
	for _, req := range r.w.requests {
		if req.Status == models.RequestStatusAwaitingAcceptance {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memRequests) CompareAndSetStatus(ctx context.Context, exec sqlx.ExtContext, id string, from []models.RequestStatus, next models.RequestStatus) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	req, ok := r.w.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, status := range from {
		if req.Status == status {
			req.Status = next
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r memRequests) MarkDispatched(ctx context.Context, exec sqlx.ExtContext, id string, prior models.RequestStatus, batch int) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	req, ok := r.w.requests[id]
	if !ok || req.Status != prior || req.CurrentBatch != batch-1 {
		return sql.ErrNoRows
	}
	req.Status = models.RequestStatusAwaitingAcceptance
	req.CurrentBatch = batch
	return nil
}

func (r memRequests) Assign(ctx context.Context, exec sqlx.ExtContext, id, teacherID string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	r.w.assignCalls++
	req, ok := r.w.requests[id]
	if !ok || req.Status != models.RequestStatusAwaitingAcceptance {
		return sql.ErrNoRows
	}
	req.Status = models.RequestStatusAssigned
	teacher := teacherID
	req.AssignedTeacherID = &teacher
	return nil
}

func (r memRequests) Cancel(ctx context.Context, exec sqlx.ExtContext, id, reason string) error {
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	req, ok := r.w.requests[id]
	if !ok || !req.Status.Open() {
		return sql.ErrNoRows
	}
	req.Status = models.RequestStatusCancelled
	req.CancellationReason = &reason
	return nil
}

type memInvitations struct{ w *memoryWorld }

func (s memInvitations) CreateBatch(ctx context.Context, exec sqlx.ExtContext, requestID string, teacherIDs []string, batch int) ([]models.Invitation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var created []models.Invitation
	for _, teacherID := range teacherIDs {
		exists := false
		for _, inv := range s.w.invitations {
			if inv.RequestID == requestID && inv.TeacherID == teacherID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		inv := &models.Invitation{
			ID:          s.w.nextID("inv"),
			RequestID:   requestID,
			TeacherID:   teacherID,
			Status:      models.InvitationStatusPending,
			BatchNumber: batch,
			InvitedAt:   time.Now().UTC(),
		}
		s.w.invitations = append(s.w.invitations, inv)
		created = append(created, *inv)
	}
	return created, nil
}

func (s memInvitations) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, inv := range s.w.invitations {
		if inv.ID == id {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memInvitations) FindForTeacher(ctx context.Context, exec sqlx.ExtContext, requestID, teacherID string) (*models.Invitation, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, inv := range s.w.invitations {
		if inv.RequestID == requestID && inv.TeacherID == teacherID {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memInvitations) ListByRequest(ctx context.Context, requestID string) ([]models.Invitation, error) {
	return s.w.invitationsFor(requestID), nil
}

func (s memInvitations) InvitedTeacherIDs(ctx context.Context, exec sqlx.ExtContext, requestID string) ([]string, error) {
	var ids []string
	for _, inv := range s.w.invitationsFor(requestID) {
		ids = append(ids, inv.TeacherID)
	}
	return ids, nil
}

func (s memInvitations) History(ctx context.Context, requestID string) ([]models.InvitationHistoryEntry, error) {
	var entries []models.InvitationHistoryEntry
	for _, inv := range s.w.invitationsFor(requestID) {
		entries = append(entries, models.InvitationHistoryEntry{Invitation: inv, TeacherName: "Teacher " + inv.TeacherID})
	}
	return entries, nil
}

func (s memInvitations) Respond(ctx context.Context, exec sqlx.ExtContext, id string, next models.InvitationStatus, note string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, inv := range s.w.invitations {
		if inv.ID == id {
			if inv.Status != models.InvitationStatusPending {
				return sql.ErrNoRows
			}
			now := time.Now().UTC()
			inv.Status = next
			inv.RespondedAt = &now
			inv.ResponseNote = note
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s memInvitations) ResolvePending(ctx context.Context, exec sqlx.ExtContext, requestID, exceptID string, next models.InvitationStatus) ([]string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	teacherIDs := []string{}
	for _, inv := range s.w.invitations {
		if inv.RequestID == requestID && inv.ID != exceptID && inv.Status == models.InvitationStatusPending {
			inv.Status = next
			teacherIDs = append(teacherIDs, inv.TeacherID)
		}
	}
	return teacherIDs, nil
}

type memAvailability struct{ w *memoryWorld }

func (s memAvailability) LockContaining(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, window models.TimeWindow) (*models.TeacherAvailability, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, a := range s.w.availability {
		if a.TeacherID == teacherID && a.Status == models.AvailabilityAvailable && models.SameDate(a.Date, date) && a.Window().Contains(window) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memAvailability) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.availability[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.w.availability, id)
	return nil
}

func (s memAvailability) Create(ctx context.Context, exec sqlx.ExtContext, avail *models.TeacherAvailability) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	avail.ID = s.w.nextID("avail")
	copied := *avail
	s.w.availability[avail.ID] = &copied
	return nil
}

func (s memAvailability) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, window models.TimeWindow, status models.AvailabilityStatus) ([]models.TeacherAvailability, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []models.TeacherAvailability
	for _, a := range s.w.availability {
		if a.TeacherID == teacherID && a.Status == status && models.SameDate(a.Date, date) && a.Window().Overlaps(window) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s memAvailability) List(ctx context.Context, filter models.AvailabilityFilter) ([]models.TeacherAvailability, error) {
	return s.w.calendar(filter.TeacherID), nil
}

// staticCandidates serves a fixed candidate list.
type staticCandidates struct {
	candidates []models.Candidate
	err        error
}

func (s staticCandidates) ListCandidates(ctx context.Context, req models.SubstituteRequest) ([]models.Candidate, error) {
	return s.candidates, s.err
}

func candidate(id string, experience int, rating float64, qualifications ...string) models.Candidate {
	return models.Candidate{
		TeacherProfile: models.TeacherProfile{
			UserID:          id,
			FullName:        "Teacher " + id,
			Subjects:        []string{"Math"},
			Qualifications:  qualifications,
			ExperienceYears: experience,
			Rating:          rating,
		},
		AvailabilityID:     "avail-" + id,
		Date:               testDate,
		StartTime:          clock("08:00"),
		EndTime:            clock("16:00"),
		AvailabilityStatus: models.AvailabilityAvailable,
	}
}

func mathRequest() models.SubstituteRequest {
	return models.SubstituteRequest{
		SchoolID:    "school-1",
		RequestedBy: "admin-1",
		Subject:     "Math",
		Grade:       "10",
		Date:        testDate,
		StartTime:   clock("10:00"),
		EndTime:     clock("11:00"),
		Status:      models.RequestStatusPending,
		Mode:        models.ModeOffline,
	}
}

// settingsStub serves one school's raw matching document.
type settingsStub struct {
	mu       sync.Mutex
	raw      string
	err      error
	updated  string
	getCalls int
}

func (s *settingsStub) GetMatchingSettings(ctx context.Context, schoolID string) (*models.SchoolMatchingSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.SchoolMatchingSettings{SchoolID: schoolID, Settings: types.JSONText(s.raw)}, nil
}

func (s *settingsStub) UpdateMatchingSettings(ctx context.Context, schoolID string, settings types.JSONText) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = string(settings)
	s.raw = string(settings)
	return nil
}
