package registrations

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/backend/internal/middleware"
	"github.com/campusconnect/backend/internal/models"
)

var testActor = uuid.New()

// memStore is an in-memory Store honoring the same atomic transition
// contract as the pgx repository.
type memStore struct {
	mu   sync.Mutex
	regs map[uuid.UUID]*models.RegistrationDetail
}

func newMemStore() *memStore {
	return &memStore{regs: make(map[uuid.UUID]*models.RegistrationDetail)}
}

func (s *memStore) add(d models.RegistrationDetail) models.RegistrationDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.regs[d.ID] = &d
	return d
}

func (s *memStore) Create(_ context.Context, userID, eventID uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.regs {
		if d.UserID == userID && d.EventID == eventID {
			return nil, ErrDuplicate
		}
	}
	d := &models.RegistrationDetail{
		Registration: models.Registration{
			ID:        uuid.New(),
			UserID:    userID,
			EventID:   eventID,
			Status:    models.StatusPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}
	s.regs[d.ID] = d
	reg := d.Registration
	return &reg, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	reg := d.Registration
	return &reg, nil
}

func (s *memStore) Approve(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != models.StatusPending {
		return nil, ErrNotPending
	}
	d.Status = models.StatusApproved
	d.UpdatedAt = time.Now()
	reg := d.Registration
	return &reg, nil
}

func (s *memStore) Reject(_ context.Context, id uuid.UUID, reason string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != models.StatusPending {
		return nil, ErrNotPending
	}
	d.Status = models.StatusRejected
	if reason != "" {
		d.RejectionReason = &reason
	}
	d.UpdatedAt = time.Now()
	reg := d.Registration
	return &reg, nil
}

func (s *memStore) SetAttendance(_ context.Context, id uuid.UUID, attended bool) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != models.StatusApproved {
		return nil, ErrNotApproved
	}
	d.Attended = attended
	d.UpdatedAt = time.Now()
	reg := d.Registration
	return &reg, nil
}

func (s *memStore) matching(f Filter) []models.RegistrationDetail {
	if f.MatchesNothing() {
		return nil
	}
	var out []models.RegistrationDetail
	for _, d := range s.regs {
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(d.UserName), needle) &&
				!strings.Contains(strings.ToLower(d.UserEmail), needle) &&
				!strings.Contains(strings.ToLower(d.EventName), needle) {
				continue
			}
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.EventID != nil && d.EventID != *f.EventID {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if f.Oldest {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if f.Oldest {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (s *memStore) List(_ context.Context, f Filter, p Page) ([]models.RegistrationDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.matching(f)
	total := len(all)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *memStore) Stream(_ context.Context, f Filter, fn func(models.RegistrationDetail) error) error {
	s.mu.Lock()
	all := s.matching(f)
	s.mu.Unlock()
	for _, d := range all {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// memEvents resolves event references for the intake path.
type memEvents struct {
	events map[uuid.UUID]*models.Event
}

func (s *memEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event not found")
	}
	return e, nil
}

// memAudit collects moderation log entries.
type memAudit struct {
	mu      sync.Mutex
	entries []models.ModerationLog
}

func (a *memAudit) Record(_ context.Context, entry *models.ModerationLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	a.entries = append(a.entries, *entry)
	return nil
}

func (a *memAudit) ListByRegistration(_ context.Context, registrationID uuid.UUID) ([]models.ModerationLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.ModerationLog
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].RegistrationID == registrationID {
			out = append(out, a.entries[i])
		}
	}
	return out, nil
}

type fixture struct {
	store  *memStore
	events *memEvents
	audit  *memAudit
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	evs := &memEvents{events: make(map[uuid.UUID]*models.Event)}
	audit := &memAudit{}
	h := NewHandler(store, evs, audit, nil)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, testActor)
		c.Set(middleware.ContextUserRole, "moderator")
	})
	router.POST("/events/:id/register", h.Register)
	reg := router.Group("/registrations")
	{
		reg.GET("", h.List)
		reg.GET("/export", h.Export)
		reg.POST("/bulk-approve", h.BulkApprove)
		reg.PATCH("/:id/approve", h.Approve)
		reg.PATCH("/:id/reject", h.Reject)
		reg.PATCH("/:id/attendance", h.SetAttendance)
		reg.GET("/:id/history", h.History)
	}
	return &fixture{store: store, events: evs, audit: audit, router: router}
}

func (fx *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "error: %s", envelope.Error)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func seedReg(fx *fixture, status models.RegistrationStatus, name, email, event string, createdAt time.Time) models.RegistrationDetail {
	return fx.store.add(models.RegistrationDetail{
		Registration: models.Registration{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			EventID:   uuid.New(),
			Status:    status,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		},
		UserName:  name,
		UserEmail: email,
		College:   "Engineering",
		Year:      2,
		EventName: event,
	})
}

func TestApprovePendingThenConflict(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusPending, "Ada Lovelace", "ada@example.com", "HackNight", time.Now())

	w := fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Registration
	decodeData(t, w, &got)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, r1.CreatedAt.Unix(), got.CreatedAt.Unix())

	// A second approve must surface a conflict, not silently succeed.
	w = fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveUnknownID(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(t, http.MethodPatch, "/registrations/"+uuid.NewString()+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = fx.do(t, http.MethodPatch, "/registrations/not-a-uuid/approve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectWithReason(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())

	w := fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/reject", RejectRequest{Reason: "event is full"})
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Registration
	decodeData(t, w, &got)
	assert.Equal(t, models.StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "event is full", *got.RejectionReason)
}

func TestRejectTerminalConflict(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusApproved, "Ada", "ada@example.com", "HackNight", time.Now())
	w := fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/reject", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAttendanceRequiresApproval(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())

	attended := true
	w := fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/attendance", AttendanceRequest{Attended: &attended})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/attendance", AttendanceRequest{Attended: &attended})
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Registration
	decodeData(t, w, &got)
	assert.True(t, got.Attended)

	// Clearing the flag is allowed, but still only on approved records.
	cleared := false
	w = fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/attendance", AttendanceRequest{Attended: &cleared})
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &got)
	assert.False(t, got.Attended)
}

func TestAttendanceRejectedRecordConflict(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusRejected, "Ada", "ada@example.com", "HackNight", time.Now())
	attended := false
	w := fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/attendance", AttendanceRequest{Attended: &attended})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAttendanceMissingBody(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusApproved, "Ada", "ada@example.com", "HackNight", time.Now())
	w := fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/attendance", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkApproveMixedSet(t *testing.T) {
	fx := newFixture(t)
	pending := seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())
	approved := seedReg(fx, models.StatusApproved, "Grace", "grace@example.com", "HackNight", time.Now())

	w := fx.do(t, http.MethodPost, "/registrations/bulk-approve", BulkApproveRequest{
		IDs: []string{pending.ID.String(), approved.ID.String()},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result BulkResult
	decodeData(t, w, &result)
	require.Len(t, result.Succeeded, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, pending.ID.String(), result.Succeeded[0])
	assert.Equal(t, approved.ID.String(), result.Failed[0].ID)
	assert.Equal(t, "not pending", result.Failed[0].Reason)

	got, err := fx.store.GetByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestBulkApproveIdempotentSecondCall(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())
	r2 := seedReg(fx, models.StatusPending, "Grace", "grace@example.com", "HackNight", time.Now())
	ids := BulkApproveRequest{IDs: []string{r1.ID.String(), r2.ID.String()}}

	w := fx.do(t, http.MethodPost, "/registrations/bulk-approve", ids)
	require.Equal(t, http.StatusOK, w.Code)
	var first BulkResult
	decodeData(t, w, &first)
	assert.Len(t, first.Succeeded, 2)
	assert.Empty(t, first.Failed)

	w = fx.do(t, http.MethodPost, "/registrations/bulk-approve", ids)
	require.Equal(t, http.StatusOK, w.Code)
	var second BulkResult
	decodeData(t, w, &second)
	assert.Empty(t, second.Succeeded)
	assert.Len(t, second.Failed, 2)
	for _, f := range second.Failed {
		assert.Equal(t, "not pending", f.Reason)
	}
}

func TestBulkApproveValidation(t *testing.T) {
	fx := newFixture(t)

	w := fx.do(t, http.MethodPost, "/registrations/bulk-approve", BulkApproveRequest{IDs: []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := make([]string, MaxBulkIDs+1)
	for i := range big {
		big[i] = uuid.NewString()
	}
	w = fx.do(t, http.MethodPost, "/registrations/bulk-approve", BulkApproveRequest{IDs: big})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkApproveReportsBadAndUnknownIDs(t *testing.T) {
	fx := newFixture(t)
	missing := uuid.NewString()
	w := fx.do(t, http.MethodPost, "/registrations/bulk-approve", BulkApproveRequest{
		IDs: []string{"garbage", missing},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result BulkResult
	decodeData(t, w, &result)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "invalid id", result.Failed[0].Reason)
	assert.Equal(t, "not found", result.Failed[1].Reason)
}

func listPage(t *testing.T, fx *fixture, query string) (items []models.RegistrationDetail, total int) {
	t.Helper()
	w := fx.do(t, http.MethodGet, "/registrations"+query, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []models.RegistrationDetail `json:"items"`
		Total int                         `json:"total"`
	}
	decodeData(t, w, &page)
	return page.Items, page.Total
}

func TestListStatusFilterPurity(t *testing.T) {
	fx := newFixture(t)
	seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())
	seedReg(fx, models.StatusApproved, "Grace", "grace@example.com", "HackNight", time.Now())
	seedReg(fx, models.StatusRejected, "Edsger", "edsger@example.com", "SummerFest", time.Now())

	items, total := listPage(t, fx, "?status=approved")
	assert.Equal(t, 1, total)
	for _, it := range items {
		assert.Equal(t, models.StatusApproved, it.Status)
	}
}

func TestListTotalSpansAllPages(t *testing.T) {
	fx := newFixture(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		seedReg(fx, models.StatusPending, fmt.Sprintf("User %d", i), fmt.Sprintf("u%d@example.com", i), "HackNight", base.Add(time.Duration(i)*time.Minute))
	}

	var collected int
	for page := 1; page <= 3; page++ {
		items, total := listPage(t, fx, fmt.Sprintf("?page=%d&limit=3", page))
		assert.Equal(t, 7, total)
		collected += len(items)
	}
	assert.Equal(t, 7, collected)
}

func TestListDefaultOrderingNewestFirst(t *testing.T) {
	fx := newFixture(t)
	base := time.Now().Add(-time.Hour)
	old := seedReg(fx, models.StatusPending, "Old", "old@example.com", "HackNight", base)
	mid := seedReg(fx, models.StatusPending, "Mid", "mid@example.com", "HackNight", base.Add(10*time.Minute))
	recent := seedReg(fx, models.StatusPending, "New", "new@example.com", "HackNight", base.Add(20*time.Minute))

	items, _ := listPage(t, fx, "")
	require.Len(t, items, 3)
	assert.Equal(t, recent.ID, items[0].ID)
	assert.Equal(t, mid.ID, items[1].ID)
	assert.Equal(t, old.ID, items[2].ID)

	items, _ = listPage(t, fx, "?sort=oldest")
	require.Len(t, items, 3)
	assert.Equal(t, old.ID, items[0].ID)
}

func TestListSearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	fx := newFixture(t)
	seedReg(fx, models.StatusPending, "Ada Lovelace", "ada@example.com", "HackNight", time.Now())
	seedReg(fx, models.StatusPending, "Grace Hopper", "grace@navy.mil", "SummerFest", time.Now())

	_, total := listPage(t, fx, "?search=LOVELACE")
	assert.Equal(t, 1, total)
	_, total = listPage(t, fx, "?search=navy.mil")
	assert.Equal(t, 1, total)
	_, total = listPage(t, fx, "?search=summerfest")
	assert.Equal(t, 1, total)
	_, total = listPage(t, fx, "?search=nobody")
	assert.Equal(t, 0, total)
}

func TestListUnknownEventIDIsEmptyNotError(t *testing.T) {
	fx := newFixture(t)
	seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())

	items, total := listPage(t, fx, "?eventId="+uuid.NewString())
	assert.Empty(t, items)
	assert.Equal(t, 0, total)

	items, total = listPage(t, fx, "?eventId=not-a-uuid")
	assert.Empty(t, items)
	assert.Equal(t, 0, total)
}

func TestExportRowCountMatchesListTotal(t *testing.T) {
	fx := newFixture(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := models.StatusApproved
		if i%2 == 1 {
			status = models.StatusPending
		}
		seedReg(fx, status, fmt.Sprintf("User %d", i), fmt.Sprintf("u%d@example.com", i), "HackNight", base.Add(time.Duration(i)*time.Minute))
	}

	_, total := listPage(t, fx, "?status=approved")

	w := fx.do(t, http.MethodGet, "/registrations/export?status=approved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "registrations-"+time.Now().Format("2006-01-02")+".csv")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, ExportHeader, records[0])
	assert.Equal(t, total, len(records)-1)
	for _, rec := range records[1:] {
		assert.Equal(t, "approved", rec[5])
	}
}

func TestExportQuotesEmbeddedSeparators(t *testing.T) {
	fx := newFixture(t)
	seedReg(fx, models.StatusApproved, `Ada "Countess", Lovelace`, "ada@example.com", "Tea, Scones & Math", time.Now())

	w := fx.do(t, http.MethodGet, "/registrations/export", nil)
	require.Equal(t, http.StatusOK, w.Code)

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, `Ada "Countess", Lovelace`, records[1][0])
	assert.Equal(t, "Tea, Scones & Math", records[1][2])
}

func TestRegisterIntake(t *testing.T) {
	fx := newFixture(t)
	event := &models.Event{ID: uuid.New(), Name: "HackNight"}
	fx.events.events[event.ID] = event

	w := fx.do(t, http.MethodPost, "/events/"+event.ID.String()+"/register", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var got models.Registration
	decodeData(t, w, &got)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, testActor, got.UserID)
	assert.False(t, got.Attended)

	// One registration per (user, event).
	w = fx.do(t, http.MethodPost, "/events/"+event.ID.String()+"/register", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterUnknownEvent(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(t, http.MethodPost, "/events/"+uuid.NewString()+"/register", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryRecordsModerationActions(t *testing.T) {
	fx := newFixture(t)
	r1 := seedReg(fx, models.StatusPending, "Ada", "ada@example.com", "HackNight", time.Now())

	require.Equal(t, http.StatusOK, fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/approve", nil).Code)
	attended := true
	require.Equal(t, http.StatusOK, fx.do(t, http.MethodPatch, "/registrations/"+r1.ID.String()+"/attendance", AttendanceRequest{Attended: &attended}).Code)

	w := fx.do(t, http.MethodGet, "/registrations/"+r1.ID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []models.ModerationLog
	decodeData(t, w, &entries)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, models.ActionAttendance, entries[0].Action)
	assert.Equal(t, models.ActionApprove, entries[1].Action)
	for _, e := range entries {
		assert.Equal(t, testActor, e.ActorID)
	}
}

func TestHistoryUnknownRegistration(t *testing.T) {
	fx := newFixture(t)
	w := fx.do(t, http.MethodGet, "/registrations/"+uuid.NewString()+"/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
