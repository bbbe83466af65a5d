package registrations

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusconnect/backend/internal/models"
)

func TestFilterFromQueryDefaults(t *testing.T) {
	f := FilterFromQuery(url.Values{})
	assert.Empty(t, f.Search)
	assert.Empty(t, f.Status)
	assert.Nil(t, f.EventID)
	assert.False(t, f.Oldest)
	assert.False(t, f.MatchesNothing())
}

func TestFilterFromQueryAllIsUnconstrained(t *testing.T) {
	q := url.Values{}
	q.Set("status", "all")
	q.Set("eventId", "all")
	f := FilterFromQuery(q)
	assert.Empty(t, f.Status)
	assert.Nil(t, f.EventID)
	assert.False(t, f.MatchesNothing())
}

func TestFilterFromQueryStatus(t *testing.T) {
	q := url.Values{}
	q.Set("status", "approved")
	f := FilterFromQuery(q)
	assert.Equal(t, models.StatusApproved, f.Status)
	assert.False(t, f.MatchesNothing())
}

func TestFilterFromQueryUnknownStatusMatchesNothing(t *testing.T) {
	q := url.Values{}
	q.Set("status", "cancelled")
	f := FilterFromQuery(q)
	assert.True(t, f.MatchesNothing())
}

func TestFilterFromQueryBadEventIDMatchesNothing(t *testing.T) {
	q := url.Values{}
	q.Set("eventId", "not-a-uuid")
	f := FilterFromQuery(q)
	assert.True(t, f.MatchesNothing())
}

func TestFilterFromQueryEventID(t *testing.T) {
	id := uuid.New()
	q := url.Values{}
	q.Set("eventId", id.String())
	f := FilterFromQuery(q)
	require.NotNil(t, f.EventID)
	assert.Equal(t, id, *f.EventID)
}

func TestFilterFromQueryTrimsSearch(t *testing.T) {
	q := url.Values{}
	q.Set("search", "  ada  ")
	f := FilterFromQuery(q)
	assert.Equal(t, "ada", f.Search)
}

func TestPageFromQueryClamps(t *testing.T) {
	cases := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", 1, DefaultLimit},
		{"0", "0", 1, DefaultLimit},
		{"-3", "-10", 1, DefaultLimit},
		{"2", "50", 2, 50},
		{"1", "9999", 1, MaxLimit},
		{"abc", "xyz", 1, DefaultLimit},
	}
	for _, tc := range cases {
		q := url.Values{}
		q.Set("page", tc.page)
		q.Set("limit", tc.limit)
		p := PageFromQuery(q)
		assert.Equal(t, tc.wantPage, p.Number, "page=%q", tc.page)
		assert.Equal(t, tc.wantLimit, p.Limit, "limit=%q", tc.limit)
	}
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, Page{Number: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, Page{Number: 3, Limit: 20}.Offset())
}

func TestFilterSQLUnconstrained(t *testing.T) {
	where, args := Filter{}.SQL()
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestFilterSQLSearchSpansUserAndEventFields(t *testing.T) {
	where, args := Filter{Search: "ada"}.SQL()
	assert.Contains(t, where, "u.full_name ILIKE $1")
	assert.Contains(t, where, "u.email ILIKE $1")
	assert.Contains(t, where, "e.name ILIKE $1")
	require.Len(t, args, 1)
	assert.Equal(t, "%ada%", args[0])
}

func TestFilterSQLEscapesLikeMetacharacters(t *testing.T) {
	cases := []struct {
		search string
		want   string
	}{
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`c:\temp`, `%c:\\temp%`},
	}
	for _, tc := range cases {
		_, args := Filter{Search: tc.search}.SQL()
		require.Len(t, args, 1, "search=%q", tc.search)
		assert.Equal(t, tc.want, args[0], "search=%q", tc.search)
	}
}

func TestFilterSQLCombinedPlaceholders(t *testing.T) {
	id := uuid.New()
	f := Filter{Search: "ada", Status: models.StatusPending, EventID: &id}
	where, args := f.SQL()
	assert.Contains(t, where, "r.status = $2")
	assert.Contains(t, where, "r.event_id = $3")
	require.Len(t, args, 3)
	assert.Equal(t, models.StatusPending, args[1])
	assert.Equal(t, id, args[2])
}

func TestFilterOrderByStable(t *testing.T) {
	assert.Equal(t, " ORDER BY r.created_at DESC, r.id DESC", Filter{}.OrderBy())
	assert.Equal(t, " ORDER BY r.created_at ASC, r.id ASC", Filter{Oldest: true}.OrderBy())
}
