package registrations

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/campusconnect/backend/internal/models"
)

const (
	// DefaultLimit is the page size when the caller does not set one.
	DefaultLimit = 20
	// MaxLimit caps the page size for list queries. Export ignores it.
	MaxLimit = 100
)

// Filter is the immutable query specification shared by the list and export
// paths, so the two can never diverge in semantics.
type Filter struct {
	Search  string
	Status  models.RegistrationStatus // empty means all
	EventID *uuid.UUID
	Oldest  bool // ascending created_at instead of the default descending

	// none marks a filter that provably matches nothing: an unparsable
	// eventId or an unknown status value is "no matches", not a bad request.
	none bool
}

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// FilterFromQuery builds a Filter from list/export query parameters.
func FilterFromQuery(q url.Values) Filter {
	f := Filter{
		Search: strings.TrimSpace(q.Get("search")),
		Oldest: q.Get("sort") == "oldest",
	}

	if s := q.Get("status"); s != "" && s != "all" {
		status := models.RegistrationStatus(s)
		if !status.Valid() {
			f.none = true
			return f
		}
		f.Status = status
	}

	if e := q.Get("eventId"); e != "" && e != "all" {
		id, err := uuid.Parse(e)
		if err != nil {
			f.none = true
			return f
		}
		f.EventID = &id
	}
	return f
}

// PageFromQuery builds a Page from query parameters, clamping page to >= 1
// and limit to [1, MaxLimit].
func PageFromQuery(q url.Values) Page {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Number: page, Limit: limit}
}

// MatchesNothing reports whether the filter can be answered with an empty
// result without touching the store.
func (f Filter) MatchesNothing() bool { return f.none }

// likeEscaper neutralizes LIKE metacharacters in user input so a search for
// "100%" matches the literal text instead of acting as a wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SQL renders the filter as a WHERE clause over the registrations join
// (aliases r, u, e) with numbered placeholders. Returns an empty clause when
// the filter is unconstrained.
func (f Filter) SQL() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(u.full_name ILIKE $%d OR u.email ILIKE $%d OR e.name ILIKE $%d)", n, n, n))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if f.EventID != nil {
		args = append(args, *f.EventID)
		conds = append(conds, fmt.Sprintf("r.event_id = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// OrderBy returns the ORDER BY clause. The id tie-break keeps ordering
// stable so repeated queries against an unchanged store return identical
// page contents.
func (f Filter) OrderBy() string {
	if f.Oldest {
		return " ORDER BY r.created_at ASC, r.id ASC"
	}
	return " ORDER BY r.created_at DESC, r.id DESC"
}
