package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 15
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads page/per_page, falling back to limit/offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("per_page"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var offset int
	if page, _ := strconv.Atoi(c.QueryParam("page")); page > 1 {
		offset = (page - 1) * limit
	} else {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Page is the 1-based page the offset falls on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Response wraps a paginated API response.
type Response struct {
	Data        interface{} `json:"data"`
	Total       int         `json:"total"`
	PerPage     int         `json:"per_page"`
	CurrentPage int         `json:"current_page"`
	LastPage    int         `json:"last_page"`
	Offset      int         `json:"offset"`
	HasMore     bool        `json:"has_more"`
	NextPage    *int        `json:"next_page"`
	PrevPage    *int        `json:"prev_page"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	p := Params{Limit: limit, Offset: offset}
	last := 1
	if limit > 0 && total > 0 {
		last = (total + limit - 1) / limit
	}
	r := &Response{
		Data:        data,
		Total:       total,
		PerPage:     limit,
		CurrentPage: p.Page(),
		LastPage:    last,
		Offset:      offset,
		HasMore:     p.HasNext(total),
	}
	if r.HasMore {
		next := Params{Limit: limit, Offset: p.NextOffset()}.Page()
		r.NextPage = &next
	}
	if p.HasPrevious() {
		prev := Params{Limit: limit, Offset: p.PreviousOffset()}.Page()
		r.PrevPage = &prev
	}
	return r
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
