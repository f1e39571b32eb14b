package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string, clamping the
// limit to MaxLimit and falling back to DefaultLimit.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// Previous returns the params of the preceding page. ok is false on the
// first page.
func (p Params) Previous() (prev Params, ok bool) {
	if p.Offset == 0 {
		return p, false
	}
	prev = Params{Limit: p.Limit, Offset: p.Offset - p.Limit}
	if prev.Offset < 0 {
		prev.Offset = 0
	}
	return prev, true
}

// Next returns the params of the following page.
func (p Params) Next() Params {
	return Params{Limit: p.Limit, Offset: p.Offset + p.Limit}
}

// Links are page URLs relative to the listing route.
type Links struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
	Links   *Links      `json:"links,omitempty"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// WithLinks fills Links from the request URL. Query parameters other than
// limit and offset are carried over.
func (r *Response) WithLinks(u *url.URL) *Response {
	p := Params{Limit: r.Limit, Offset: r.Offset}
	r.Links = &Links{Self: pageURL(u, p)}
	if r.HasMore {
		r.Links.Next = pageURL(u, p.Next())
	}
	if prev, ok := p.Previous(); ok {
		r.Links.Prev = pageURL(u, prev)
	}
	return r
}

func pageURL(u *url.URL, p Params) string {
	q := u.Query()
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))
	return u.Path + "?" + q.Encode()
}
