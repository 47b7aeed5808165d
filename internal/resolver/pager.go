package resolver

import (
	"net/url"
	"strconv"

	"GistAPI/internal/query"
)

// Pager describes the returned page of a list response.
type Pager struct {
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
	Total     *int   `json:"total,omitempty"`
	PageCount *int   `json:"pageCount,omitempty"`
	PrevPage  string `json:"prevPage,omitempty"`
	NextPage  string `json:"nextPage,omitempty"`
}

// newPager builds the pager of a page holding n items. total is nil when
// the total was not requested.
func newPager(q *query.Query, n int, total *int, base string) Pager {
	p := Pager{Page: q.Page, PageSize: q.PageSize, Total: total}

	hasNext := n >= q.PageSize
	if total != nil {
		pages := (*total + q.PageSize - 1) / q.PageSize
		p.PageCount = &pages
		hasNext = q.Page < pages
	}
	if q.Page > 1 {
		p.PrevPage = pageURL(q.RequestURL, q.Page-1, base)
	}
	if hasNext {
		p.NextPage = pageURL(q.RequestURL, q.Page+1, base)
	}
	return p
}

// pageURL is the request URL with the page parameter replaced.
func pageURL(raw string, page int, base string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	values := u.Query()
	values.Set("page", strconv.Itoa(page))
	u.RawQuery = values.Encode()
	if u.IsAbs() {
		return u.String()
	}
	return base + u.String()
}
