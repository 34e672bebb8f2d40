package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

// Paginated is the list envelope shared by appointments and patients.
type Paginated[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

func newPaginated[T any](data []T, total int, page appointment.Page) Paginated[T] {
	if data == nil {
		data = []T{}
	}
	last := 1
	if page.PerPage > 0 && total > 0 {
		last = (total + page.PerPage - 1) / page.PerPage
	}
	return Paginated[T]{
		Data:        data,
		CurrentPage: page.Number,
		PerPage:     page.PerPage,
		Total:       total,
		LastPage:    last,
	}
}

// pageFromQuery reads page and per_page. Bad values fall back to defaults and
// are clamped by the service.
func pageFromQuery(r *http.Request) appointment.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return appointment.Page{Number: number, PerPage: perPage}
}
