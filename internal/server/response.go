package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bantamhq/cutman/internal/apierr"
)

// envelope is the single response shape every endpoint uses, per spec
// §4.F: exactly one of Data or Error is set (testable property I6).
type envelope struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// listPayload is the shape of every paginated list response per spec §4.F.
type listPayload struct {
	Items   any `json:"items"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeList(w http.ResponseWriter, items any, page, perPage, total int) {
	writeData(w, http.StatusOK, listPayload{Items: items, Page: page, PerPage: perPage, Total: total})
}

// writeError renders an *apierr.Error into the envelope. Any other error
// type is treated as Internal and its details are not leaked to the
// client, per spec §7.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Wrap(err, "unexpected error")
	}

	writeJSON(w, apiErr.Status(), envelope{Error: &errorBody{
		Kind:    string(apiErr.Kind),
		Message: apiErr.Message,
		Details: apiErr.Details,
	}})
}

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// parsePagination reads ?page= (1-based) and ?per_page= per spec §4.F.
func parsePagination(q url.Values) (page, perPage int) {
	page = 1
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}

	perPage = defaultPerPage
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return page, perPage
}
