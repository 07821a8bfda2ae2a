package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/moviedeck/internal/model"
	"github.com/hitoshi/moviedeck/internal/querycache"
)

func TestFormatRuntime(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, ""},
		{-5, ""},
		{45, "45m"},
		{60, "1h 0m"},
		{139, "2h 19m"},
	}
	for _, tt := range tests {
		if got := formatRuntime(tt.minutes); got != tt.want {
			t.Errorf("formatRuntime(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, ""},
		{999, "$999"},
		{160000000, "$160,000,000"},
	}
	for _, tt := range tests {
		if got := formatMoney(tt.amount); got != tt.want {
			t.Errorf("formatMoney(%d) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestMovieSlug(t *testing.T) {
	tests := []struct {
		id    int
		title string
		want  string
	}{
		{27205, "Inception", "27205-inception"},
		{680, "Pulp Fiction", "680-pulp-fiction"},
		{19995, "Avatar: The Way of Water", "19995-avatar-the-way-of-water"},
		{42, "", "42"},
	}
	for _, tt := range tests {
		if got := movieSlug(tt.id, tt.title); got != tt.want {
			t.Errorf("movieSlug(%d, %q) = %q, want %q", tt.id, tt.title, got, tt.want)
		}
	}
}

func TestFormatReleaseDate(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2010-07-16", "July 16, 2010"},
		{"", ""},
		{"2010", ""},
	}
	for _, tt := range tests {
		if got := formatReleaseDate(tt.date); got != tt.want {
			t.Errorf("formatReleaseDate(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewAuthorizationRequiredError(), http.StatusUnauthorized},
		{model.NewInvalidPageError("0"), http.StatusBadRequest},
		{model.NewInvalidMovieIDError("x"), http.StatusBadRequest},
		{model.NewInvalidMovieError("タイトルが空です"), http.StatusBadRequest},
		{model.NewInvalidImageSizeError("huge"), http.StatusBadRequest},
		{model.NewMovieNotFoundError(1), http.StatusNotFound},
		{model.NewUserNotFoundError(), http.StatusNotFound},
		{model.NewCatalogUnavailableError("timeout"), http.StatusBadGateway},
		{model.NewCatalogNotConfiguredError(), http.StatusServiceUnavailable},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	rec := httptest.NewRecorder()
	handleServiceError(rec, model.NewMovieNotFoundError(5))
	if rec.Code != http.StatusNotFound {
		t.Errorf("APIError: status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = httptest.NewRecorder()
	handleServiceError(rec, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("plain error: status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestWriteQueryResult_StaleDataWithError(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := queryState{
		status:    querycache.StatusError,
		hasData:   true,
		err:       errors.New("connection reset"),
		updatedAt: now.Add(-3 * time.Minute),
	}

	rec := httptest.NewRecorder()
	writeQueryResult(rec, st, pageResponse{Page: 1}, catalogError, now)

	// 古いデータがあれば失敗しても200で返す
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var data pageResponse
	q := decodeQuery(t, rec.Body, &data)
	if q.DataIsNull || data.Page != 1 {
		t.Error("stale data should be kept")
	}
	if q.Error == nil || q.Error.Code != model.ErrCodeCatalogUnavailable {
		t.Errorf("error = %+v", q.Error)
	}
}

func TestWriteQueryResult_RelativeUpdatedTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := queryState{status: querycache.StatusSuccess, hasData: true, updatedAt: now.Add(-3 * time.Minute)}

	rec := httptest.NewRecorder()
	writeQueryResult(rec, st, pageResponse{}, catalogError, now)

	var body struct {
		Updated string `json:"updated"`
	}
	if err := decodeJSON(rec, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Updated != "3 minutes ago" {
		t.Errorf("updated = %q, want %q", body.Updated, "3 minutes ago")
	}
}
