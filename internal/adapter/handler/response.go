package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logging"
)

const defaultErrorMessage = "System error! Couldn't determine error cause"

// MaxBodyBytes caps every request body, webhooks included.
const MaxBodyBytes = 1 << 20

type Link struct {
	Host      string `json:"host"`
	Link      string `json:"link"`
	Route     string `json:"route"`
	BaseURL   string `json:"baseUrl"`
	CommonURL string `json:"commonUrl"`
}

type SuccessResponse struct {
	Data         any   `json:"data"`
	Total        *int  `json:"total,omitempty"`
	PageNum      int   `json:"pageNum,omitempty"`
	ActivePage   int   `json:"activePage,omitempty"`
	PreviousLink *Link `json:"previousLink,omitempty"`
	NextLink     *Link `json:"nextLink,omitempty"`
}

type ErrorResponse struct {
	Message string            `json:"message"`
	Error   map[string]string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessResponse{Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeData(w, status, map[string]string{"message": message})
}

func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.ErrValidation, domain.ErrSignatureInvalid:
		return http.StatusBadRequest
	case domain.ErrUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrOutOfBound:
		return http.StatusRequestedRangeNotSatisfiable
	case domain.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its status. Errors without a kind are
// logged and hidden behind the default message.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := statusOf(de.Kind)
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", slog.String("path", r.URL.Path), logging.Err(err))
		}
		writeJSON(w, status, ErrorResponse{Message: de.Message, Error: de.Fields})
		return
	}

	if kind := domain.KindOf(err); kind != "" {
		writeJSON(w, statusOf(kind), ErrorResponse{Message: kind.Error()})
		return
	}

	h.logger.Error("request failed", slog.String("path", r.URL.Path), logging.Err(err))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: defaultErrorMessage})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.NewError(domain.ErrValidation, "Request body too large")
	}
	return domain.NewError(domain.ErrValidation, "Invalid request body")
}

// parsePage reads ?page and ?max. A page that is not a positive number is
// out of bound; a bad max falls back to the default size.
func parsePage(r *http.Request) (domain.Page, error) {
	q := r.URL.Query()

	number := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return domain.Page{}, domain.NewError(domain.ErrOutOfBound, "Page out of bound!")
		}
		number = n
	}

	size, err := strconv.Atoi(q.Get("max"))
	if err != nil {
		size = 0
	}
	return domain.NewPage(number, size), nil
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

func pageLink(r *http.Request, page int) *Link {
	route := r.URL.Path
	return &Link{
		Host:      r.Host,
		Link:      fmt.Sprintf("%s://%s%s", scheme(r), r.Host, r.URL.RequestURI()),
		Route:     route,
		BaseURL:   fmt.Sprintf("%s://%s/v1", scheme(r), r.Host),
		CommonURL: fmt.Sprintf("%s?page=%d", strings.Replace(route, "/v1", "", 1), page),
	}
}

func writePage[T any](w http.ResponseWriter, r *http.Request, result domain.PageResult[T]) {
	total := result.Total
	resp := SuccessResponse{
		Data:       result.Items,
		Total:      &total,
		PageNum:    result.PageCount,
		ActivePage: result.Page,
	}
	if result.Page > 1 {
		resp.PreviousLink = pageLink(r, result.Page-1)
	}
	if result.Page < result.PageCount {
		resp.NextLink = pageLink(r, result.Page+1)
	}
	writeJSON(w, http.StatusOK, resp)
}
