// Package course contains all HTTP handlers related to the Course resource
// and its roster.
//
// HANDLER PATTERN - THE CLOSURE / FACTORY PATTERN:
// ─────────────────────────────────────────────────
// The router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// To inject dependencies every handler here is a factory that accepts the
// Service once at startup and returns the actual handler:
//
//	r.Get("/courses/{course_id}", course.Get(svc))
//
// Handlers only translate HTTP to service calls and service errors back
// to HTTP. Authorization and validation live in the service.
package course

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/http/middleware"
	"github.com/aanand-mishra/courses-api/internal/logger"
	"github.com/aanand-mishra/courses-api/internal/roster"
	"github.com/aanand-mishra/courses-api/internal/service"
	"github.com/aanand-mishra/courses-api/internal/storage"
	"github.com/aanand-mishra/courses-api/internal/types"
	"github.com/aanand-mishra/courses-api/internal/utils/pagination"
	"github.com/aanand-mishra/courses-api/internal/utils/response"
)

// Service is what the handlers need from the service layer.
type Service interface {
	List(ctx context.Context, actor types.User, p service.ListParams) ([]types.Course, int, error)
	Create(ctx context.Context, actor types.User, in service.CourseInput) (types.Course, error)
	Get(ctx context.Context, actor types.User, courseID string) (types.Course, error)
	Update(ctx context.Context, actor types.User, courseID string, in service.CourseInput) (types.Course, error)
	Patch(ctx context.Context, actor types.User, courseID string, patch service.CoursePatch) (types.Course, error)
	Delete(ctx context.Context, actor types.User, courseID string) error
	Roster(ctx context.Context, actor types.User, courseID string) ([]types.RosterEntry, error)
	ReplaceRoster(ctx context.Context, actor types.User, courseID string, req service.RosterRequest) (roster.Delta, error)
	RemoveFromRoster(ctx context.Context, actor types.User, courseID string, req service.RosterRequest) (roster.Delta, error)
}

// PageSizes bounds the page_size query parameter.
type PageSizes struct {
	Default int
	Max     int
}

// ─────────────────────────────────────────────────────────────────────────────
// List handles GET /courses
//
// Query parameters (all optional): course_id, teacher_id, staff_id,
// day_of_week, page, page_size.
//
// Success response (200 OK):
//
//	{ "count": 2, "page": 1, "page_size": 20, "results": [ {...}, {...} ] }
//
// ─────────────────────────────────────────────────────────────────────────────
func List(svc Service, sizes PageSizes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}

		query := r.URL.Query()
		page, err := pagination.Parse(query, sizes.Default, sizes.Max)
		if err != nil {
			_ = response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		params := service.ListParams{
			CourseID:  query.Get("course_id"),
			TeacherID: query.Get("teacher_id"),
			StaffID:   query.Get("staff_id"),
			Page:      page,
		}
		if raw := query.Get("day_of_week"); raw != "" {
			day, err := strconv.Atoi(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "day_of_week must be an integer")
				return
			}
			params.DayOfWeek = &day
		}

		courses, total, err := svc.List(r.Context(), actor, params)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, pagination.NewPage(page, total, courses))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Create handles POST /courses (Admin only)
//
// Request body (JSON):
//
//	{ "course_id": "MATH101", "course_name": "Math", "teacher_id": "T1", "day_of_week": 0 }
//
// Success response (201 Created): the stored course.
// ─────────────────────────────────────────────────────────────────────────────
func Create(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		var in service.CourseInput
		if !decodeBody(w, r, &in) {
			return
		}

		created, err := svc.Create(r.Context(), actor, in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = response.WriteJSON(w, http.StatusCreated, created)
	}
}

// Get handles GET /courses/{course_id}
func Get(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		course, err := svc.Get(r.Context(), actor, chi.URLParam(r, "course_id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, course)
	}
}

// Update handles PUT /courses/{course_id} (Admin only). Every field is
// replaced, so course_name and day_of_week are required; course_id in the
// body is ignored.
func Update(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		var in service.CourseInput
		if !decodeBody(w, r, &in) {
			return
		}
		updated, err := svc.Update(r.Context(), actor, chi.URLParam(r, "course_id"), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, updated)
	}
}

// Patch handles PATCH /courses/{course_id} (Admin only).
func Patch(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		var patch service.CoursePatch
		if !decodeBody(w, r, &patch) {
			return
		}
		updated, err := svc.Patch(r.Context(), actor, chi.URLParam(r, "course_id"), patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, updated)
	}
}

// Delete handles DELETE /courses/{course_id} (Admin only).
func Delete(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), actor, chi.URLParam(r, "course_id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Roster handles GET /courses/{course_id}/students
//
// Success response (200 OK):
//
//	[ { "staff_id": "S1", "full_name": "...", "class_id": "10A", "phone_number": "..." } ]
//
// ─────────────────────────────────────────────────────────────────────────────
func Roster(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		entries, err := svc.Roster(r.Context(), actor, chi.URLParam(r, "course_id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		_ = response.WriteJSON(w, http.StatusOK, entries)
	}
}

// ReplaceRoster handles PUT /courses/{course_id}/students with body
// { "student_ids": [...] }. The roster becomes exactly the listed students.
func ReplaceRoster(svc Service) http.HandlerFunc {
	return rosterChange(svc.ReplaceRoster)
}

// RemoveFromRoster handles DELETE /courses/{course_id}/students with body
// { "student_ids": [...] }.
func RemoveFromRoster(svc Service) http.HandlerFunc {
	return rosterChange(svc.RemoveFromRoster)
}

type rosterFunc func(ctx context.Context, actor types.User, courseID string, req service.RosterRequest) (roster.Delta, error)

func rosterChange(apply rosterFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorOrReject(w, r)
		if !ok {
			return
		}
		var req service.RosterRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := apply(r.Context(), actor, chi.URLParam(r, "course_id"), req); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func actorOrReject(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	actor, ok := middleware.CurrentUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Please login.")
	}
	return actor, ok
}

// maxBodyBytes caps request bodies. A roster of 32-byte ids fits tens of
// thousands of entries.
const maxBodyBytes = 1 << 20

// decodeBody reads exactly one JSON value into dst and answers 400 (or 413
// for an oversized body) on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON value")
	}

	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return true
	case errors.As(err, &tooLarge):
		response.Error(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, io.EOF):
		response.Error(w, http.StatusBadRequest, "request body is empty")
	default:
		response.Error(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
	}
	return false
}

// writeServiceError maps service and storage errors to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		_ = response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
	case errors.Is(err, service.ErrInvalidInput):
		_ = response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
	case errors.Is(err, storage.ErrCourseExists):
		response.Error(w, http.StatusBadRequest, storage.ErrCourseExists.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrCourseNotFound):
		response.Error(w, http.StatusNotFound, "course not found")
	case errors.Is(err, storage.ErrUserNotFound):
		response.Error(w, http.StatusNotFound, "user not found")
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
