// Package storage defines the Storage interface: a contract that any
// database backend must satisfy to work with this application.
//
// Handlers and the service layer depend only on this interface, so tests
// and alternative backends plug in without touching them.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/courses-api/internal/types"
)

// Sentinel errors returned (possibly wrapped) by every implementation.
// Callers inspect them with errors.Is.
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrCourseExists   = errors.New("course already exists")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
)

// Queries is the set of operations available both outside and inside a
// transaction.
type Queries interface {
	// CreateUser inserts a user. Returns ErrUserExists on a duplicate staff id.
	CreateUser(ctx context.Context, user types.User) error

	// GetUser fetches a user by staff id or returns ErrUserNotFound.
	GetUser(ctx context.Context, staffID string) (types.User, error)

	// FilterStudents returns the subset of ids that belong to existing
	// users with the student role.
	FilterStudents(ctx context.Context, staffIDs []string) ([]string, error)

	// CreateCourse inserts a course. Returns ErrCourseExists on a duplicate id.
	CreateCourse(ctx context.Context, course types.Course) error

	// GetCourse fetches one course with its derived student count, or
	// returns ErrCourseNotFound.
	GetCourse(ctx context.Context, courseID string) (types.Course, error)

	// ListCourses returns the page of courses matching filter ordered by
	// course id, plus the total number of matches.
	ListCourses(ctx context.Context, filter types.CourseFilter) ([]types.Course, int, error)

	// UpdateCourse replaces the mutable fields of a course.
	UpdateCourse(ctx context.Context, course types.Course) error

	// DeleteCourse removes a course and all of its enrollments.
	DeleteCourse(ctx context.Context, courseID string) error

	// IsEnrolled reports whether the user has an enrollment in the course.
	IsEnrolled(ctx context.Context, courseID, staffID string) (bool, error)

	// EnrolledStudentIDs returns the staff ids enrolled in a course.
	EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)

	// Roster returns the enrolled users of a course ordered by staff id.
	Roster(ctx context.Context, courseID string) ([]types.RosterEntry, error)

	// Enroll adds enrollments; existing pairs are left untouched.
	Enroll(ctx context.Context, courseID string, staffIDs []string) error

	// Unenroll deletes enrollments; missing pairs are ignored.
	Unenroll(ctx context.Context, courseID string, staffIDs []string) error
}

// Storage is the database contract.
type Storage interface {
	Queries

	// WithTx runs fn inside one transaction. The transaction is committed
	// when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error

	Close() error
}
