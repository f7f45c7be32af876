// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, the service layer, storage and access policies can all import
// types without depending on each other.
package types

// Role is the single-letter role code stored with every user.
//
// The codes are kept short because they are persisted as-is and also
// travel inside access tokens.
type Role string

const (
	RoleAdmin   Role = "A"
	RoleTeacher Role = "T"
	RoleStudent Role = "S"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// String returns a readable role name for logs.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	}
	return "unknown"
}

// User is anybody who can call the API.
//
// StaffID is the external identifier: it appears in tokens, in the
// staff_id list filter and in roster request bodies.
type User struct {
	StaffID     string `json:"staff_id"`
	FullName    string `json:"full_name"`
	Role        Role   `json:"role"`
	ClassID     string `json:"class_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Course is a weekly course taught by at most one teacher.
//
// Struct tags serve two purposes:
//
//  1. json:"..." : controls how the field appears when encoded to JSON.
//
//  2. validate:"...": rules checked by the go-playground/validator
//     package when a course is created.
//
// StudentCount is never written by clients: storage computes it from the
// enrollment rows every time a course is read.
type Course struct {
	CourseID     string `json:"course_id"   validate:"required,max=32"`
	CourseName   string `json:"course_name" validate:"required,max=255"`
	TeacherID    string `json:"teacher_id"  validate:"omitempty,max=32"`
	DayOfWeek    int    `json:"day_of_week" validate:"min=0,max=6"`
	StudentCount int    `json:"student_count"`
}

// RosterEntry is one line of a course roster as returned to clients.
type RosterEntry struct {
	StaffID     string `json:"staff_id"`
	FullName    string `json:"full_name"`
	ClassID     string `json:"class_id"`
	PhoneNumber string `json:"phone_number"`
}

// CourseFilter narrows a course listing. Zero values mean "no constraint".
type CourseFilter struct {
	CourseID       string
	TeacherID      string
	EnrolledUserID string
	DayOfWeek      *int
	Limit          int
	Offset         int
}
