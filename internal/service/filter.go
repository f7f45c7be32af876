package service

import (
	"context"
	"fmt"

	"github.com/aanand-mishra/courses-api/internal/storage"
	"github.com/aanand-mishra/courses-api/internal/types"
	"github.com/aanand-mishra/courses-api/internal/utils/pagination"
)

// ListParams are the optional narrowing parameters of a course listing.
type ListParams struct {
	CourseID  string
	TeacherID string
	StaffID   string
	DayOfWeek *int
	Page      pagination.Params
}

// BuildCourseFilter restricts a listing to what actor may see and then
// applies the requested narrowing. ok is false when the parameters
// contradict the role restriction, in which case nothing can match.
//
// Students see the courses they are enrolled in, teachers the courses
// they teach, admins everything. Only admins may use staff_id, which
// resolves to "taught by" for a teacher and "enrolled in" for a student.
func BuildCourseFilter(ctx context.Context, q storage.Queries, actor types.User, p ListParams) (filter types.CourseFilter, ok bool, err error) {
	if p.DayOfWeek != nil && (*p.DayOfWeek < 0 || *p.DayOfWeek > 6) {
		return filter, false, fmt.Errorf("%w: day_of_week must be between 0 and 6", ErrInvalidInput)
	}

	filter = types.CourseFilter{
		CourseID:  p.CourseID,
		TeacherID: p.TeacherID,
		DayOfWeek: p.DayOfWeek,
		Limit:     p.Page.Limit(),
		Offset:    p.Page.Offset(),
	}

	switch actor.Role {
	case types.RoleStudent:
		filter.EnrolledUserID = actor.StaffID
	case types.RoleTeacher:
		if !narrowTeacher(&filter, actor.StaffID) {
			return filter, false, nil
		}
	case types.RoleAdmin:
		if p.StaffID == "" {
			break
		}
		target, err := q.GetUser(ctx, p.StaffID)
		if err != nil {
			return filter, false, fmt.Errorf("resolve staff_id: %w", err)
		}
		switch target.Role {
		case types.RoleTeacher:
			if !narrowTeacher(&filter, target.StaffID) {
				return filter, false, nil
			}
		case types.RoleStudent:
			filter.EnrolledUserID = target.StaffID
		}
	default:
		return filter, false, fmt.Errorf("%w: unknown role", ErrForbidden)
	}
	return filter, true, nil
}

// narrowTeacher pins the filter to teacherID. It reports false when the
// filter already asks for a different teacher.
func narrowTeacher(filter *types.CourseFilter, teacherID string) bool {
	if filter.TeacherID != "" && filter.TeacherID != teacherID {
		return false
	}
	filter.TeacherID = teacherID
	return true
}
