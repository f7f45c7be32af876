// Package service holds the course operations behind the HTTP handlers.
//
// Each operation loads what it needs, asks the access package whether the
// actor may proceed, validates input and only then writes. Writes that
// span more than one statement run inside a single transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/access"
	"github.com/aanand-mishra/courses-api/internal/logger"
	"github.com/aanand-mishra/courses-api/internal/roster"
	"github.com/aanand-mishra/courses-api/internal/storage"
	"github.com/aanand-mishra/courses-api/internal/types"
)

var (
	// ErrForbidden is wrapped with the policy's reason.
	ErrForbidden = errors.New("you do not have this permission")

	ErrInvalidInput = errors.New("invalid input")
)

// CourseInput is the body of create and full-replace calls. Every field a
// full replace writes must be present; teacher_id may be left out to leave
// the course without a teacher.
type CourseInput struct {
	CourseID   string `json:"course_id"   validate:"required,max=32"`
	CourseName string `json:"course_name" validate:"required,max=255"`
	TeacherID  string `json:"teacher_id"  validate:"omitempty,max=32"`
	DayOfWeek  *int   `json:"day_of_week" validate:"required,min=0,max=6"`
}

func (in CourseInput) course() types.Course {
	course := types.Course{CourseID: in.CourseID, CourseName: in.CourseName, TeacherID: in.TeacherID}
	if in.DayOfWeek != nil {
		course.DayOfWeek = *in.DayOfWeek
	}
	return course
}

// CoursePatch lists the fields a partial update may change.
type CoursePatch struct {
	CourseName *string `json:"course_name" validate:"omitempty,min=1,max=255"`
	TeacherID  *string `json:"teacher_id"  validate:"omitempty,max=32"`
	DayOfWeek  *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
}

// RosterRequest is the body of roster replace and remove calls.
type RosterRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,dive,required,max=32"`
}

type CourseService struct {
	store    storage.Storage
	validate *validator.Validate
}

func NewCourseService(store storage.Storage) *CourseService {
	return &CourseService{store: store, validate: newValidator()}
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func authorize(actor types.User, action access.Action, target access.Target) error {
	decision := access.Check(actor, action, target)
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	return nil
}

// target loads the enrollment flag only when the policy needs it.
func target(ctx context.Context, q storage.Queries, actor types.User, course *types.Course) (access.Target, error) {
	t := access.Target{Course: course}
	if actor.Role != types.RoleStudent {
		return t, nil
	}
	enrolled, err := q.IsEnrolled(ctx, course.CourseID, actor.StaffID)
	if err != nil {
		return t, err
	}
	t.Enrolled = enrolled
	return t, nil
}

// checkTeacher makes sure a non-empty teacher id names a teacher.
func checkTeacher(ctx context.Context, q storage.Queries, teacherID string) error {
	if teacherID == "" {
		return nil
	}
	user, err := q.GetUser(ctx, teacherID)
	if errors.Is(err, storage.ErrUserNotFound) || (err == nil && user.Role != types.RoleTeacher) {
		return fmt.Errorf("%w: teacher_id %s is not a teacher", ErrInvalidInput, teacherID)
	}
	return err
}

// List returns the page of courses actor may see that match p.
func (s *CourseService) List(ctx context.Context, actor types.User, p ListParams) ([]types.Course, int, error) {
	filter, ok, err := BuildCourseFilter(ctx, s.store, actor, p)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return []types.Course{}, 0, nil
	}
	return s.store.ListCourses(ctx, filter)
}

func (s *CourseService) Create(ctx context.Context, actor types.User, in CourseInput) (types.Course, error) {
	if err := authorize(actor, access.CreateCourse, access.Target{}); err != nil {
		return types.Course{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return types.Course{}, err
	}
	course := in.course()
	if err := checkTeacher(ctx, s.store, course.TeacherID); err != nil {
		return types.Course{}, err
	}
	if err := s.store.CreateCourse(ctx, course); err != nil {
		return types.Course{}, err
	}

	logger.FromContext(ctx).Info("course created", zap.String("course_id", course.CourseID))
	return s.store.GetCourse(ctx, course.CourseID)
}

func (s *CourseService) Get(ctx context.Context, actor types.User, courseID string) (types.Course, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return types.Course{}, err
	}
	t, err := target(ctx, s.store, actor, &course)
	if err != nil {
		return types.Course{}, err
	}
	if err := authorize(actor, access.ViewCourse, t); err != nil {
		return types.Course{}, err
	}
	return course, nil
}

// Update replaces every mutable field of the course named by courseID.
// The course_id of in is ignored.
func (s *CourseService) Update(ctx context.Context, actor types.User, courseID string, in CourseInput) (types.Course, error) {
	in.CourseID = courseID
	return s.update(ctx, actor, courseID, func(types.Course) (types.Course, error) {
		if err := s.validate.Struct(in); err != nil {
			return types.Course{}, err
		}
		return in.course(), nil
	})
}

// Patch changes only the fields set in patch.
func (s *CourseService) Patch(ctx context.Context, actor types.User, courseID string, patch CoursePatch) (types.Course, error) {
	return s.update(ctx, actor, courseID, func(current types.Course) (types.Course, error) {
		if err := s.validate.Struct(patch); err != nil {
			return types.Course{}, err
		}
		if patch.CourseName != nil {
			current.CourseName = *patch.CourseName
		}
		if patch.TeacherID != nil {
			current.TeacherID = *patch.TeacherID
		}
		if patch.DayOfWeek != nil {
			current.DayOfWeek = *patch.DayOfWeek
		}
		return current, nil
	})
}

func (s *CourseService) update(ctx context.Context, actor types.User, courseID string, apply func(types.Course) (types.Course, error)) (types.Course, error) {
	var updated types.Course
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		current, err := q.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if err := authorize(actor, access.UpdateCourse, access.Target{Course: &current}); err != nil {
			return err
		}
		next, err := apply(current)
		if err != nil {
			return err
		}
		if err := s.validate.Struct(next); err != nil {
			return err
		}
		if err := checkTeacher(ctx, q, next.TeacherID); err != nil {
			return err
		}
		if err := q.UpdateCourse(ctx, next); err != nil {
			return err
		}
		updated, err = q.GetCourse(ctx, courseID)
		return err
	})
	if err != nil {
		return types.Course{}, err
	}

	logger.FromContext(ctx).Info("course updated", zap.String("course_id", courseID))
	return updated, nil
}

// Delete removes the course and its enrollments.
func (s *CourseService) Delete(ctx context.Context, actor types.User, courseID string) error {
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		course, err := q.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if err := authorize(actor, access.DeleteCourse, access.Target{Course: &course}); err != nil {
			return err
		}
		return q.DeleteCourse(ctx, courseID)
	})
	if err != nil {
		return err
	}

	logger.FromContext(ctx).Info("course deleted", zap.String("course_id", courseID))
	return nil
}

// Roster lists the students of a course.
func (s *CourseService) Roster(ctx context.Context, actor types.User, courseID string) ([]types.RosterEntry, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	t, err := target(ctx, s.store, actor, &course)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, access.ViewRoster, t); err != nil {
		return nil, err
	}
	return s.store.Roster(ctx, courseID)
}

// ReplaceRoster makes the roster equal to the known students in req.
// Ids that do not name a student are dropped without error.
func (s *CourseService) ReplaceRoster(ctx context.Context, actor types.User, courseID string, req RosterRequest) (roster.Delta, error) {
	return s.modifyRoster(ctx, actor, courseID, req, access.EditRoster,
		func(ctx context.Context, q storage.Queries, current []string) (roster.Delta, error) {
			known, err := q.FilterStudents(ctx, req.StudentIDs)
			if err != nil {
				return roster.Delta{}, err
			}
			return roster.Replace(current, known), nil
		})
}

// RemoveFromRoster drops the listed students. Ids that are not enrolled
// are ignored.
func (s *CourseService) RemoveFromRoster(ctx context.Context, actor types.User, courseID string, req RosterRequest) (roster.Delta, error) {
	return s.modifyRoster(ctx, actor, courseID, req, access.RemoveFromRoster,
		func(_ context.Context, _ storage.Queries, current []string) (roster.Delta, error) {
			return roster.Remove(current, req.StudentIDs), nil
		})
}

type planFunc func(ctx context.Context, q storage.Queries, current []string) (roster.Delta, error)

func (s *CourseService) modifyRoster(ctx context.Context, actor types.User, courseID string, req RosterRequest, action access.Action, plan planFunc) (roster.Delta, error) {
	var delta roster.Delta
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		course, err := q.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		t, err := target(ctx, q, actor, &course)
		if err != nil {
			return err
		}
		if err := authorize(actor, action, t); err != nil {
			return err
		}
		if err := s.validate.Struct(req); err != nil {
			return err
		}

		current, err := q.EnrolledStudentIDs(ctx, courseID)
		if err != nil {
			return err
		}
		delta, err = plan(ctx, q, current)
		if err != nil {
			return err
		}
		if err := q.Unenroll(ctx, courseID, delta.Remove); err != nil {
			return err
		}
		return q.Enroll(ctx, courseID, delta.Add)
	})
	if err != nil {
		return roster.Delta{}, err
	}

	logger.FromContext(ctx).Info("roster updated",
		zap.String("course_id", courseID),
		zap.Strings("added", delta.Add),
		zap.Strings("removed", delta.Remove),
	)
	return delta, nil
}
