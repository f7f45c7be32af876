package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/courses-api/internal/storage"
	"github.com/aanand-mishra/courses-api/internal/storage/sqlstore"
	"github.com/aanand-mishra/courses-api/internal/storage/sqlstore/sqlstoretest"
	"github.com/aanand-mishra/courses-api/internal/types"
	"github.com/aanand-mishra/courses-api/internal/utils/pagination"
)

var (
	admin    = types.User{StaffID: "A1", FullName: "Admin", Role: types.RoleAdmin}
	teacher  = types.User{StaffID: "T1", FullName: "Teacher One", Role: types.RoleTeacher}
	teacher2 = types.User{StaffID: "T2", FullName: "Teacher Two", Role: types.RoleTeacher}
	s1       = types.User{StaffID: "S1", FullName: "Student One", Role: types.RoleStudent}
	s2       = types.User{StaffID: "S2", FullName: "Student Two", Role: types.RoleStudent}
	s3       = types.User{StaffID: "S3", FullName: "Student Three", Role: types.RoleStudent}
)

var firstPage = pagination.Params{Page: 1, PageSize: 50}

// setup seeds users and three courses:
//
//	C1 taught by T1 on day 1, students S1 S2
//	C2 taught by T2 on day 2, student S2
//	C3 taught by T1 on day 2, no students
func setup(t *testing.T) (*CourseService, *sqlstore.Store) {
	t.Helper()
	store := sqlstoretest.Open(t)
	ctx := context.Background()
	for _, u := range []types.User{admin, teacher, teacher2, s1, s2, s3} {
		require.NoError(t, store.CreateUser(ctx, u))
	}
	for _, c := range []types.Course{
		{CourseID: "C1", CourseName: "Math", TeacherID: "T1", DayOfWeek: 1},
		{CourseID: "C2", CourseName: "History", TeacherID: "T2", DayOfWeek: 2},
		{CourseID: "C3", CourseName: "Physics", TeacherID: "T1", DayOfWeek: 2},
	} {
		require.NoError(t, store.CreateCourse(ctx, c))
	}
	require.NoError(t, store.Enroll(ctx, "C1", []string{"S1", "S2"}))
	require.NoError(t, store.Enroll(ctx, "C2", []string{"S2"}))
	return NewCourseService(store), store
}

func ids(courses []types.Course) []string {
	out := make([]string, 0, len(courses))
	for _, c := range courses {
		out = append(out, c.CourseID)
	}
	return out
}

func day(d int) *int { return &d }

func TestListIsScopedByRole(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  types.User
		params ListParams
		want   []string
	}{
		{"admin sees all", admin, ListParams{}, []string{"C1", "C2", "C3"}},
		{"admin by day", admin, ListParams{DayOfWeek: day(2)}, []string{"C2", "C3"}},
		{"admin by course", admin, ListParams{CourseID: "C2"}, []string{"C2"}},
		{"admin by teacher staff id", admin, ListParams{StaffID: "T1"}, []string{"C1", "C3"}},
		{"admin by student staff id", admin, ListParams{StaffID: "S2"}, []string{"C1", "C2"}},
		{"admin staff id keeps day filter", admin, ListParams{StaffID: "S2", DayOfWeek: day(2)}, []string{"C2"}},
		{"admin staff id of an admin", admin, ListParams{StaffID: "A1"}, []string{"C1", "C2", "C3"}},
		{"teacher sees own", teacher, ListParams{}, []string{"C1", "C3"}},
		{"teacher by day", teacher, ListParams{DayOfWeek: day(1)}, []string{"C1"}},
		{"teacher asking for another teacher", teacher, ListParams{TeacherID: "T2"}, []string{}},
		{"teacher staff id ignored", teacher, ListParams{StaffID: "S2"}, []string{"C1", "C3"}},
		{"student sees enrolled", s2, ListParams{}, []string{"C1", "C2"}},
		{"student by day", s2, ListParams{DayOfWeek: day(2)}, []string{"C2"}},
		{"student with no courses", s3, ListParams{}, []string{}},
		{"student course filter narrows only", s1, ListParams{CourseID: "C2"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.params.Page = firstPage
			courses, total, err := svc.List(ctx, tc.actor, tc.params)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(courses))
			assert.Equal(t, len(tc.want), total)
		})
	}
}

func TestListedCoursesAreViewable(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	for _, actor := range []types.User{admin, teacher, teacher2, s1, s2, s3} {
		courses, _, err := svc.List(ctx, actor, ListParams{Page: firstPage})
		require.NoError(t, err)
		for _, c := range courses {
			_, err := svc.Get(ctx, actor, c.CourseID)
			assert.NoError(t, err, "%s listed %s but cannot view it", actor.StaffID, c.CourseID)
		}
	}
}

func TestListErrors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, _, err := svc.List(ctx, admin, ListParams{DayOfWeek: day(7), Page: firstPage})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.List(ctx, admin, ListParams{StaffID: "nobody", Page: firstPage})
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	_, _, err = svc.List(ctx, types.User{StaffID: "X", Role: "Z"}, ListParams{Page: firstPage})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListPaginates(t *testing.T) {
	svc, _ := setup(t)
	courses, total, err := svc.List(context.Background(), admin, ListParams{Page: pagination.Params{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"C3"}, ids(courses))
}

func TestGetRespectsPolicy(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	course, err := svc.Get(ctx, s1, "C1")
	require.NoError(t, err)
	assert.Equal(t, 2, course.StudentCount)

	_, err = svc.Get(ctx, s1, "C2")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, teacher, "C2")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Get(ctx, admin, "C9")
	assert.ErrorIs(t, err, storage.ErrCourseNotFound)
}

func TestCreateCourse(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	course, err := svc.Create(ctx, admin, CourseInput{CourseID: "C4", CourseName: "Chemistry", TeacherID: "T2", DayOfWeek: day(5)})
	require.NoError(t, err)
	assert.Equal(t, "T2", course.TeacherID)
	assert.Equal(t, 0, course.StudentCount)

	_, err = svc.Create(ctx, admin, CourseInput{CourseID: "C4", CourseName: "Dup", DayOfWeek: day(0)})
	assert.ErrorIs(t, err, storage.ErrCourseExists)

	_, err = svc.Create(ctx, admin, CourseInput{CourseID: "C5", CourseName: "Bad teacher", TeacherID: "S1", DayOfWeek: day(0)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, admin, CourseInput{CourseID: "C6", DayOfWeek: day(9)})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)

	_, err = svc.Create(ctx, admin, CourseInput{CourseID: "C6", CourseName: "No day"})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "day_of_week", verrs[0].Field())
	assert.Equal(t, "required", verrs[0].Tag())

	for _, actor := range []types.User{teacher, s1} {
		_, err = svc.Create(ctx, actor, CourseInput{CourseID: "C7", CourseName: "Nope", DayOfWeek: day(1)})
		assert.ErrorIs(t, err, ErrForbidden)
	}
	_, err = store.GetCourse(ctx, "C7")
	assert.ErrorIs(t, err, storage.ErrCourseNotFound)
}

func TestNonAdminWritesNeverMutate(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	before, err := store.GetCourse(ctx, "C1")
	require.NoError(t, err)

	for _, actor := range []types.User{teacher, s1} {
		_, err := svc.Update(ctx, actor, "C1", CourseInput{CourseName: "Hacked", DayOfWeek: day(3)})
		assert.ErrorIs(t, err, ErrForbidden)
		name := "Hacked"
		_, err = svc.Patch(ctx, actor, "C1", CoursePatch{CourseName: &name})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.ErrorIs(t, svc.Delete(ctx, actor, "C1"), ErrForbidden)
		_, err = svc.RemoveFromRoster(ctx, actor, "C1", RosterRequest{StudentIDs: []string{"S1"}})
		assert.ErrorIs(t, err, ErrForbidden)
	}
	_, err = svc.ReplaceRoster(ctx, s1, "C1", RosterRequest{StudentIDs: []string{}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ReplaceRoster(ctx, teacher2, "C1", RosterRequest{StudentIDs: []string{}})
	assert.ErrorIs(t, err, ErrForbidden)

	after, err := store.GetCourse(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateAndPatch(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	course, err := svc.Update(ctx, admin, "C1", CourseInput{CourseID: "ignored", CourseName: "Algebra", TeacherID: "T2", DayOfWeek: day(4)})
	require.NoError(t, err)
	assert.Equal(t, types.Course{CourseID: "C1", CourseName: "Algebra", TeacherID: "T2", DayOfWeek: 4, StudentCount: 2}, course)

	name := "Geometry"
	course, err = svc.Patch(ctx, admin, "C1", CoursePatch{CourseName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Geometry", course.CourseName)
	assert.Equal(t, "T2", course.TeacherID)
	assert.Equal(t, 4, course.DayOfWeek)

	empty := ""
	course, err = svc.Patch(ctx, admin, "C1", CoursePatch{TeacherID: &empty, DayOfWeek: day(0)})
	require.NoError(t, err)
	assert.Equal(t, "", course.TeacherID)
	assert.Equal(t, 0, course.DayOfWeek)

	_, err = svc.Patch(ctx, admin, "C1", CoursePatch{DayOfWeek: day(8)})
	var verrs validator.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	_, err = svc.Update(ctx, admin, "C1", CourseInput{CourseName: "No day"})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "day_of_week", verrs[0].Field())
	course, err = svc.Get(ctx, admin, "C1")
	require.NoError(t, err)
	assert.Equal(t, 0, course.DayOfWeek)
	assert.Equal(t, "Geometry", course.CourseName)

	_, err = svc.Update(ctx, admin, "C9", CourseInput{CourseName: "x", DayOfWeek: day(0)})
	assert.ErrorIs(t, err, storage.ErrCourseNotFound)
}

func TestDeleteCourse(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, admin, "C1"))
	_, err := store.GetCourse(ctx, "C1")
	assert.ErrorIs(t, err, storage.ErrCourseNotFound)
	enrolled, err := store.EnrolledStudentIDs(ctx, "C1")
	require.NoError(t, err)
	assert.Empty(t, enrolled)

	assert.ErrorIs(t, svc.Delete(ctx, admin, "C1"), storage.ErrCourseNotFound)
}

func TestRosterRead(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	for _, actor := range []types.User{admin, teacher, s1} {
		entries, err := svc.Roster(ctx, actor, "C1")
		require.NoError(t, err, actor.StaffID)
		require.Len(t, entries, 2)
		assert.Equal(t, "S1", entries[0].StaffID)
		assert.Equal(t, "Student One", entries[0].FullName)
	}
	for _, actor := range []types.User{teacher2, s3} {
		_, err := svc.Roster(ctx, actor, "C1")
		assert.ErrorIs(t, err, ErrForbidden, actor.StaffID)
	}
	_, err := svc.Roster(ctx, admin, "C9")
	assert.ErrorIs(t, err, storage.ErrCourseNotFound)
}

func rosterOf(t *testing.T, store *sqlstore.Store, courseID string) ([]string, int) {
	t.Helper()
	ctx := context.Background()
	enrolled, err := store.EnrolledStudentIDs(ctx, courseID)
	require.NoError(t, err)
	course, err := store.GetCourse(ctx, courseID)
	require.NoError(t, err)
	return enrolled, course.StudentCount
}

func TestReplaceRosterExample(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	delta, err := svc.ReplaceRoster(ctx, admin, "C1", RosterRequest{StudentIDs: []string{"S2", "S3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"S3"}, delta.Add)
	assert.Equal(t, []string{"S1"}, delta.Remove)

	enrolled, count := rosterOf(t, store, "C1")
	assert.Equal(t, []string{"S2", "S3"}, enrolled)
	assert.Equal(t, 2, count)

	// Same request again changes nothing.
	delta, err = svc.ReplaceRoster(ctx, admin, "C1", RosterRequest{StudentIDs: []string{"S2", "S3"}})
	require.NoError(t, err)
	assert.True(t, delta.Empty())
	enrolled, count = rosterOf(t, store, "C1")
	assert.Equal(t, []string{"S2", "S3"}, enrolled)
	assert.Equal(t, 2, count)
}

func TestReplaceRosterDropsUnknownAndNonStudents(t *testing.T) {
	svc, store := setup(t)
	_, err := svc.ReplaceRoster(context.Background(), teacher, "C3", RosterRequest{StudentIDs: []string{"S1", "ghost", "T2", "A1"}})
	require.NoError(t, err)

	enrolled, count := rosterOf(t, store, "C3")
	assert.Equal(t, []string{"S1"}, enrolled)
	assert.Equal(t, 1, count)
}

func TestReplaceRosterValidatesBody(t *testing.T) {
	svc, _ := setup(t)
	var verrs validator.ValidationErrors

	_, err := svc.ReplaceRoster(context.Background(), admin, "C1", RosterRequest{})
	assert.ErrorAs(t, err, &verrs)
	_, err = svc.ReplaceRoster(context.Background(), admin, "C1", RosterRequest{StudentIDs: []string{""}})
	assert.ErrorAs(t, err, &verrs)
	_, err = svc.ReplaceRoster(context.Background(), admin, "C9", RosterRequest{StudentIDs: []string{}})
	assert.ErrorIs(t, err, storage.ErrCourseNotFound)
}

func TestRemoveFromRoster(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	delta, err := svc.RemoveFromRoster(ctx, admin, "C1", RosterRequest{StudentIDs: []string{"S1", "S3", "ghost"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, delta.Remove)

	enrolled, count := rosterOf(t, store, "C1")
	assert.Equal(t, []string{"S2"}, enrolled)
	assert.Equal(t, 1, count)

	// Removing someone who is not enrolled is a no-op.
	delta, err = svc.RemoveFromRoster(ctx, admin, "C1", RosterRequest{StudentIDs: []string{"S1"}})
	require.NoError(t, err)
	assert.True(t, delta.Empty())
	_, count = rosterOf(t, store, "C1")
	assert.Equal(t, 1, count)
}

func TestConcurrentRosterUpdatesKeepCountConsistent(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	var extra []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("X%02d", i)
		require.NoError(t, store.CreateUser(ctx, types.User{StaffID: id, Role: types.RoleStudent}))
		extra = append(extra, id)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := RosterRequest{StudentIDs: extra[i%5 : i%5+5]}
			if i%3 == 0 {
				_, err := svc.RemoveFromRoster(ctx, admin, "C1", req)
				assert.NoError(t, err)
				return
			}
			_, err := svc.ReplaceRoster(ctx, admin, "C1", req)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	enrolled, count := rosterOf(t, store, "C1")
	assert.Equal(t, len(enrolled), count)
}
