package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/aanand-mishra/courses-api/internal/storage"
	"github.com/aanand-mishra/courses-api/internal/types"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries implements storage.Queries against a dbtx.
type Queries struct {
	db dbtx
	ph sq.PlaceholderFormat
	sb sq.StatementBuilderType
}

var _ storage.Queries = (*Queries)(nil)

func newQueries(db dbtx, ph sq.PlaceholderFormat) *Queries {
	return &Queries{db: db, ph: ph, sb: sq.StatementBuilder.PlaceholderFormat(ph)}
}

func (q *Queries) withTx(tx *sql.Tx) *Queries {
	return newQueries(tx, q.ph)
}

// rebind converts a "?" query to the driver's placeholder style.
func (q *Queries) rebind(query string) string {
	out, err := q.ph.ReplacePlaceholders(query)
	if err != nil {
		return query
	}
	return out
}

// courseColumns selects a course together with its derived student count.
const courseColumns = `c.course_id, c.course_name, COALESCE(c.teacher_id, ''), c.day_of_week,
	(SELECT COUNT(*) FROM user_courses e WHERE e.course_id = c.course_id)`

func scanCourse(row interface{ Scan(dest ...any) error }) (types.Course, error) {
	var course types.Course
	err := row.Scan(
		&course.CourseID,
		&course.CourseName,
		&course.TeacherID,
		&course.DayOfWeek,
		&course.StudentCount,
	)
	return course, err
}

// nullable stores empty strings as NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (q *Queries) CreateUser(ctx context.Context, user types.User) error {
	_, err := q.db.ExecContext(ctx, q.rebind(
		"INSERT INTO users (staff_id, full_name, role, class_id, phone_number) VALUES (?, ?, ?, ?, ?)"),
		user.StaffID, user.FullName, string(user.Role), user.ClassID, user.PhoneNumber,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateUser %s: %w", user.StaffID, storage.ErrUserExists)
		}
		return fmt.Errorf("CreateUser: exec: %w", err)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, staffID string) (types.User, error) {
	var (
		user types.User
		role string
	)
	err := q.db.QueryRowContext(ctx, q.rebind(
		"SELECT staff_id, full_name, role, class_id, phone_number FROM users WHERE staff_id = ?"),
		staffID,
	).Scan(&user.StaffID, &user.FullName, &role, &user.ClassID, &user.PhoneNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, fmt.Errorf("GetUser %s: %w", staffID, storage.ErrUserNotFound)
		}
		return types.User{}, fmt.Errorf("GetUser: scan: %w", err)
	}
	user.Role = types.Role(role)
	return user, nil
}

func (q *Queries) FilterStudents(ctx context.Context, staffIDs []string) ([]string, error) {
	if len(staffIDs) == 0 {
		return []string{}, nil
	}
	query, args, err := q.sb.Select("staff_id").From("users").
		Where(sq.Eq{"staff_id": staffIDs, "role": string(types.RoleStudent)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("FilterStudents: build: %w", err)
	}
	return q.queryStrings(ctx, "FilterStudents", query, args...)
}

func (q *Queries) CreateCourse(ctx context.Context, course types.Course) error {
	_, err := q.db.ExecContext(ctx, q.rebind(
		"INSERT INTO courses (course_id, course_name, teacher_id, day_of_week) VALUES (?, ?, ?, ?)"),
		course.CourseID, course.CourseName, nullable(course.TeacherID), course.DayOfWeek,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateCourse %s: %w", course.CourseID, storage.ErrCourseExists)
		}
		return fmt.Errorf("CreateCourse: exec: %w", err)
	}
	return nil
}

func (q *Queries) GetCourse(ctx context.Context, courseID string) (types.Course, error) {
	course, err := scanCourse(q.db.QueryRowContext(ctx, q.rebind(
		"SELECT "+courseColumns+" FROM courses c WHERE c.course_id = ?"),
		courseID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Course{}, fmt.Errorf("GetCourse %s: %w", courseID, storage.ErrCourseNotFound)
		}
		return types.Course{}, fmt.Errorf("GetCourse: scan: %w", err)
	}
	return course, nil
}

func (q *Queries) ListCourses(ctx context.Context, filter types.CourseFilter) ([]types.Course, int, error) {
	var where sq.And
	if filter.CourseID != "" {
		where = append(where, sq.Eq{"c.course_id": filter.CourseID})
	}
	if filter.TeacherID != "" {
		where = append(where, sq.Eq{"c.teacher_id": filter.TeacherID})
	}
	if filter.EnrolledUserID != "" {
		where = append(where, sq.Expr(
			"EXISTS (SELECT 1 FROM user_courses u WHERE u.course_id = c.course_id AND u.user_id = ?)",
			filter.EnrolledUserID,
		))
	}
	if filter.DayOfWeek != nil {
		where = append(where, sq.Eq{"c.day_of_week": *filter.DayOfWeek})
	}

	countQuery := q.sb.Select("COUNT(*)").From("courses c")
	listQuery := q.sb.Select(courseColumns).From("courses c").OrderBy("c.course_id")
	if len(where) > 0 {
		countQuery = countQuery.Where(where)
		listQuery = listQuery.Where(where)
	}
	if filter.Limit > 0 {
		listQuery = listQuery.Limit(uint64(filter.Limit)).Offset(uint64(filter.Offset))
	}

	query, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ListCourses: build count: %w", err)
	}
	var total int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListCourses: count: %w", err)
	}

	query, args, err = listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ListCourses: build list: %w", err)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListCourses: query: %w", err)
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListCourses: scan row: %w", err)
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListCourses: rows iteration: %w", err)
	}
	return courses, total, nil
}

func (q *Queries) UpdateCourse(ctx context.Context, course types.Course) error {
	result, err := q.db.ExecContext(ctx, q.rebind(
		"UPDATE courses SET course_name = ?, teacher_id = ?, day_of_week = ? WHERE course_id = ?"),
		course.CourseName, nullable(course.TeacherID), course.DayOfWeek, course.CourseID,
	)
	if err != nil {
		return fmt.Errorf("UpdateCourse: exec: %w", err)
	}
	return expectRow(result, "UpdateCourse", course.CourseID)
}

func (q *Queries) DeleteCourse(ctx context.Context, courseID string) error {
	if _, err := q.db.ExecContext(ctx, q.rebind(
		"DELETE FROM user_courses WHERE course_id = ?"), courseID); err != nil {
		return fmt.Errorf("DeleteCourse: delete enrollments: %w", err)
	}
	result, err := q.db.ExecContext(ctx, q.rebind(
		"DELETE FROM courses WHERE course_id = ?"), courseID)
	if err != nil {
		return fmt.Errorf("DeleteCourse: exec: %w", err)
	}
	return expectRow(result, "DeleteCourse", courseID)
}

func expectRow(result sql.Result, op, courseID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, courseID, storage.ErrCourseNotFound)
	}
	return nil
}

func (q *Queries) IsEnrolled(ctx context.Context, courseID, staffID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, q.rebind(
		"SELECT COUNT(*) FROM user_courses WHERE course_id = ? AND user_id = ?"),
		courseID, staffID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("IsEnrolled: scan: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	return q.queryStrings(ctx, "EnrolledStudentIDs", q.rebind(
		"SELECT user_id FROM user_courses WHERE course_id = ? ORDER BY user_id"), courseID)
}

func (q *Queries) Roster(ctx context.Context, courseID string) ([]types.RosterEntry, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT u.staff_id, u.full_name, u.class_id, u.phone_number
		FROM user_courses e
		JOIN users u ON u.staff_id = e.user_id
		WHERE e.course_id = ?
		ORDER BY u.staff_id`), courseID)
	if err != nil {
		return nil, fmt.Errorf("Roster: query: %w", err)
	}
	defer rows.Close()

	entries := make([]types.RosterEntry, 0)
	for rows.Next() {
		var entry types.RosterEntry
		if err := rows.Scan(&entry.StaffID, &entry.FullName, &entry.ClassID, &entry.PhoneNumber); err != nil {
			return nil, fmt.Errorf("Roster: scan row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Roster: rows iteration: %w", err)
	}
	return entries, nil
}

func (q *Queries) Enroll(ctx context.Context, courseID string, staffIDs []string) error {
	if len(staffIDs) == 0 {
		return nil
	}
	insert := q.sb.Insert("user_courses").Columns("user_id", "course_id")
	for _, id := range staffIDs {
		insert = insert.Values(id, courseID)
	}
	query, args, err := insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("Enroll: build: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Enroll: exec: %w", err)
	}
	return nil
}

func (q *Queries) Unenroll(ctx context.Context, courseID string, staffIDs []string) error {
	if len(staffIDs) == 0 {
		return nil
	}
	query, args, err := q.sb.Delete("user_courses").
		Where(sq.Eq{"course_id": courseID, "user_id": staffIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("Unenroll: build: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("Unenroll: exec: %w", err)
	}
	return nil
}

func (q *Queries) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration: %w", op, err)
	}
	return values, nil
}
