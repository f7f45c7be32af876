// Package access decides whether a user may perform an action on a course.
//
// Every role has its own Policy. Callers never branch on the role
// themselves: they describe the action and its target and call Check.
package access

import "github.com/aanand-mishra/courses-api/internal/types"

// Action is an operation that needs authorization.
type Action int

const (
	ViewCourse Action = iota
	CreateCourse
	UpdateCourse
	DeleteCourse
	ViewRoster
	EditRoster
	RemoveFromRoster
)

func (a Action) String() string {
	switch a {
	case ViewCourse:
		return "view course"
	case CreateCourse:
		return "create course"
	case UpdateCourse:
		return "update course"
	case DeleteCourse:
		return "delete course"
	case ViewRoster:
		return "view roster"
	case EditRoster:
		return "edit roster"
	case RemoveFromRoster:
		return "remove from roster"
	}
	return "unknown action"
}

// Target is the resource an action applies to.
//
// Course is nil for CreateCourse. Enrolled tells whether the acting user
// has an enrollment in Course; it only matters to the student policy.
type Target struct {
	Course   *types.Course
	Enrolled bool
}

// Decision is the outcome of a check. Reason is set when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Policy holds the rules of one role.
type Policy interface {
	Decide(actor types.User, action Action, target Target) Decision
}

var policies = map[types.Role]Policy{
	types.RoleAdmin:   adminPolicy{},
	types.RoleTeacher: teacherPolicy{},
	types.RoleStudent: studentPolicy{},
}

// Check evaluates the policy registered for the actor's role.
// Users with an unknown role are always denied.
func Check(actor types.User, action Action, target Target) Decision {
	policy, ok := policies[actor.Role]
	if !ok {
		return deny("unknown role")
	}
	return policy.Decide(actor, action, target)
}

type adminPolicy struct{}

func (adminPolicy) Decide(types.User, Action, Target) Decision {
	return allow()
}

type teacherPolicy struct{}

func (teacherPolicy) Decide(actor types.User, action Action, target Target) Decision {
	switch action {
	case ViewCourse, ViewRoster, EditRoster:
		if target.Course == nil || target.Course.TeacherID != actor.StaffID {
			return deny("you do not teach this course")
		}
		return allow()
	}
	return deny("only administrators may " + action.String())
}

type studentPolicy struct{}

func (studentPolicy) Decide(_ types.User, action Action, target Target) Decision {
	switch action {
	case ViewCourse, ViewRoster:
		if target.Course == nil || !target.Enrolled {
			return deny("you are not enrolled in this course")
		}
		return allow()
	}
	return deny("only administrators may " + action.String())
}
