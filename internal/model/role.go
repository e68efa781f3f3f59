package model

// Role is the set of roles a user can hold within an organization.
type Role string

const (
	RoleStudent           Role = "student"
	RoleNonEditingTeacher Role = "non_editing_teacher"
	RoleTeacher           Role = "teacher"
	RoleCourseCreator     Role = "course_creator"
	RoleManager           Role = "manager"
	RoleAdmin             Role = "admin"
)

// roleRank defines the total order between roles. Higher rank means more
// privilege. Used only for ownership-style comparisons (e.g. a manager may
// not modify an admin), never for endpoint allow-lists, which are exact
// set-membership checks.
var roleRank = map[Role]int{
	RoleStudent:           1,
	RoleNonEditingTeacher: 2,
	RoleTeacher:           3,
	RoleCourseCreator:     4,
	RoleManager:           5,
	RoleAdmin:             6,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r has privilege higher than or equal to other.
// Unknown roles rank below every known role.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

func (r Role) String() string {
	return string(r)
}
