package models

// Circle types.
const (
	CircleTypeFriends    = "friends"
	CircleTypeFamily     = "family"
	CircleTypeRoommates  = "roommates"
	CircleTypeTravel     = "travel"
	CircleTypeProject    = "project"
	CircleTypeColleagues = "colleagues"
	CircleTypeCouple     = "couple"
)

// Member roles and statuses.
const (
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"

	MemberStatusActive = "active"
)

var circleTypes = map[string]bool{
	CircleTypeFriends:    true,
	CircleTypeFamily:     true,
	CircleTypeRoommates:  true,
	CircleTypeTravel:     true,
	CircleTypeProject:    true,
	CircleTypeColleagues: true,
	CircleTypeCouple:     true,
}

// ValidCircleType reports whether t is a known circle type.
func ValidCircleType(t string) bool {
	return circleTypes[t]
}

// ValidMemberRole reports whether r is a known member role.
func ValidMemberRole(r string) bool {
	return r == MemberRoleAdmin || r == MemberRoleMember
}

// Circle is a named group of users who share expenses.
type Circle struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`

	// Members is populated by GetCircle; list queries leave it empty.
	Members []CircleMember `json:"members,omitempty"`

	// MemberCount and MyRole are filled in for the user-scoped circle list.
	MemberCount int    `json:"member_count,omitempty"`
	MyRole      string `json:"my_role,omitempty"`
}

// CircleMember is the join row between a circle and a user.
type CircleMember struct {
	CircleID string      `json:"circle_id"`
	UserID   string      `json:"user_id"`
	Role     string      `json:"role"`
	Status   string      `json:"status"`
	JoinedAt int64       `json:"joined_at"`
	User     UserSummary `json:"user"`
}

// IsAdmin reports whether the member holds the admin role.
func (m CircleMember) IsAdmin() bool {
	return m.Role == MemberRoleAdmin
}
