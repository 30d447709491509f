package models

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is created by the sign-in flow the first time an allow-listed email
// authenticates. Role is the only attribute that drives authorization.
type User struct {
	BaseModel
	Email       string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	DisplayName string  `json:"displayName" gorm:"type:varchar(255);not null;default:''"`
	AvatarURL   *string `json:"avatarURL,omitempty" gorm:"type:text"`
	Role        Role    `json:"role" gorm:"type:varchar(20);not null;default:'USER'"`

	Favorites []Favorite `json:"-" gorm:"foreignKey:UserID"`
	APITokens []APIToken `json:"-" gorm:"foreignKey:UserID"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
