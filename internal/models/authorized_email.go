package models

// AuthorizedEmail is an allow-list entry: only listed emails may sign in.
type AuthorizedEmail struct {
	BaseModel
	Email string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
}

func (AuthorizedEmail) TableName() string {
	return "authorized_emails"
}
