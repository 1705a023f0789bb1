package user

import "time"

// User is an identity row. PageAccess holds a JSON array of access keys; NULL
// means the identity has no pages granted.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:64"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	Name         string    `gorm:"column:name;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	Department   string    `gorm:"column:department"`
	Role         string    `gorm:"column:role;not null"`
	AvatarURL    *string   `gorm:"column:avatar_url"`
	PageAccess   *string   `gorm:"column:page_access"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
