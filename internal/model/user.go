package model

type UserRole string

const (
	Candidate UserRole = "candidate"
	Admin     UserRole = "admin"
)

// User is a candidate taking assessments or an administrator reviewing
// them. Candidate records are created by the registration system; this
// service only resolves and reads them.
// swagger:model User
type User struct {
	BaseModel
	FirstName   string   `gorm:"size:100;not null" json:"firstName"`
	LastName    string   `gorm:"size:100;not null" json:"lastName"`
	Email       string   `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Nationality string   `gorm:"size:100" json:"nationality"`
	Division    Division `gorm:"size:20;index" json:"division"`
	Department  string   `gorm:"size:100" json:"department"`
	Role        UserRole `gorm:"size:20;default:'candidate'" json:"role"`
	Password    string   `gorm:"size:255" json:"-"` // bcrypt hash, admins only
	IsActive    bool     `gorm:"default:true" json:"isActive"`
}

func (User) TableName() string {
	return "users"
}
