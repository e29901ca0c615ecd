package store

import "time"

// GORM models used for persistence.
type CartLineModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Title    string `gorm:"not null;index"`
	Quantity int    `gorm:"not null;default:1"`
}

func (CartLineModel) TableName() string {
	return "cart"
}

type UserModel struct {
	ID        string    `gorm:"primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null"`
	Password  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string {
	return "users"
}
