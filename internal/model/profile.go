package model

import "time"

// Profile 保存一组可复用的连接参数（主机、房间、token）。
type Profile struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	Host      string    `gorm:"type:varchar(255);not null" json:"host"`
	Port      uint16    `gorm:"not null" json:"port"`
	UID       uint64    `gorm:"column:uid" json:"uid"`
	RoomID    uint32    `gorm:"column:room_id;not null" json:"room"`
	Token     string    `gorm:"type:text" json:"token"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Profile) TableName() string {
	return "connection_profile"
}
