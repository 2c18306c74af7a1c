package models

import (
	"time"

	"gorm.io/datatypes"
)

type MsgType string

const (
	MsgText  MsgType = "text"
	MsgImage MsgType = "image"
	MsgVideo MsgType = "video"
	MsgAudio MsgType = "audio"
	MsgFile  MsgType = "file"
)

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

// Reaction 表情回应
type Reaction struct {
	UserID    uint      `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageSnapshot is a copy of another message taken when replying or
// forwarding. It is not kept in sync with the original.
type MessageSnapshot struct {
	MessageID int64   `json:"message_id,string"`
	SenderID  uint    `json:"sender_id"`
	Content   string  `json:"content"`
	MsgType   MsgType `json:"msg_type"`
	MediaURL  string  `json:"media_url,omitempty"`
}

// Message 消息模型. Exactly one of RecipientID and GroupID is set.
type Message struct {
	ID            int64                                `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	SenderID      uint                                 `gorm:"not null;index" json:"sender_id"`
	RecipientID   *uint                                `gorm:"index" json:"recipient_id,omitempty"`
	GroupID       *uint                                `gorm:"index" json:"group_id,omitempty"`
	Content       string                               `gorm:"type:text" json:"content"`
	MsgType       MsgType                              `gorm:"type:varchar(10);default:text" json:"msg_type"`
	MediaURL      string                               `json:"media_url,omitempty"`
	IsDeleted     bool                                 `gorm:"not null;default:false" json:"is_deleted"`
	Reactions     datatypes.JSONSlice[Reaction]        `json:"reactions"`
	ReplyTo       *datatypes.JSONType[MessageSnapshot] `json:"reply_to,omitempty"`
	ForwardedFrom *datatypes.JSONType[MessageSnapshot] `json:"forwarded_from,omitempty"`
	Status        DeliveryStatus                       `gorm:"type:varchar(10);default:sent" json:"status"`
	DeliveredAt   *time.Time                           `json:"delivered_at,omitempty"`
	ReadAt        *time.Time                           `json:"read_at,omitempty"`
	CreatedAt     time.Time                            `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time                            `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageReceipt is the delivery sub-record of a group message for one member.
type MessageReceipt struct {
	MessageID   int64      `gorm:"primaryKey;autoIncrement:false" json:"message_id,string"`
	UserID      uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

func (MessageReceipt) TableName() string {
	return "message_receipts"
}
