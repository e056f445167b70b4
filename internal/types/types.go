package types

import (
	"time"
)

const (
	RoomTypeDM     = "DM"
	RoomTypeThread = "THREAD"
)

type User struct {
	Id        string    `json:"id"`
	Login     string    `json:"login"`
	AvatarUrl string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id           string    `json:"id"`
	Type         string    `json:"type"`
	ContextUrl   string    `json:"context_url,omitempty"`
	Participants []User    `json:"participants"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	SenderId  string    `json:"sender_id"`
	Sender    User      `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
