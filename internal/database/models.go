package database

import "time"

type User struct {
	Id        string
	GithubId  string
	Login     string
	AvatarUrl string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	Id           string
	Type         string
	ContextUrl   string
	CreatedAt    time.Time
	Participants []User
}

type Message struct {
	Id        string
	RoomId    string
	SenderId  string
	Body      string
	CreatedAt time.Time
}

// RoomSummary is a room row joined with its most recent message,
// used for the room-list preview.
type RoomSummary struct {
	Room
	LastMessage *Message
}

type CreateAccountParams struct {
	GithubId  string
	Login     string
	AvatarUrl string
}
