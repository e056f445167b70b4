package server

import (
	"net/http"
	"time"

	"github.com/gittalk/gittalk/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	client  *Client
}

func (cm *ClientMessage) GetUserId() string {
	if cm.client != nil {
		return cm.client.user.Id
	}

	return ""
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Publish struct {
	RoomId string `json:"room_id"`
	Body   string `json:"body"`
}

type ServerMessage struct {
	BaseMessage
	Joined     *RoomJoined    `json:"joined,omitempty"`
	Left       *RoomLeft      `json:"left,omitempty"`
	Message    *types.Message `json:"message,omitempty"`
	Error      *ErrorEvent    `json:"error,omitempty"`
	SkipClient *Client        `json:"-"`
}

// RoomJoined acknowledges a join and carries the room plus its full message
// history, so the client never races a broadcast against a separate history
// fetch.
type RoomJoined struct {
	Room     types.Room      `json:"room"`
	Messages []types.Message `json:"messages"`
}

type RoomLeft struct {
	RoomId string `json:"room_id"`
}

type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func RoomJoinedMsg(id int, room types.Room, messages []types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Joined: &RoomJoined{
			Room:     room,
			Messages: messages,
		},
	}
}

func RoomLeftMsg(id int, roomId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Left: &RoomLeft{RoomId: roomId},
	}
}

func MessageCreated(msg *types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Message: msg,
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errMsg(id, http.StatusNotFound, "room not found")
}

func ErrAccessDenied(id int) *ServerMessage {
	return errMsg(id, http.StatusForbidden, "access denied to room")
}

func ErrInternalError(id int) *ServerMessage {
	return errMsg(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errMsg(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errMsg(id, http.StatusBadRequest, "invalid message format")
}

func errMsg(id, code int, message string) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Error: &ErrorEvent{
			Code:    code,
			Message: message,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
