package rooms

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/gittalk/gittalk/internal/database"
	"github.com/gittalk/gittalk/internal/types"
)

// RoomService enforces the room dedup and membership rules on top of the
// repository. Both the HTTP handlers and the chat server go through it, so
// synchronous requests and sockets observe one consistent set of rules.
type RoomService struct {
	log *log.Logger
	db  database.GitTalkRepository
}

func NewRoomService(logger *log.Logger, db database.GitTalkRepository) *RoomService {
	return &RoomService{
		log: logger,
		db:  db,
	}
}

// ResolveDM returns the DM room between the requester and the target login,
// creating it if it does not exist. Repeated calls for the same pair always
// return the same room.
func (s *RoomService) ResolveDM(requesterId, targetLogin string) (*types.Room, error) {
	requester, err := s.db.GetAccountById(requesterId)
	if err != nil {
		return nil, fmt.Errorf("get requester: %w", err)
	}

	// self is identified by login, not id
	if requester.Login == targetLogin {
		return nil, ErrSelfDM
	}

	target, err := s.db.GetAccountByLogin(targetLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get target: %w", err)
	}

	dm, err := s.db.GetDMRoom(requester.Id, target.Id)
	if err == nil {
		return s.hydrateRoom(dm.Id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find existing DM: %w", err)
	}

	newRoom, err := s.db.CreateDMRoom(requester.Id, target.Id)
	if err != nil {
		return nil, fmt.Errorf("create DM room: %w", err)
	}
	s.log.Printf("created DM room %q for %q and %q", newRoom.Id, requester.Login, target.Login)

	return s.hydrateRoom(newRoom.Id)
}

// ResolveThread returns the thread room for contextUrl, creating it with the
// requester as sole participant if it does not exist. Any authenticated user
// who names the url becomes a member.
func (s *RoomService) ResolveThread(contextUrl, requesterId string) (*types.Room, error) {
	thread, err := s.db.GetThreadRoomByContextUrl(contextUrl)
	if err == nil {
		if err := s.db.AddParticipant(thread.Id, requesterId); err != nil {
			return nil, fmt.Errorf("add participant: %w", err)
		}
		return s.hydrateRoom(thread.Id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find thread: %w", err)
	}

	newRoom, err := s.db.CreateThreadRoom(contextUrl, requesterId)
	if err != nil {
		return nil, fmt.Errorf("create thread room: %w", err)
	}
	s.log.Printf("created thread room %q for %q", newRoom.Id, contextUrl)

	return s.hydrateRoom(newRoom.Id)
}

// AuthorizeRoomAccess is the single authorization chokepoint: it returns the
// hydrated room only when userId is among its participants. Every read and
// write path goes through it.
func (s *RoomService) AuthorizeRoomAccess(roomId, userId string) (*types.Room, error) {
	dbRoom, err := s.db.GetRoomWithParticipants(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	room := roomFromDb(dbRoom)
	for _, p := range room.Participants {
		if p.Id == userId {
			return room, nil
		}
	}

	return nil, ErrAccessDenied
}

func (s *RoomService) ListUserRooms(userId string) ([]types.Room, error) {
	summaries, err := s.db.ListRoomsForUser(userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]types.Room, 0, len(summaries))
	for _, summary := range summaries {
		room := types.Room{
			Id:         summary.Id,
			Type:       summary.Type,
			ContextUrl: summary.ContextUrl,
			CreatedAt:  summary.CreatedAt,
		}
		if summary.LastMessage != nil {
			room.LastMessage = &types.Message{
				Id:        summary.LastMessage.Id,
				RoomId:    summary.LastMessage.RoomId,
				SenderId:  summary.LastMessage.SenderId,
				Body:      summary.LastMessage.Body,
				CreatedAt: summary.LastMessage.CreatedAt,
			}
		}

		rooms = append(rooms, room)
	}

	return rooms, nil
}

// ListRoomMessages returns the room history in ascending created_at order,
// after authorizing the caller.
func (s *RoomService) ListRoomMessages(roomId, userId string) ([]types.Message, error) {
	room, err := s.AuthorizeRoomAccess(roomId, userId)
	if err != nil {
		return nil, err
	}

	dbMessages, err := s.db.ListMessages(room.Id)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	senders := make(map[string]types.User, len(room.Participants))
	for _, p := range room.Participants {
		senders[p.Id] = p
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, types.Message{
			Id:        msg.Id,
			RoomId:    msg.RoomId,
			SenderId:  msg.SenderId,
			Sender:    senders[msg.SenderId],
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
		})
	}

	return messages, nil
}

// PostMessage authorizes the sender, persists the message and returns it
// hydrated with the sender's profile. Authorization runs on every send; a
// prior join is never trusted.
func (s *RoomService) PostMessage(roomId, senderId, body string) (*types.Message, error) {
	room, err := s.AuthorizeRoomAccess(roomId, senderId)
	if err != nil {
		return nil, err
	}

	msg, err := s.db.CreateMessage(room.Id, senderId, body)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	var sender types.User
	for _, p := range room.Participants {
		if p.Id == senderId {
			sender = p
			break
		}
	}

	return &types.Message{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		SenderId:  msg.SenderId,
		Sender:    sender,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}, nil
}

func (s *RoomService) hydrateRoom(roomId string) (*types.Room, error) {
	dbRoom, err := s.db.GetRoomWithParticipants(roomId)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	return roomFromDb(dbRoom), nil
}

func roomFromDb(dbRoom *database.Room) *types.Room {
	room := &types.Room{
		Id:           dbRoom.Id,
		Type:         dbRoom.Type,
		ContextUrl:   dbRoom.ContextUrl,
		CreatedAt:    dbRoom.CreatedAt,
		Participants: make([]types.User, len(dbRoom.Participants)),
	}
	for i, p := range dbRoom.Participants {
		room.Participants[i] = types.User{
			Id:        p.Id,
			Login:     p.Login,
			AvatarUrl: p.AvatarUrl,
		}
	}

	return room
}
