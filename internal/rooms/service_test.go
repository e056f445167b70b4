package rooms

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/gittalk/gittalk/internal/database"
	"github.com/gittalk/gittalk/internal/testutil"
	"github.com/stretchr/testify/assert"
)

var (
	alice = database.User{Id: "user-alice", GithubId: "1", Login: "alice"}
	bob   = database.User{Id: "user-bob", GithubId: "2", Login: "bob"}
	carol = database.User{Id: "user-carol", GithubId: "3", Login: "carol"}
)

func newTestRoomService(t *testing.T, db database.GitTalkRepository) *RoomService {
	return NewRoomService(testutil.TestLogger(t), db)
}

func TestResolveDM(t *testing.T) {
	t.Run("returns existing room without creating", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetAccountById", alice.Id).Return(alice, nil)
		db.On("GetAccountByLogin", bob.Login).Return(bob, nil)
		db.On("GetDMRoom", alice.Id, bob.Id).Return(database.Room{Id: "room-1", Type: "DM"}, nil)
		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)

		svc := newTestRoomService(t, db)
		room, err := svc.ResolveDM(alice.Id, bob.Login)
		assert.NoError(t, err, "expected no error")
		assert.Equal(t, "room-1", room.Id, "expected existing room id")
		assert.Len(t, room.Participants, 2, "expected exactly two participants")
		db.AssertNotCalled(t, "CreateDMRoom", alice.Id, bob.Id)
	})

	t.Run("repeated calls return the same room id", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetAccountById", alice.Id).Return(alice, nil)
		db.On("GetAccountByLogin", bob.Login).Return(bob, nil)
		db.On("GetDMRoom", alice.Id, bob.Id).Return(database.Room{}, sql.ErrNoRows).Once()
		db.On("CreateDMRoom", alice.Id, bob.Id).Return(database.Room{Id: "room-1", Type: "DM"}, nil).Once()
		db.On("GetDMRoom", alice.Id, bob.Id).Return(database.Room{Id: "room-1", Type: "DM"}, nil)
		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)

		svc := newTestRoomService(t, db)

		first, err := svc.ResolveDM(alice.Id, bob.Login)
		assert.NoError(t, err, "expected no error on first resolve")

		second, err := svc.ResolveDM(alice.Id, bob.Login)
		assert.NoError(t, err, "expected no error on second resolve")
		assert.Equal(t, first.Id, second.Id, "expected both calls to return the same room")
		db.AssertNumberOfCalls(t, "CreateDMRoom", 1)
	})

	t.Run("self DM is rejected by login", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetAccountById", alice.Id).Return(alice, nil)

		svc := newTestRoomService(t, db)
		_, err := svc.ResolveDM(alice.Id, alice.Login)
		assert.ErrorIs(t, err, ErrSelfDM, "expected ErrSelfDM")
		db.AssertNotCalled(t, "GetAccountByLogin", alice.Login)
	})

	t.Run("unknown target login", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetAccountById", alice.Id).Return(alice, nil)
		db.On("GetAccountByLogin", "stranger").Return(database.User{}, sql.ErrNoRows)

		svc := newTestRoomService(t, db)
		_, err := svc.ResolveDM(alice.Id, "stranger")
		assert.ErrorIs(t, err, ErrUserNotFound, "expected ErrUserNotFound")
	})

	t.Run("storage failure surfaces", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetAccountById", alice.Id).Return(alice, nil)
		db.On("GetAccountByLogin", bob.Login).Return(bob, nil)
		db.On("GetDMRoom", alice.Id, bob.Id).Return(database.Room{}, errors.New("connection reset"))

		svc := newTestRoomService(t, db)
		_, err := svc.ResolveDM(alice.Id, bob.Login)
		assert.Error(t, err, "expected storage error to surface")
		assert.NotErrorIs(t, err, ErrUserNotFound, "expected a generic failure, not a lookup rejection")
	})
}

func TestResolveThread(t *testing.T) {
	const contextUrl = "https://github.com/org/repo/issues/5"

	t.Run("creates thread with requester as sole participant", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetThreadRoomByContextUrl", contextUrl).Return(database.Room{}, sql.ErrNoRows)
		db.On("CreateThreadRoom", contextUrl, alice.Id).Return(database.Room{Id: "room-1", Type: "THREAD", ContextUrl: contextUrl}, nil)
		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "THREAD",
			ContextUrl:   contextUrl,
			Participants: []database.User{alice},
		}, nil)

		svc := newTestRoomService(t, db)
		room, err := svc.ResolveThread(contextUrl, alice.Id)
		assert.NoError(t, err, "expected no error")
		assert.Equal(t, contextUrl, room.ContextUrl, "expected context url to match")
		assert.Len(t, room.Participants, 1, "expected a single participant")
	})

	t.Run("second user joins the existing thread", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetThreadRoomByContextUrl", contextUrl).Return(database.Room{Id: "room-1", Type: "THREAD", ContextUrl: contextUrl}, nil)
		db.On("AddParticipant", "room-1", carol.Id).Return(nil)
		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "THREAD",
			ContextUrl:   contextUrl,
			Participants: []database.User{alice, carol},
		}, nil)

		svc := newTestRoomService(t, db)
		room, err := svc.ResolveThread(contextUrl, carol.Id)
		assert.NoError(t, err, "expected no error")
		assert.Equal(t, "room-1", room.Id, "expected same room id for same context url")
		assert.Len(t, room.Participants, 2, "expected participant set to grow")
		db.AssertNotCalled(t, "CreateThreadRoom", contextUrl, carol.Id)
	})

	t.Run("existing participant is not duplicated", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetThreadRoomByContextUrl", contextUrl).Return(database.Room{Id: "room-1", Type: "THREAD", ContextUrl: contextUrl}, nil)
		// AddParticipant is a no-op for existing pairs
		db.On("AddParticipant", "room-1", alice.Id).Return(nil)
		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "THREAD",
			ContextUrl:   contextUrl,
			Participants: []database.User{alice, carol},
		}, nil)

		svc := newTestRoomService(t, db)
		room, err := svc.ResolveThread(contextUrl, alice.Id)
		assert.NoError(t, err, "expected no error")
		assert.Len(t, room.Participants, 2, "expected participant set unchanged")
	})
}

func TestAuthorizeRoomAccess(t *testing.T) {
	t.Run("participant is allowed", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)

		svc := newTestRoomService(t, db)
		room, err := svc.AuthorizeRoomAccess("room-1", alice.Id)
		assert.NoError(t, err, "expected no error")
		assert.Equal(t, "room-1", room.Id, "expected room to be returned")
	})

	t.Run("non-participant is denied", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)

		svc := newTestRoomService(t, db)
		_, err := svc.AuthorizeRoomAccess("room-1", carol.Id)
		assert.ErrorIs(t, err, ErrAccessDenied, "expected ErrAccessDenied")
	})

	t.Run("missing room", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomWithParticipants", "missing").Return(nil, sql.ErrNoRows)

		svc := newTestRoomService(t, db)
		_, err := svc.AuthorizeRoomAccess("missing", alice.Id)
		assert.ErrorIs(t, err, ErrRoomNotFound, "expected ErrRoomNotFound")
	})
}

func TestPostMessage(t *testing.T) {
	t.Run("persists and hydrates sender", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)
		db.On("CreateMessage", "room-1", alice.Id, "hi").Return(database.Message{
			Id:        "msg-1",
			RoomId:    "room-1",
			SenderId:  alice.Id,
			Body:      "hi",
			CreatedAt: time.Now().UTC(),
		}, nil)

		svc := newTestRoomService(t, db)
		msg, err := svc.PostMessage("room-1", alice.Id, "hi")
		assert.NoError(t, err, "expected no error")
		assert.Equal(t, "hi", msg.Body, "expected body to match")
		assert.Equal(t, alice.Login, msg.Sender.Login, "expected sender profile to be hydrated")
	})

	t.Run("denied sender never persists", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)

		svc := newTestRoomService(t, db)
		_, err := svc.PostMessage("room-1", carol.Id, "hi")
		assert.ErrorIs(t, err, ErrAccessDenied, "expected ErrAccessDenied")
		db.AssertNotCalled(t, "CreateMessage", "room-1", carol.Id, "hi")
	})
}

func TestListRoomMessages(t *testing.T) {
	t.Run("returns ascending history with senders", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		base := time.Now().UTC()
		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "DM",
			Participants: []database.User{alice, bob},
		}, nil)
		db.On("ListMessages", "room-1").Return([]database.Message{
			{Id: "msg-1", RoomId: "room-1", SenderId: alice.Id, Body: "hi", CreatedAt: base},
			{Id: "msg-2", RoomId: "room-1", SenderId: bob.Id, Body: "hello", CreatedAt: base.Add(time.Second)},
		}, nil)

		svc := newTestRoomService(t, db)
		messages, err := svc.ListRoomMessages("room-1", alice.Id)
		assert.NoError(t, err, "expected no error")
		assert.Len(t, messages, 2, "expected both messages")
		assert.Equal(t, "alice", messages[0].Sender.Login, "expected first sender hydrated")
		assert.Equal(t, "bob", messages[1].Sender.Login, "expected second sender hydrated")
		assert.True(t, !messages[1].CreatedAt.Before(messages[0].CreatedAt), "expected ascending order")
	})

	t.Run("non-participant cannot read history", func(t *testing.T) {
		db := &database.MockGitTalkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetRoomWithParticipants", "room-1").Return(&database.Room{
			Id:           "room-1",
			Type:         "THREAD",
			Participants: []database.User{alice},
		}, nil)

		svc := newTestRoomService(t, db)
		_, err := svc.ListRoomMessages("room-1", bob.Id)
		assert.ErrorIs(t, err, ErrAccessDenied, "expected ErrAccessDenied")
		db.AssertNotCalled(t, "ListMessages", "room-1")
	})
}

func TestListUserRooms(t *testing.T) {
	db := &database.MockGitTalkRepository{}
	defer db.AssertExpectations(t)

	now := time.Now().UTC()
	db.On("ListRoomsForUser", alice.Id).Return([]database.RoomSummary{
		{
			Room: database.Room{Id: "room-2", Type: "THREAD", ContextUrl: "https://github.com/org/repo/pull/7", CreatedAt: now},
			LastMessage: &database.Message{
				Id: "msg-9", RoomId: "room-2", SenderId: bob.Id, Body: "latest", CreatedAt: now,
			},
		},
		{
			Room: database.Room{Id: "room-1", Type: "DM", CreatedAt: now.Add(-time.Hour)},
		},
	}, nil)

	svc := newTestRoomService(t, db)
	userRooms, err := svc.ListUserRooms(alice.Id)
	assert.NoError(t, err, "expected no error")
	assert.Len(t, userRooms, 2, "expected two rooms")
	assert.Equal(t, "room-2", userRooms[0].Id, "expected most recent room first")
	assert.NotNil(t, userRooms[0].LastMessage, "expected last message preview")
	assert.Equal(t, "latest", userRooms[0].LastMessage.Body, "expected preview body")
	assert.Nil(t, userRooms[1].LastMessage, "expected no preview for empty room")
}
