package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	addParticipantQuery = "INSERT INTO room_participants (room_id, user_id, created_at) " +
		"VALUES ($1, $2, $3) ON CONFLICT (room_id, user_id) DO NOTHING"

	// A DM room matches only when both users are participants and the
	// participant set contains nobody else.
	getDMRoomQuery = "SELECT r.id, r.type, r.created_at FROM rooms r " +
		"WHERE r.type = 'DM' " +
		"AND EXISTS (SELECT 1 FROM room_participants p WHERE p.room_id = r.id AND p.user_id = $1) " +
		"AND EXISTS (SELECT 1 FROM room_participants p WHERE p.room_id = r.id AND p.user_id = $2) " +
		"AND (SELECT COUNT(*) FROM room_participants p WHERE p.room_id = r.id) = 2 " +
		"LIMIT 1"
)

func (db *PgGitTalkRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRow(
		"INSERT INTO users (id, github_id, login, avatar_url, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, github_id, login, avatar_url, created_at, updated_at",
		uuid.NewString(),
		params.GithubId,
		params.Login,
		params.AvatarUrl,
		now,
		now,
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.GithubId,
		&u.Login,
		&u.AvatarUrl,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgGitTalkRepository) UpdateAvatar(userId, avatarUrl string) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE users SET avatar_url = $2, updated_at = $3 "+
			"WHERE id = $1 RETURNING id, github_id, login, avatar_url, created_at, updated_at",
		userId,
		avatarUrl,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.GithubId,
		&u.Login,
		&u.AvatarUrl,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgGitTalkRepository) GetAccountById(id string) (User, error) {
	return db.getAccount("id", id)
}

func (db *PgGitTalkRepository) GetAccountByLogin(login string) (User, error) {
	return db.getAccount("login", login)
}

func (db *PgGitTalkRepository) GetAccountByGithubId(githubId string) (User, error) {
	return db.getAccount("github_id", githubId)
}

func (db *PgGitTalkRepository) getAccount(column, value string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, github_id, login, avatar_url, created_at, updated_at FROM users "+
			"WHERE "+column+" = $1 LIMIT 1",
		value,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.GithubId,
		&u.Login,
		&u.AvatarUrl,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

// CreateDMRoom inserts the room and both participant rows in a single
// transaction. A DM room must never be observable with fewer than two
// participants.
func (db *PgGitTalkRepository) CreateDMRoom(userA, userB string) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO rooms (id, type, created_at) VALUES ($1, $2, $3) RETURNING id, type, created_at",
		uuid.NewString(),
		"DM",
		now,
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Type,
		&room.CreatedAt,
	)
	if err != nil {
		return Room{}, err
	}

	for _, userId := range []string{userA, userB} {
		_, err = tx.Exec(addParticipantQuery, room.Id, userId, now)
		if err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

// CreateThreadRoom inserts the room and its first participant in a single
// transaction.
func (db *PgGitTalkRepository) CreateThreadRoom(contextUrl, userId string) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO rooms (id, type, context_url, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, type, context_url, created_at",
		uuid.NewString(),
		"THREAD",
		contextUrl,
		now,
	)

	var room Room
	var ctxUrl sql.NullString
	err = res.Scan(
		&room.Id,
		&room.Type,
		&ctxUrl,
		&room.CreatedAt,
	)
	if err != nil {
		return Room{}, err
	}
	room.ContextUrl = ctxUrl.String

	_, err = tx.Exec(addParticipantQuery, room.Id, userId, now)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgGitTalkRepository) AddParticipant(roomId, userId string) error {
	_, err := db.conn.Exec(addParticipantQuery, roomId, userId, time.Now().UTC())
	return err
}

func (db *PgGitTalkRepository) GetDMRoom(userA, userB string) (Room, error) {
	row := db.conn.QueryRow(getDMRoomQuery, userA, userB)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Type,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgGitTalkRepository) GetThreadRoomByContextUrl(contextUrl string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, type, context_url, created_at FROM rooms "+
			"WHERE type = 'THREAD' AND context_url = $1 LIMIT 1",
		contextUrl,
	)

	var room Room
	var ctxUrl sql.NullString
	err := row.Scan(
		&room.Id,
		&room.Type,
		&ctxUrl,
		&room.CreatedAt,
	)
	room.ContextUrl = ctxUrl.String

	return room, err
}

func (db *PgGitTalkRepository) GetRoomWithParticipants(roomId string) (*Room, error) {
	query := `
		SELECT
				r.id AS room_id,
				r.type,
				r.context_url,
				r.created_at AS room_created_at,
				u.id,
				u.login,
				u.avatar_url
		FROM rooms r
		LEFT JOIN room_participants p ON r.id = p.room_id
		LEFT JOIN users u ON p.user_id = u.id
		WHERE r.id = $1;
`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch room with participants: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			id            string
			roomType      string
			contextUrl    sql.NullString
			roomCreatedAt time.Time
			userId        sql.NullString
			login         sql.NullString
			avatarUrl     sql.NullString
		)

		err := rows.Scan(
			&id,
			&roomType,
			&contextUrl,
			&roomCreatedAt,
			&userId,
			&login,
			&avatarUrl,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			room = &Room{
				Id:           id,
				Type:         roomType,
				ContextUrl:   contextUrl.String,
				CreatedAt:    roomCreatedAt,
				Participants: make([]User, 0),
			}
		}

		if userId.Valid && login.Valid {
			room.Participants = append(room.Participants, User{
				Id:        userId.String,
				Login:     login.String,
				AvatarUrl: avatarUrl.String,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if room == nil {
		return nil, sql.ErrNoRows
	}

	return room, nil
}

func (db *PgGitTalkRepository) ListRoomsForUser(userId string) ([]RoomSummary, error) {
	query := `
		SELECT
				r.id,
				r.type,
				r.context_url,
				r.created_at,
				m.id,
				m.sender_id,
				m.body,
				m.created_at
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id AND p.user_id = $1
		LEFT JOIN LATERAL (
				SELECT id, sender_id, body, created_at FROM messages
				WHERE room_id = r.id
				ORDER BY created_at DESC, id DESC
				LIMIT 1
		) m ON true
		ORDER BY r.created_at DESC;
`

	rows, err := db.conn.Query(query, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries = make([]RoomSummary, 0)
	for rows.Next() {
		var (
			summary    RoomSummary
			contextUrl sql.NullString
			msgId      sql.NullString
			senderId   sql.NullString
			body       sql.NullString
			createdAt  sql.NullTime
		)

		err = rows.Scan(
			&summary.Id,
			&summary.Type,
			&contextUrl,
			&summary.CreatedAt,
			&msgId,
			&senderId,
			&body,
			&createdAt,
		)
		if err != nil {
			break
		}

		summary.ContextUrl = contextUrl.String
		if msgId.Valid {
			summary.LastMessage = &Message{
				Id:        msgId.String,
				RoomId:    summary.Id,
				SenderId:  senderId.String,
				Body:      body.String,
				CreatedAt: createdAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, err
}

func (db *PgGitTalkRepository) CreateMessage(roomId, senderId, body string) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (id, room_id, sender_id, body, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, room_id, sender_id, body, created_at",
		uuid.NewString(),
		roomId,
		senderId,
		body,
		time.Now().UTC(),
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Body,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgGitTalkRepository) ListMessages(roomId string) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, room_id, sender_id, body, created_at FROM messages "+
			"WHERE room_id = $1 ORDER BY created_at ASC, id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.RoomId, &msg.SenderId, &msg.Body, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return messages, err
}
