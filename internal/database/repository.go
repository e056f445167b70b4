package database

type GitTalkRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAvatar(userId, avatarUrl string) (User, error)
	GetAccountById(id string) (User, error)
	GetAccountByLogin(login string) (User, error)
	GetAccountByGithubId(githubId string) (User, error)
	CreateDMRoom(userA, userB string) (Room, error)
	CreateThreadRoom(contextUrl, userId string) (Room, error)
	AddParticipant(roomId, userId string) error
	GetDMRoom(userA, userB string) (Room, error)
	GetThreadRoomByContextUrl(contextUrl string) (Room, error)
	GetRoomWithParticipants(roomId string) (*Room, error)
	ListRoomsForUser(userId string) ([]RoomSummary, error)
	CreateMessage(roomId, senderId, body string) (Message, error)
	ListMessages(roomId string) ([]Message, error)
}
