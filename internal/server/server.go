package server

import (
	"context"
	"log"

	"github.com/gittalk/gittalk/internal/rooms"
	"github.com/gittalk/gittalk/internal/stats"
	"github.com/gittalk/gittalk/internal/types"
)

const (
	statLiveConnections   = "LiveConnections"
	statLoadedRooms       = "LoadedRooms"
	statMessagesPersisted = "MessagesPersisted"
	statMessagesBroadcast = "MessagesBroadcast"
)

type unloadRoomRequest struct {
	roomId string
}

type stopRequest struct {
	done chan struct{}
}

type postRoute struct {
	roomId string
	req    *postRequest
}

// ChatServer orchestrates the live side of the system: it owns the loaded
// room goroutines and routes joins and sends to them. Persistence and
// authorization live in the room service; the registry tracks which users are
// connected. All collaborators are passed in at construction.
type ChatServer struct {
	log            *log.Logger
	svc            *rooms.RoomService
	registry       *Registry
	stats          stats.StatsProvider
	rooms          map[string]*Room
	joinChan       chan *ClientMessage
	publishChan    chan *ClientMessage
	postChan       chan *postRoute
	unloadRoomChan chan unloadRoomRequest
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, svc *rooms.RoomService, registry *Registry, statsProvider stats.StatsProvider) (*ChatServer, error) {
	for _, metric := range []string{
		statLiveConnections,
		statLoadedRooms,
		statMessagesPersisted,
		statMessagesBroadcast,
	} {
		statsProvider.RegisterMetric(metric)
	}

	return &ChatServer{
		log:            logger,
		svc:            svc,
		registry:       registry,
		stats:          statsProvider,
		rooms:          make(map[string]*Room),
		joinChan:       make(chan *ClientMessage, 256),
		publishChan:    make(chan *ClientMessage, 256),
		postChan:       make(chan *postRoute, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		stop:           make(chan stopRequest),
	}, nil
}

// Run is the routing loop. It never calls storage itself: rooms are loaded
// optimistically and each room's goroutine does its own authorization, so a
// slow query in one room cannot stall joins for another.
func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			room := cs.ensureRoom(joinMsg.Join.RoomId)
			select {
			case room.joinChan <- joinMsg:
			default:
				cs.log.Printf("join channel full on room %q", room.id)
				joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
			}
		case msg := <-cs.publishChan:
			room := cs.ensureRoom(msg.Publish.RoomId)
			select {
			case room.publishChan <- msg:
			default:
				cs.log.Printf("publish channel full on room %q", room.id)
				msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
			}
		case route := <-cs.postChan:
			room := cs.ensureRoom(route.roomId)
			select {
			case room.postChan <- route.req:
			default:
				route.req.reply <- postResult{err: errRoomUnloading}
			}
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req.roomId)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				done := make(chan struct{})
				r.exit <- exitReq{done: done}
				<-done
			}
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) ensureRoom(roomId string) *Room {
	if room, ok := cs.rooms[roomId]; ok {
		return room
	}

	room := &Room{
		id:          roomId,
		cs:          cs,
		log:         cs.log,
		joinChan:    make(chan *ClientMessage, 256),
		leaveChan:   make(chan *ClientMessage, 256),
		publishChan: make(chan *ClientMessage, 256),
		postChan:    make(chan *postRequest, 256),
		clients:     make(map[*Client]struct{}),
		exit:        make(chan exitReq, 1),
	}

	cs.rooms[roomId] = room
	cs.stats.Incr(statLoadedRooms)
	go room.start()

	return room
}

func (cs *ChatServer) unloadRoom(roomId string) {
	r, ok := cs.rooms[roomId]
	if !ok {
		return
	}

	cs.log.Printf("unloading room %q", roomId)
	delete(cs.rooms, roomId)
	cs.stats.Decr(statLoadedRooms)
	r.exit <- exitReq{}
}

// PostMessage runs an HTTP-origin send through the room's goroutine, so it is
// persisted and fanned out exactly like a socket send.
func (cs *ChatServer) PostMessage(roomId, senderId, body string) (*types.Message, error) {
	req := &postRequest{
		senderId: senderId,
		body:     body,
		reply:    make(chan postResult, 1),
	}

	cs.postChan <- &postRoute{roomId: roomId, req: req}

	res := <-req.reply
	return res.msg, res.err
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.log.Printf("adding connection from %q", c.user.Login)
	cs.registry.Register(c)
	cs.stats.Incr(statLiveConnections)
}

func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.log.Printf("removing connection from %q", c.user.Login)
	cs.registry.Unregister(c)
	cs.stats.Decr(statLiveConnections)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	for _, c := range cs.registry.AllClients() {
		c.stopClient()
	}

	done := make(chan struct{})
	select {
	case cs.stop <- stopRequest{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
