package server

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gittalk/gittalk/internal/rooms"
	"github.com/gittalk/gittalk/internal/types"
)

const idleRoomTimeout = time.Second * 30

var errRoomUnloading = errors.New("room is unloading")

type exitReq struct {
	done chan struct{}
}

// postRequest is an HTTP-origin send routed into the room goroutine, so both
// entry points persist and broadcast on the same serialized path.
type postRequest struct {
	senderId string
	body     string
	reply    chan postResult
}

type postResult struct {
	msg *types.Message
	err error
}

// Room is the live counterpart of a persisted room: a single goroutine owning
// the subscriber set. All joins, leaves and sends for the room are serialized
// through it, which is what guarantees broadcast order matches persistence
// order without any process-wide lock.
type Room struct {
	id          string
	cs          *ChatServer
	log         *log.Logger
	joinChan    chan *ClientMessage
	leaveChan   chan *ClientMessage
	publishChan chan *ClientMessage
	postChan    chan *postRequest
	clients     map[*Client]struct{}
	clientLock  sync.RWMutex
	// killTimer unloads the room once no client is subscribed
	killTimer *time.Timer
	exit      chan exitReq
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.id)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.publishChan:
			r.handlePublish(msg)
		case req := <-r.postChan:
			r.handlePost(req)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleJoin authorizes, fetches history and subscribes in one step on this
// goroutine: no broadcast can land between the history read and the
// subscription, so the joining client neither misses nor duplicates a
// message.
func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	room, err := r.cs.svc.AuthorizeRoomAccess(r.id, c.user.Id)
	if err != nil {
		c.queueMessage(joinError(join.Id, err))
		r.resetTimerIfEmpty()
		return
	}

	history, err := r.cs.svc.ListRoomMessages(r.id, c.user.Id)
	if err != nil {
		r.log.Println("ListRoomMessages:", err)
		c.queueMessage(ErrInternalError(join.Id))
		r.resetTimerIfEmpty()
		return
	}

	r.addClient(c)
	c.queueMessage(RoomJoinedMsg(join.Id, *room, history))
}

// handleLeave detaches the live subscription only; the durable membership
// row is untouched. Leaving never requires authorization.
func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)

	if leaveMsg.Id > 0 {
		leaveMsg.client.queueMessage(RoomLeftMsg(leaveMsg.Id, r.id))
	}
}

func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client
	created, err := r.cs.svc.PostMessage(r.id, c.user.Id, msg.Publish.Body)
	if err != nil {
		c.queueMessage(sendError(msg.Id, err))
		return
	}

	r.cs.stats.Incr(statMessagesPersisted)
	r.broadcast(MessageCreated(created))
}

func (r *Room) handlePost(req *postRequest) {
	created, err := r.cs.svc.PostMessage(r.id, req.senderId, req.body)
	if err != nil {
		req.reply <- postResult{err: err}
		return
	}

	r.cs.stats.Incr(statMessagesPersisted)
	r.broadcast(MessageCreated(created))
	req.reply <- postResult{msg: created}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.id)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.id}:
	default:
		r.log.Printf("unload channel full, rearming timer for room %q", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.id)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.id)
	}
	clear(r.clients)
	r.clientLock.Unlock()

	r.drainPending()

	if e.done != nil {
		close(e.done)
	}
}

// drainPending hands queued joins and publishes back to the chat server so a
// fresh room instance picks them up, and fails pending HTTP posts instead of
// leaving their callers blocked.
func (r *Room) drainPending() {
	for {
		select {
		case join := <-r.joinChan:
			select {
			case r.cs.joinChan <- join:
			default:
				join.client.queueMessage(ErrServiceUnavailable(join.Id))
			}
		case msg := <-r.publishChan:
			select {
			case r.cs.publishChan <- msg:
			default:
				msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
			}
		case req := <-r.postChan:
			req.reply <- postResult{err: errRoomUnloading}
		default:
			return
		}
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.id)

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.id)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) resetTimerIfEmpty() {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
	r.cs.stats.Incr(statMessagesBroadcast)
}

func joinError(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		return ErrRoomNotFound(id)
	case errors.Is(err, rooms.ErrAccessDenied):
		return ErrAccessDenied(id)
	default:
		return ErrInternalError(id)
	}
}

func sendError(id int, err error) *ServerMessage {
	return joinError(id, err)
}
