package events

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeDeadline = 5 * time.Second

// Session is the slice of a websocket connection the fan-out needs. It is an
// interface so tests can register fake sessions without dialing a server.
type Session interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type joinAck struct {
	Event string `json:"event"`
	Room  string `json:"room"`
}

// joinAckPayload is the acknowledgement a session receives once its join has been
// registered.
func joinAckPayload(room string) []byte {
	payload, err := json.Marshal(joinAck{Event: "joined-room", Room: room})
	if err != nil {
		return nil
	}
	return payload
}

type joinRequest struct {
	channel string
	sess    Session
	// ack, if set, is written to the session once the registration is in place.
	ack  []byte
	done chan struct{}
}

type leaveRequest struct {
	sess Session
	done chan struct{}
}

type broadcastRequest struct {
	channel string
	payload []byte
	done    chan struct{}
}

type countRequest struct {
	channel string
	resp    chan int
}

// fanout owns the session registry on a single goroutine; all access goes through
// its channels, so no locks are needed. Each session belongs to at most one channel
// at a time. Every connection write happens on this goroutine, including join acks:
// the websocket library permits one concurrent writer per connection and panics on
// overlap.
type fanout struct {
	sessions  map[string]map[Session]bool
	bySession map[Session]string

	join      chan joinRequest
	leave     chan leaveRequest
	broadcast chan broadcastRequest
	count     chan countRequest
	shutdown  chan struct{}
	isRunning atomic.Bool

	log zerolog.Logger
}

func newFanout(name string) *fanout {
	f := &fanout{
		sessions:  map[string]map[Session]bool{},
		bySession: map[Session]string{},
		join:      make(chan joinRequest),
		leave:     make(chan leaveRequest),
		broadcast: make(chan broadcastRequest),
		count:     make(chan countRequest),
		shutdown:  make(chan struct{}),
		log:       log.With().Str("component", name).Logger(),
	}
	go f.run()
	return f
}

// Join adds the session to the channel, removing it from its previous channel if it
// had one. Joining the same channel twice is a no-op. A non-nil ack is written to
// the session after the registration, on the owner goroutine like every other
// write. The call returns once the registration is visible to subsequent
// broadcasts.
func (f *fanout) Join(channel string, sess Session, ack []byte) {
	done := make(chan struct{})
	f.join <- joinRequest{channel: channel, sess: sess, ack: ack, done: done}
	<-done
}

func (f *fanout) Leave(sess Session) {
	done := make(chan struct{})
	f.leave <- leaveRequest{sess: sess, done: done}
	<-done
}

// Broadcast delivers the payload to every session currently in the channel and
// returns once every write has been attempted. A channel with no sessions drops the
// payload.
func (f *fanout) Broadcast(channel string, payload []byte) {
	done := make(chan struct{})
	f.broadcast <- broadcastRequest{channel: channel, payload: payload, done: done}
	<-done
}

func (f *fanout) Count(channel string) int {
	resp := make(chan int)
	f.count <- countRequest{channel: channel, resp: resp}
	return <-resp
}

func (f *fanout) Shutdown() {
	close(f.shutdown)
	for f.isRunning.Load() {
		time.Sleep(10 * time.Millisecond)
	}
}

func (f *fanout) run() {
	if !f.isRunning.CompareAndSwap(false, true) {
		return
	}
	defer f.isRunning.Store(false)
	for {
		select {
		case req := <-f.join:
			f.removeSession(req.sess, false)
			if f.sessions[req.channel] == nil {
				f.sessions[req.channel] = map[Session]bool{}
			}
			f.sessions[req.channel][req.sess] = true
			f.bySession[req.sess] = req.channel
			if req.ack != nil {
				f.write(req.sess, req.channel, req.ack)
			}
			close(req.done)
		case req := <-f.leave:
			f.removeSession(req.sess, false)
			close(req.done)
		case req := <-f.broadcast:
			for sess := range f.sessions[req.channel] {
				f.write(sess, req.channel, req.payload)
			}
			close(req.done)
		case req := <-f.count:
			req.resp <- len(f.sessions[req.channel])
		case <-f.shutdown:
			for sess := range f.bySession {
				f.removeSession(sess, true)
			}
			return
		}
	}
}

// write delivers one payload to one session, evicting the session on failure. Must
// only be called from the run goroutine.
func (f *fanout) write(sess Session, channel string, payload []byte) {
	if err := sess.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		f.removeSession(sess, true)
		return
	}
	if err := sess.WriteMessage(websocket.TextMessage, payload); err != nil {
		f.log.Debug().Err(err).Str("channel", channel).
			Msg("dropping session after failed write")
		f.removeSession(sess, true)
	}
}

func (f *fanout) removeSession(sess Session, closeConn bool) {
	channel, ok := f.bySession[sess]
	if !ok {
		return
	}
	delete(f.bySession, sess)
	delete(f.sessions[channel], sess)
	if len(f.sessions[channel]) == 0 {
		delete(f.sessions, channel)
	}
	if closeConn {
		if err := sess.Close(); err != nil {
			f.log.Debug().Err(err).Msg("failed to close session")
		}
	}
}
