package lobby

import (
	"errors"
	"time"

	"pkg.world.dev/lobby/team"
)

var ErrNoLobby = errors.New("no lobby exists")

type Status string

const (
	StatusActive   Status = "active"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// maxChatLog bounds the chat log so a busy lobby can't grow a multi-megabyte record
// in the store. Oldest messages are dropped on append.
const maxChatLog = 512

// Lobby is the session created when two teams are paired. It persists until finished
// or until its TTL elapses.
type Lobby struct {
	ID                string        `json:"id"`
	Team1             team.Team     `json:"team1"`
	Team2             team.Team     `json:"team2"`
	Chats             []ChatMessage `json:"chats"`
	CoinToss          *CoinToss     `json:"coinTossMatch,omitempty"`
	RockPaperScissors *RPSMatch     `json:"rockPaperMatch,omitempty"`
	Status            Status        `json:"status"`
}

type ChatMessage struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
	SentBy  string    `json:"sentBy"`
}

// HasParticipant reports whether the given user belongs to either roster.
func (l *Lobby) HasParticipant(userID string) bool {
	return l.Team1.HasMember(userID) || l.Team2.HasMember(userID)
}

// CoinToss records the pre-match coin toss used to resolve match setup.
type CoinToss struct {
	HeadsChosenBy string   `json:"headsChosenBy"`
	TailsChosenBy string   `json:"tailsChosenBy"`
	Result        CoinSide `json:"toss"`
	Winner        string   `json:"wonBy"`
}

type CoinSide string

const (
	Heads CoinSide = "heads"
	Tails CoinSide = "tails"
)

// RPSMatch records a best-of rock-paper-scissors played to resolve match setup.
type RPSMatch struct {
	Rounds []RPSRound `json:"rounds"`
	Winner string     `json:"winner"`
}

type RPSRound struct {
	Choices []RPSChoice `json:"data"`
	Winner  string      `json:"winner"`
}

type RPSChoice struct {
	UserID string  `json:"userId"`
	Hand   RPSHand `json:"choice"`
}

type RPSHand string

const (
	Rock     RPSHand = "rock"
	Paper    RPSHand = "paper"
	Scissors RPSHand = "scissors"
)
