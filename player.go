package monkey

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reserved pseudo-identities of the core. CPU seats and unauthenticated
// sessions are ordinary Player rows carrying one of these identity
// handles; registered players get a handle under the player@mnk domain.
const (
	UserCPU       = "cpu@mnk"
	UserAnonymous = "anonymous@mnk"
	UserDomain    = "player@mnk"

	NicknameCPU       = "CPU"
	NicknameAnonymous = "Anonymous"
)

// SessionTTL is how long a minted session token stays valid.
const SessionTTL = 7 * 24 * time.Hour

// Player records an identity, a nickname and the aggregate game
// counters. The identity handle is opaque to the game logic.
type Player struct {
	ID            string `json:"id"`
	User          string `json:"user"`
	Nickname      string `json:"nickname"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Draws         int    `json:"draws"`
	PasswordHash  string `json:"password_hash,omitempty"`
	SessionToken  string `json:"session_token,omitempty"`
	SessionExpiry int64  `json:"session_expiry,omitempty"`
	UpdateSerial  int    `json:"update_serial"`
}

// Nicknames begin with a letter, continue with letters or digits
// optionally separated by single '-', '.', '_' or ' ' characters, and
// are 3-20 characters long.
var nicknameRegexp = regexp.MustCompile(`^[a-zA-Z](?:[a-zA-Z0-9]|[-._ ][a-zA-Z0-9])*$`)

// ValidateNickname checks a human player's nickname. The reserved
// names are refused; they belong to the internal identities.
func ValidateNickname(name string) error {
	if len(name) < 3 || len(name) > 20 {
		return ErrInvalidNickname
	}
	if !nicknameRegexp.MatchString(name) {
		return ErrInvalidNickname
	}
	if strings.EqualFold(name, NicknameCPU) || strings.EqualFold(name, NicknameAnonymous) {
		return ErrInvalidNickname
	}
	return nil
}

// HashPassword returns the SHA-256 hex digest stored for registered
// players.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// NewSessionToken mints a random 128-bit hex token.
func NewSessionToken() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// NewCPUPlayer creates a fresh CPU seat. Every CPU seat is its own row
// so that a game can hold several of them.
func NewCPUPlayer() *Player {
	return &Player{
		ID:       uuid.New().String(),
		User:     UserCPU,
		Nickname: NicknameCPU,
	}
}

// NewAnonymousPlayer creates an unauthenticated player with a fresh
// session token.
func NewAnonymousPlayer(now time.Time) *Player {
	return &Player{
		ID:            uuid.New().String(),
		User:          UserAnonymous,
		Nickname:      NicknameAnonymous,
		SessionToken:  NewSessionToken(),
		SessionExpiry: now.Add(SessionTTL).Unix(),
	}
}

// NewUserPlayer creates a player for an externally authenticated
// identity, with the identity's default nickname.
func NewUserPlayer(user, nickname string) *Player {
	return &Player{
		ID:       uuid.New().String(),
		User:     user,
		Nickname: nickname,
	}
}

func (p *Player) IsCPU() bool { return p.User == UserCPU }

func (p *Player) IsAnonymous() bool { return p.User == UserAnonymous }

// SessionValid reports whether the player carries an unexpired session
// token.
func (p *Player) SessionValid(now time.Time) bool {
	return p.SessionToken != "" && now.Unix() < p.SessionExpiry
}

// Rename validates and applies a new nickname. The caller propagates
// the change to player name caches in games.
func (p *Player) Rename(nickname string) error {
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	p.Nickname = nickname
	return nil
}
