package monkey

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thoas/go-funk"
)

// MemoryStore is an in-process Store backed by maps. It is the default
// backend for tests and single-process setups; every entity is cloned
// on the way in and out so callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	games    map[string]*Game
	players  map[string]*Player
	ruleSets map[string]*RuleSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[string]*Game),
		players:  make(map[string]*Player),
		ruleSets: make(map[string]*RuleSet),
	}
}

func cloneGame(g *Game) *Game {
	c := *g
	c.Players = append([]string(nil), g.Players...)
	c.PlayerNames = append([]string(nil), g.PlayerNames...)
	c.BoardData = append([]string(nil), g.BoardData...)
	c.ruleSet = nil
	c.board = nil
	return &c
}

func clonePlayer(p *Player) *Player {
	c := *p
	return &c
}

func cloneRuleSet(rs *RuleSet) *RuleSet {
	c := *rs
	return &c
}

func (s *MemoryStore) CreateGame(g *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = cloneGame(g)
	return nil
}

func (s *MemoryStore) GetGame(id string) (*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGame(g), nil
}

func (s *MemoryStore) UpdateGame(g *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.games[g.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.UpdateSerial != g.UpdateSerial {
		return ErrConcurrentUpdate
	}
	g.UpdateSerial++
	s.games[g.ID] = cloneGame(g)
	return nil
}

func (s *MemoryStore) DeleteGame(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return ErrNotFound
	}
	delete(s.games, id)
	return nil
}

func (s *MemoryStore) ListGames(q GameQuery) ([]*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]*Game, 0)
	for _, g := range s.games {
		if len(q.States) > 0 && !funk.ContainsString(q.States, g.State) {
			continue
		}
		if q.PlayerID != "" && !funk.ContainsString(g.Players, q.PlayerID) {
			continue
		}
		matches = append(matches, cloneGame(g))
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].LastUpdate != matches[j].LastUpdate {
			return matches[i].LastUpdate > matches[j].LastUpdate
		}
		return matches[i].ID < matches[j].ID
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func (s *MemoryStore) CreatePlayer(p *Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = clonePlayer(p)
	return nil
}

func (s *MemoryStore) GetPlayer(id string) (*Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePlayer(p), nil
}

func (s *MemoryStore) GetPlayerByUser(user string) (*Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players {
		if p.User == user {
			return clonePlayer(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPlayerByNickname(nickname string) (*Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players {
		if p.PasswordHash != "" && strings.EqualFold(p.Nickname, nickname) {
			return clonePlayer(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetPlayerBySession(token string, now time.Time) (*Player, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players {
		if p.SessionToken == token && now.Unix() < p.SessionExpiry {
			return clonePlayer(p), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdatePlayer(p *Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.players[p.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.UpdateSerial != p.UpdateSerial {
		return ErrConcurrentUpdate
	}
	p.UpdateSerial++
	s.players[p.ID] = clonePlayer(p)
	return nil
}

func (s *MemoryStore) CreateRuleSet(rs *RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleSets[rs.ID] = cloneRuleSet(rs)
	return nil
}

func (s *MemoryStore) GetRuleSet(id string) (*RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.ruleSets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRuleSet(rs), nil
}

func (s *MemoryStore) UpdateRuleSet(rs *RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.ruleSets[rs.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.UpdateSerial != rs.UpdateSerial {
		return ErrConcurrentUpdate
	}
	rs.UpdateSerial++
	s.ruleSets[rs.ID] = cloneRuleSet(rs)
	return nil
}

func (s *MemoryStore) ListRuleSets() ([]*RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RuleSet, 0, len(s.ruleSets))
	for _, rs := range s.ruleSets {
		out = append(out, cloneRuleSet(rs))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
