package monkey

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/d-protocol/syncsaga"
	"github.com/d-protocol/timebank"
	"github.com/rs/zerolog"
)

// ServiceOptions tunes the facade. Zero values are replaced by the
// defaults from NewServiceOptions.
type ServiceOptions struct {
	Cleverness     float64
	WaitingGameTTL time.Duration
	PlayingGameTTL time.Duration
	SessionTTL     time.Duration
	ListLimit      int
	CPUBattleDelay time.Duration
}

func NewServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		Cleverness:     DefaultCleverness,
		WaitingGameTTL: 6 * time.Hour,
		PlayingGameTTL: 48 * time.Hour,
		SessionTTL:     SessionTTL,
		ListLimit:      10,
		CPUBattleDelay: time.Second,
	}
}

// GameService is the single entry point of the server core. Every
// method resolves the calling player from the request context first,
// minting an anonymous session when nothing identifies the caller.
type GameService interface {
	CreateGame(rc *RequestContext, ruleSetID string) (string, error)
	JoinGame(rc *RequestContext, gameID string) (*GameStatus, error)
	LeaveGame(rc *RequestContext, gameID string) error
	AddCPUPlayer(rc *RequestContext, gameID string) (*GameStatus, error)
	CPUBattle(rc *RequestContext, ruleSetID string) (string, error)
	Move(rc *RequestContext, gameID string, x, y int) (*GameStatus, error)
	Status(rc *RequestContext, gameID string, sinceTurn *int) (*GameStatus, error)
	Games(rc *RequestContext, mode string) ([]*GameSummary, error)
	PlayerInfo(rc *RequestContext) (*PlayerInfo, error)
	ChangeNickname(rc *RequestContext, nickname string) (*PlayerInfo, error)
	CreateRuleSet(rc *RequestContext, name string, m, n, k, p, q, numPlayers int, exact bool) (*RuleSetInfo, error)
	RuleSets(rc *RequestContext) ([]*RuleSetInfo, error)
	Register(rc *RequestContext, nickname, password string) (*PlayerInfo, error)
	LogIn(rc *RequestContext, nickname, password string) (*PlayerInfo, error)
	LogOut(rc *RequestContext) error
}

type gameService struct {
	lock       sync.Mutex
	store      Store
	options    *ServiceOptions
	strategist *Strategist
	tb         *timebank.TimeBank
	logger     zerolog.Logger
	now        func() time.Time
}

type GameServiceOpt func(*gameService)

func WithStrategist(st *Strategist) GameServiceOpt {
	return func(s *gameService) {
		s.strategist = st
	}
}

func WithLogger(logger zerolog.Logger) GameServiceOpt {
	return func(s *gameService) {
		s.logger = logger
	}
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) GameServiceOpt {
	return func(s *gameService) {
		s.now = now
	}
}

func NewGameService(store Store, options *ServiceOptions, opts ...GameServiceOpt) GameService {
	if options == nil {
		options = NewServiceOptions()
	}
	s := &gameService{
		store:      store,
		options:    options,
		strategist: NewStrategist(options.Cleverness),
		tb:         timebank.NewTimeBank(),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// current resolves the calling player: an external identity wins, then
// a live session token, and failing both a fresh anonymous player is
// minted and its session token handed back through the context.
func (s *gameService) current(rc *RequestContext) (*Player, error) {
	if rc.player != nil {
		// Refresh so settled counters and the update serial are current.
		if p, err := s.store.GetPlayer(rc.player.ID); err == nil {
			rc.player = p
		}
		return rc.player, nil
	}
	now := s.now()

	if rc.Identity != nil {
		p, err := s.store.GetPlayerByUser(rc.Identity.Handle)
		if err == nil {
			rc.player = p
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		p = NewUserPlayer(rc.Identity.Handle, "")
		nick := rc.Identity.Nickname
		if ValidateNickname(nick) != nil {
			nick = "Player " + p.ID[:4]
		}
		p.Nickname = nick
		if err := s.store.CreatePlayer(p); err != nil {
			return nil, err
		}
		s.logger.Info().Str("player_id", p.ID).Str("user", p.User).Msg("player created")
		rc.player = p
		return p, nil
	}

	if rc.SessionToken != "" {
		p, err := s.store.GetPlayerBySession(rc.SessionToken, now)
		if err == nil {
			rc.player = p
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	p := NewAnonymousPlayer(now)
	p.SessionExpiry = now.Add(s.options.SessionTTL).Unix()
	if err := s.store.CreatePlayer(p); err != nil {
		return nil, err
	}
	rc.IssuedToken = p.SessionToken
	rc.IssuedExpiry = time.Unix(p.SessionExpiry, 0)
	rc.player = p
	s.logger.Debug().Str("player_id", p.ID).Msg("anonymous player minted")
	return p, nil
}

// loadGame fetches a game with its rule set attached.
func (s *gameService) loadGame(id string) (*Game, error) {
	g, err := s.store.GetGame(id)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.GetRuleSet(g.RuleSetID)
	if err != nil {
		return nil, err
	}
	g.AttachRuleSet(rs)
	return g, nil
}

func (s *gameService) buildStatus(g *Game, p *Player) (*GameStatus, error) {
	board, err := g.Board()
	if err != nil {
		return nil, err
	}
	return &GameStatus{
		Players:       append([]string(nil), g.PlayerNames...),
		Board:         board.Grid(),
		PlayingAs:     g.Seat(p.ID),
		CurrentPlayer: g.CurrentPlayer,
		State:         g.State,
		Turn:          g.Turn,
		RuleSetID:     g.RuleSetID,
	}, nil
}

// applyMove commits one stone and, on a terminal transition, settles
// the rating counters. The game write goes first: a concurrent update
// fails the whole command before any counter is touched. Counter and
// rule set writes after a committed game are best-effort.
func (s *gameService) applyMove(g *Game, playerID string, x, y int) error {
	now := s.now()
	if err := g.Move(playerID, x, y, now); err != nil {
		return err
	}
	if err := s.store.UpdateGame(g); err != nil {
		return err
	}

	switch g.State {
	case GameState_Win:
		s.logger.Info().Str("game_id", g.ID).Int("seat", g.CurrentPlayer).Msg("game won")
		s.settle(g, g.CurrentPlayer)
	case GameState_Draw:
		s.logger.Info().Str("game_id", g.ID).Msg("game drawn")
		s.settle(g, 0)
	}
	return nil
}

// settle bumps win/loss or draw counters for every seat and the rule
// set's game count. winner is 0 for a draw.
func (s *gameService) settle(g *Game, winner int) {
	for i, pid := range g.Players {
		p, err := s.store.GetPlayer(pid)
		if err != nil {
			s.logger.Warn().Err(err).Str("player_id", pid).Msg("settle: load player")
			continue
		}
		switch {
		case winner == 0:
			p.Draws++
		case i+1 == winner:
			p.Wins++
		default:
			p.Losses++
		}
		if err := s.store.UpdatePlayer(p); err != nil {
			s.logger.Warn().Err(err).Str("player_id", pid).Msg("settle: update player")
		}
	}

	rs := g.RuleSet()
	rs.NumGames++
	if err := s.store.UpdateRuleSet(rs); err != nil {
		s.logger.Warn().Err(err).Str("rule_set_id", rs.ID).Msg("settle: update rule set")
	}
}

// advanceCPU plays CPU turns until the game ends or a human is up.
// An all-CPU game therefore runs to completion in one burst.
func (s *gameService) advanceCPU(g *Game) error {
	rs := g.RuleSet()
	limit := rs.M*rs.N + 1
	for moves := 0; g.State == GameState_Playing && moves < limit; moves++ {
		pid := g.Players[g.CurrentPlayer-1]
		p, err := s.store.GetPlayer(pid)
		if err != nil {
			return err
		}
		if !p.IsCPU() {
			return nil
		}
		board, err := g.Board()
		if err != nil {
			return err
		}
		x, y, err := s.strategist.ChooseMove(board, rs, g.CurrentPlayer, rs.TurnsLeft(g.Turn))
		if err != nil {
			return err
		}
		if err := s.applyMove(g, pid, x, y); err != nil {
			return err
		}
	}
	return nil
}

func (s *gameService) CreateGame(rc *RequestContext, ruleSetID string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rs, err := s.store.GetRuleSet(ruleSetID)
	if err != nil {
		return "", err
	}
	p, err := s.current(rc)
	if err != nil {
		return "", err
	}

	g := NewGame(rs, s.now())
	if err := g.AddPlayer(p, s.now()); err != nil {
		return "", err
	}
	if err := s.store.CreateGame(g); err != nil {
		return "", err
	}
	s.logger.Info().Str("game_id", g.ID).Str("rule_set_id", rs.ID).Msg("game created")
	return g.ID, nil
}

func (s *gameService) JoinGame(rc *RequestContext, gameID string) (*GameStatus, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	g, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	if err := g.AddPlayer(p, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateGame(g); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("game_id", g.ID).Str("player_id", p.ID).Msg("player joined")

	// The shuffled seating may put a CPU first.
	if err := s.advanceCPU(g); err != nil {
		return nil, err
	}
	return s.buildStatus(g, p)
}

func (s *gameService) LeaveGame(rc *RequestContext, gameID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	g, err := s.loadGame(gameID)
	if err != nil {
		return err
	}
	p, err := s.current(rc)
	if err != nil {
		return err
	}
	if err := g.RemovePlayer(p.ID, s.now()); err != nil {
		return err
	}

	if g.State == GameState_Waiting && !s.hasHuman(g) {
		if err := s.store.DeleteGame(g.ID); err != nil {
			return err
		}
		s.logger.Debug().Str("game_id", g.ID).Msg("empty game deleted")
		return nil
	}
	if err := s.store.UpdateGame(g); err != nil {
		return err
	}
	s.logger.Debug().Str("game_id", g.ID).Str("player_id", p.ID).Msg("player left")
	return nil
}

func (s *gameService) hasHuman(g *Game) bool {
	for _, pid := range g.Players {
		p, err := s.store.GetPlayer(pid)
		if err != nil {
			continue
		}
		if !p.IsCPU() {
			return true
		}
	}
	return false
}

func (s *gameService) AddCPUPlayer(rc *RequestContext, gameID string) (*GameStatus, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	g, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	if g.Seat(p.ID) == 0 {
		return nil, fmt.Errorf("%w: only a seated player may add one", ErrCPUWithoutSeat)
	}

	cpu := NewCPUPlayer()
	if err := s.store.CreatePlayer(cpu); err != nil {
		return nil, err
	}
	if err := g.AddPlayer(cpu, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateGame(g); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("game_id", g.ID).Str("cpu_id", cpu.ID).Msg("cpu player added")

	if err := s.advanceCPU(g); err != nil {
		return nil, err
	}
	return s.buildStatus(g, p)
}

func (s *gameService) CPUBattle(rc *RequestContext, ruleSetID string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	rs, err := s.store.GetRuleSet(ruleSetID)
	if err != nil {
		return "", err
	}
	if _, err := s.current(rc); err != nil {
		return "", err
	}

	g := NewGame(rs, s.now())
	if err := s.store.CreateGame(g); err != nil {
		return "", err
	}

	// Every CPU seat checks in through the ready group; once all are
	// seated (or the timeout force-readies stragglers) the first
	// advancement burst is scheduled.
	rg := syncsaga.NewReadyGroup(
		syncsaga.WithTimeout(5, func(rg *syncsaga.ReadyGroup) {
			for seat, isReady := range rg.GetParticipantStates() {
				if !isReady {
					rg.Ready(seat)
				}
			}
		}),
	)
	for seat := 0; seat < rs.NumPlayers; seat++ {
		rg.Add(int64(seat), false)
	}
	gameID := g.ID
	rg.OnCompleted(func(rg *syncsaga.ReadyGroup) {
		s.tb.NewTask(s.options.CPUBattleDelay, func(isCancelled bool) {
			if isCancelled {
				return
			}
			if err := s.runBattle(gameID); err != nil {
				s.logger.Warn().Err(err).Str("game_id", gameID).Msg("cpu battle failed")
			}
		})
	})
	rg.Start()

	for seat := 0; seat < rs.NumPlayers; seat++ {
		cpu := NewCPUPlayer()
		if err := s.store.CreatePlayer(cpu); err != nil {
			return "", err
		}
		if err := g.AddPlayer(cpu, s.now()); err != nil {
			return "", err
		}
		rg.Ready(int64(seat))
	}
	if err := s.store.UpdateGame(g); err != nil {
		return "", err
	}
	s.logger.Info().Str("game_id", g.ID).Str("rule_set_id", rs.ID).Msg("cpu battle created")
	return g.ID, nil
}

func (s *gameService) runBattle(gameID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	g, err := s.loadGame(gameID)
	if err != nil {
		return err
	}
	return s.advanceCPU(g)
}

func (s *gameService) Move(rc *RequestContext, gameID string, x, y int) (*GameStatus, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	g, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	if err := s.applyMove(g, p.ID, x, y); err != nil {
		return nil, err
	}
	if err := s.advanceCPU(g); err != nil {
		return nil, err
	}
	return s.buildStatus(g, p)
}

// Status plays any pending CPU turns, then snapshots the game. When
// sinceTurn is given and the turn has not moved past it, Status
// returns nil so pollers get a cheap "no change" answer.
func (s *gameService) Status(rc *RequestContext, gameID string, sinceTurn *int) (*GameStatus, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	g, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	if err := s.advanceCPU(g); err != nil {
		return nil, err
	}
	if sinceTurn != nil && g.Turn == *sinceTurn {
		return nil, nil
	}
	return s.buildStatus(g, p)
}

func (s *gameService) Games(rc *RequestContext, mode string) ([]*GameSummary, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}

	var results []*Game
	switch mode {
	case "play":
		playing, err := s.store.ListGames(GameQuery{
			States:   []string{GameState_Playing},
			PlayerID: p.ID,
		})
		if err != nil {
			return nil, err
		}
		waiting, err := s.store.ListGames(GameQuery{
			States: []string{GameState_Waiting},
			Limit:  s.options.ListLimit,
		})
		if err != nil {
			return nil, err
		}
		results = append(playing, waiting...)
	case "view":
		results, err = s.store.ListGames(GameQuery{
			States: []string{GameState_Playing},
			Limit:  s.options.ListLimit,
		})
		if err != nil {
			return nil, err
		}
	case "past":
		results, err = s.store.ListGames(GameQuery{
			States:   []string{GameState_Aborted, GameState_Win, GameState_Draw},
			PlayerID: p.ID,
			Limit:    s.options.ListLimit,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: invalid mode %q", ErrInvalidArgument, mode)
	}

	now := s.now()
	summaries := make([]*GameSummary, 0, len(results))
	for _, g := range results {
		age := now.Sub(time.Unix(g.LastUpdate, 0))
		if (g.State == GameState_Waiting && age > s.options.WaitingGameTTL) ||
			(g.State == GameState_Playing && age > s.options.PlayingGameTTL) {
			// Abort at most one abandoned game per listing to spread
			// the cleanup load over requests; it is not listed.
			if err := g.Abort(now); err == nil {
				if err := s.store.UpdateGame(g); err != nil {
					s.logger.Warn().Err(err).Str("game_id", g.ID).Msg("sweep: abort game")
				} else {
					s.logger.Info().Str("game_id", g.ID).Msg("abandoned game aborted")
				}
			}
			break
		}
		summaries = append(summaries, &GameSummary{
			ID:            g.ID,
			Players:       append([]string(nil), g.PlayerNames...),
			PlayingAs:     g.Seat(p.ID),
			CurrentPlayer: g.CurrentPlayer,
			State:         g.State,
			Turn:          g.Turn,
			RuleSetID:     g.RuleSetID,
			LastUpdate:    g.LastUpdate,
		})
	}
	return summaries, nil
}

func (s *gameService) playerInfo(rc *RequestContext, p *Player) *PlayerInfo {
	return &PlayerInfo{
		Nickname:  p.Nickname,
		Anonymous: p.IsAnonymous(),
		Wins:      p.Wins,
		Losses:    p.Losses,
		Draws:     p.Draws,
		LogURL:    rc.LogURL,
	}
}

func (s *gameService) PlayerInfo(rc *RequestContext) (*PlayerInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	return s.playerInfo(rc, p), nil
}

func (s *gameService) ChangeNickname(rc *RequestContext, nickname string) (*PlayerInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	if p.PasswordHash != "" {
		// Registered nicknames are the log-in key, so they stay unique.
		other, err := s.store.GetPlayerByNickname(nickname)
		if err == nil && other.ID != p.ID {
			return nil, fmt.Errorf("%w: nickname taken", ErrInvalidNickname)
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if err := p.Rename(nickname); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePlayer(p); err != nil {
		return nil, err
	}
	s.propagateNickname(p)
	return s.playerInfo(rc, p), nil
}

// propagateNickname rewrites the cached player name in the player's
// non-terminal games. Failures only degrade the caches, so they are
// logged and skipped.
func (s *gameService) propagateNickname(p *Player) {
	games, err := s.store.ListGames(GameQuery{
		States:   []string{GameState_Waiting, GameState_Playing},
		PlayerID: p.ID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("player_id", p.ID).Msg("rename: list games")
		return
	}
	for _, g := range games {
		seat := g.Seat(p.ID)
		if seat == 0 {
			continue
		}
		g.PlayerNames[seat-1] = p.Nickname
		if err := s.store.UpdateGame(g); err != nil {
			s.logger.Warn().Err(err).Str("game_id", g.ID).Msg("rename: update game")
		}
	}
}

func (s *gameService) CreateRuleSet(rc *RequestContext, name string, m, n, k, p, q, numPlayers int, exact bool) (*RuleSetInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	caller, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	rs, err := NewRuleSet(name, m, n, k, p, q, numPlayers, exact)
	if err != nil {
		return nil, err
	}
	rs.Author = caller.Nickname
	if err := s.store.CreateRuleSet(rs); err != nil {
		return nil, err
	}
	s.logger.Info().Str("rule_set_id", rs.ID).Str("name", rs.Name).Msg("rule set created")
	return ruleSetInfo(rs), nil
}

func (s *gameService) RuleSets(rc *RequestContext) ([]*RuleSetInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, err := s.current(rc); err != nil {
		return nil, err
	}
	ruleSets, err := s.store.ListRuleSets()
	if err != nil {
		return nil, err
	}
	out := make([]*RuleSetInfo, 0, len(ruleSets))
	for _, rs := range ruleSets {
		out = append(out, ruleSetInfo(rs))
	}
	return out, nil
}

func (s *gameService) Register(rc *RequestContext, nickname, password string) (*PlayerInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.current(rc)
	if err != nil {
		return nil, err
	}
	if !p.IsAnonymous() {
		return nil, fmt.Errorf("%w: already registered", ErrRegisterFailed)
	}
	if err := ValidateNickname(nickname); err != nil {
		return nil, fmt.Errorf("%w: invalid nickname", ErrRegisterFailed)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrRegisterFailed)
	}
	if _, err := s.store.GetPlayerByNickname(nickname); err == nil {
		return nil, fmt.Errorf("%w: nickname taken", ErrRegisterFailed)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// The anonymous row is upgraded in place so running games keep
	// their seats.
	p.User = strings.ToLower(nickname) + "@" + UserDomain
	p.Nickname = nickname
	p.PasswordHash = HashPassword(password)
	if err := s.store.UpdatePlayer(p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("player_id", p.ID).Str("user", p.User).Msg("player registered")
	s.propagateNickname(p)
	return s.playerInfo(rc, p), nil
}

func (s *gameService) LogIn(rc *RequestContext, nickname, password string) (*PlayerInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, err := s.store.GetPlayerByNickname(nickname)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrLogInFailed
		}
		return nil, err
	}
	if p.PasswordHash != HashPassword(password) {
		return nil, ErrLogInFailed
	}

	now := s.now()
	p.SessionToken = NewSessionToken()
	p.SessionExpiry = now.Add(s.options.SessionTTL).Unix()
	if err := s.store.UpdatePlayer(p); err != nil {
		return nil, err
	}
	rc.IssuedToken = p.SessionToken
	rc.IssuedExpiry = time.Unix(p.SessionExpiry, 0)
	rc.player = p
	s.logger.Info().Str("player_id", p.ID).Msg("player logged in")
	return s.playerInfo(rc, p), nil
}

func (s *gameService) LogOut(rc *RequestContext) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	rc.ClearSession = true
	rc.player = nil
	if rc.SessionToken == "" {
		return nil
	}
	p, err := s.store.GetPlayerBySession(rc.SessionToken, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	p.SessionToken = ""
	p.SessionExpiry = 0
	if err := s.store.UpdatePlayer(p); err != nil {
		return err
	}
	s.logger.Info().Str("player_id", p.ID).Msg("player logged out")
	return nil
}
