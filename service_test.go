package monkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T) (GameService, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	svc := NewGameService(store, NewServiceOptions(),
		WithClock(clock.now),
		WithStrategist(fixedStrategist()),
	)
	return svc, store, clock
}

func createTicTacToe(t *testing.T, svc GameService, rc *RequestContext) string {
	t.Helper()
	rs, err := svc.CreateRuleSet(rc, "Tic-tac-toe", 3, 3, 3, 1, 1, 2, false)
	require.NoError(t, err)
	return rs.ID
}

func TestServiceTwoHumansPlayToWin(t *testing.T) {
	svc, _, _ := newTestService(t)
	rcA, rcB := &RequestContext{}, &RequestContext{}

	rsID := createTicTacToe(t, svc, rcA)
	gameID, err := svc.CreateGame(rcA, rsID)
	require.NoError(t, err)

	stB, err := svc.JoinGame(rcB, gameID)
	require.NoError(t, err)
	require.Equal(t, GameState_Playing, stB.State)
	require.Equal(t, 0, stB.Turn)

	stA, err := svc.Status(rcA, gameID, nil)
	require.NoError(t, err)
	require.NotEqual(t, stA.PlayingAs, stB.PlayingAs)

	bySeat := map[int]*RequestContext{
		stA.PlayingAs: rcA,
		stB.PlayingAs: rcB,
	}

	// Seat 1 takes the diagonal; seat 2 fills the top row.
	moves := []struct {
		seat, x, y int
	}{
		{1, 0, 0}, {2, 1, 0}, {1, 1, 1}, {2, 2, 0}, {1, 2, 2},
	}
	var last *GameStatus
	for _, mv := range moves {
		last, err = svc.Move(bySeat[mv.seat], gameID, mv.x, mv.y)
		require.NoError(t, err)
	}
	require.Equal(t, GameState_Win, last.State)
	require.Equal(t, 1, last.CurrentPlayer)
	assert.Equal(t, 5, last.Turn)

	winInfo, err := svc.PlayerInfo(bySeat[1])
	require.NoError(t, err)
	assert.Equal(t, 1, winInfo.Wins)
	assert.Equal(t, 0, winInfo.Losses)

	loseInfo, err := svc.PlayerInfo(bySeat[2])
	require.NoError(t, err)
	assert.Equal(t, 1, loseInfo.Losses)
	assert.Equal(t, 0, loseInfo.Wins)

	sets, err := svc.RuleSets(rcA)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, 1, sets[0].NumGames)

	// Moving in a finished game fails.
	_, err = svc.Move(bySeat[2], gameID, 0, 1)
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestServiceDrawSettlesAllSeats(t *testing.T) {
	svc, _, _ := newTestService(t)
	rcA, rcB := &RequestContext{}, &RequestContext{}

	rsID := createTicTacToe(t, svc, rcA)
	gameID, err := svc.CreateGame(rcA, rsID)
	require.NoError(t, err)
	stB, err := svc.JoinGame(rcB, gameID)
	require.NoError(t, err)
	stA, err := svc.Status(rcA, gameID, nil)
	require.NoError(t, err)

	bySeat := map[int]*RequestContext{
		stA.PlayingAs: rcA,
		stB.PlayingAs: rcB,
	}
	moves := []struct {
		seat, x, y int
	}{
		{1, 0, 0}, {2, 1, 0}, {1, 2, 0},
		{2, 0, 1}, {1, 2, 1}, {2, 1, 1},
		{1, 0, 2}, {2, 2, 2}, {1, 1, 2},
	}
	var last *GameStatus
	for _, mv := range moves {
		last, err = svc.Move(bySeat[mv.seat], gameID, mv.x, mv.y)
		require.NoError(t, err)
	}
	require.Equal(t, GameState_Draw, last.State)
	require.Equal(t, 9, last.Turn)

	for seat, rc := range bySeat {
		info, err := svc.PlayerInfo(rc)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Draws, "seat %d", seat)
		assert.Zero(t, info.Wins)
		assert.Zero(t, info.Losses)
	}

	sets, err := svc.RuleSets(rcA)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, 1, sets[0].NumGames)
}

func TestServiceJoinGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	rcA, rcB, rcC := &RequestContext{}, &RequestContext{}, &RequestContext{}

	rsID := createTicTacToe(t, svc, rcA)
	gameID, err := svc.CreateGame(rcA, rsID)
	require.NoError(t, err)

	_, err = svc.JoinGame(rcA, gameID)
	assert.ErrorIs(t, err, ErrAlreadyInGame)

	_, err = svc.JoinGame(rcB, gameID)
	require.NoError(t, err)

	_, err = svc.JoinGame(rcC, gameID)
	assert.ErrorIs(t, err, ErrGameFull)

	_, err = svc.JoinGame(rcC, "no-such-game")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceCPUOpponentPlaysToCompletion(t *testing.T) {
	svc, _, _ := newTestService(t)
	rc := &RequestContext{}

	rsID := createTicTacToe(t, svc, rc)
	gameID, err := svc.CreateGame(rc, rsID)
	require.NoError(t, err)

	st, err := svc.AddCPUPlayer(rc, gameID)
	require.NoError(t, err)
	require.Equal(t, GameState_Playing, st.State)
	// Any CPU turns before the human's have already been played.
	require.Equal(t, st.PlayingAs, st.CurrentPlayer)

	for st.State == GameState_Playing {
		moved := false
		for y := 0; y < 3 && !moved; y++ {
			for x := 0; x < 3 && !moved; x++ {
				if st.Board[x][y] != 0 {
					continue
				}
				st, err = svc.Move(rc, gameID, x, y)
				require.NoError(t, err)
				moved = true
			}
		}
		require.True(t, moved, "no empty cell left in a playing game")
	}

	assert.Contains(t, []string{GameState_Win, GameState_Draw}, st.State)

	info, err := svc.PlayerInfo(rc)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Wins+info.Losses+info.Draws)
}

func TestServiceAddCPURequiresSeat(t *testing.T) {
	svc, _, _ := newTestService(t)
	rcA, rcB := &RequestContext{}, &RequestContext{}

	rsID := createTicTacToe(t, svc, rcA)
	gameID, err := svc.CreateGame(rcA, rsID)
	require.NoError(t, err)

	_, err = svc.AddCPUPlayer(rcB, gameID)
	assert.ErrorIs(t, err, ErrCPUWithoutSeat)
}

func TestServiceCPUBattleFinishesOnPoll(t *testing.T) {
	svc, _, _ := newTestService(t)
	rc := &RequestContext{}

	rsID := createTicTacToe(t, svc, rc)
	gameID, err := svc.CPUBattle(rc, rsID)
	require.NoError(t, err)

	st, err := svc.Status(rc, gameID, nil)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Contains(t, []string{GameState_Win, GameState_Draw}, st.State)
	assert.Equal(t, 0, st.PlayingAs)
	assert.Equal(t, []string{"CPU", "CPU"}, st.Players)
}

func TestServiceStatusNoChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	rc := &RequestContext{}

	rsID := createTicTacToe(t, svc, rc)
	gameID, err := svc.CreateGame(rc, rsID)
	require.NoError(t, err)

	st, err := svc.Status(rc, gameID, nil)
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, -1, st.Turn)

	unchanged, err := svc.Status(rc, gameID, &st.Turn)
	require.NoError(t, err)
	assert.Nil(t, unchanged)
}

func TestServiceLeaveDeletesHumanlessWaitingGame(t *testing.T) {
	svc, store, _ := newTestService(t)
	rc := &RequestContext{}

	rs, err := svc.CreateRuleSet(rc, "Three-way", 9, 9, 5, 1, 1, 3, false)
	require.NoError(t, err)
	gameID, err := svc.CreateGame(rc, rs.ID)
	require.NoError(t, err)

	_, err = svc.AddCPUPlayer(rc, gameID)
	require.NoError(t, err)

	require.NoError(t, svc.LeaveGame(rc, gameID))
	_, err = store.GetGame(gameID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceLeaveWhilePlayingAborts(t *testing.T) {
	svc, store, _ := newTestService(t)
	rcA, rcB := &RequestContext{}, &RequestContext{}

	rsID := createTicTacToe(t, svc, rcA)
	gameID, err := svc.CreateGame(rcA, rsID)
	require.NoError(t, err)
	_, err = svc.JoinGame(rcB, gameID)
	require.NoError(t, err)

	require.NoError(t, svc.LeaveGame(rcA, gameID))
	g, err := store.GetGame(gameID)
	require.NoError(t, err)
	assert.Equal(t, GameState_Aborted, g.State)

	err = svc.LeaveGame(rcB, gameID)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestServiceListModesAndSweep(t *testing.T) {
	svc, store, clock := newTestService(t)
	rc := &RequestContext{}

	rsID := createTicTacToe(t, svc, rc)
	gameID, err := svc.CreateGame(rc, rsID)
	require.NoError(t, err)

	games, err := svc.Games(rc, "play")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, gameID, games[0].ID)
	assert.Equal(t, 1, games[0].PlayingAs)
	assert.Equal(t, GameState_Waiting, games[0].State)

	games, err = svc.Games(rc, "view")
	require.NoError(t, err)
	assert.Empty(t, games, "waiting games are not viewable")

	_, err = svc.Games(rc, "bogus")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Seven hours of silence and the waiting game is swept.
	clock.advance(7 * time.Hour)
	games, err = svc.Games(rc, "play")
	require.NoError(t, err)
	assert.Empty(t, games)

	g, err := store.GetGame(gameID)
	require.NoError(t, err)
	assert.Equal(t, GameState_Aborted, g.State)

	games, err = svc.Games(rc, "past")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, GameState_Aborted, games[0].State)
}

func TestServiceAnonymousSessionLifecycle(t *testing.T) {
	svc, _, clock := newTestService(t)

	rc := &RequestContext{}
	info, err := svc.PlayerInfo(rc)
	require.NoError(t, err)
	assert.True(t, info.Anonymous)
	require.NotEmpty(t, rc.IssuedToken)

	// The token resumes the same player.
	resumed := &RequestContext{SessionToken: rc.IssuedToken}
	_, err = svc.PlayerInfo(resumed)
	require.NoError(t, err)
	assert.Empty(t, resumed.IssuedToken, "no new session for a live one")

	// An expired token mints a fresh player.
	clock.advance(SessionTTL + time.Hour)
	expired := &RequestContext{SessionToken: rc.IssuedToken}
	info, err = svc.PlayerInfo(expired)
	require.NoError(t, err)
	assert.True(t, info.Anonymous)
	assert.NotEmpty(t, expired.IssuedToken)
	assert.NotEqual(t, rc.IssuedToken, expired.IssuedToken)
}

func TestServiceRegisterLogInLogOut(t *testing.T) {
	svc, _, _ := newTestService(t)

	rc := &RequestContext{}
	info, err := svc.Register(rc, "Alice", "secret")
	require.NoError(t, err)
	assert.False(t, info.Anonymous)
	assert.Equal(t, "Alice", info.Nickname)

	_, err = svc.Register(rc, "Alice2", "other")
	assert.ErrorIs(t, err, ErrRegisterFailed, "already registered")

	_, err = svc.Register(&RequestContext{}, "Alice", "other")
	assert.ErrorIs(t, err, ErrRegisterFailed, "nickname taken")

	_, err = svc.Register(&RequestContext{}, "x", "pw")
	assert.ErrorIs(t, err, ErrRegisterFailed, "invalid nickname")

	_, err = svc.LogIn(&RequestContext{}, "Alice", "wrong")
	assert.ErrorIs(t, err, ErrLogInFailed)
	_, err = svc.LogIn(&RequestContext{}, "Nobody", "secret")
	assert.ErrorIs(t, err, ErrLogInFailed)

	login := &RequestContext{}
	info, err = svc.LogIn(login, "Alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.Nickname)
	require.NotEmpty(t, login.IssuedToken)

	resumed := &RequestContext{SessionToken: login.IssuedToken}
	info, err = svc.PlayerInfo(resumed)
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.Nickname)
	assert.False(t, info.Anonymous)

	logout := &RequestContext{SessionToken: login.IssuedToken}
	require.NoError(t, svc.LogOut(logout))
	assert.True(t, logout.ClearSession)

	// The dead token now resolves to a fresh anonymous player.
	stale := &RequestContext{SessionToken: login.IssuedToken}
	info, err = svc.PlayerInfo(stale)
	require.NoError(t, err)
	assert.True(t, info.Anonymous)
}

func TestServiceExternalIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)

	rc := &RequestContext{Identity: &Identity{Handle: "alice@example.org", Nickname: "Alice"}}
	info, err := svc.PlayerInfo(rc)
	require.NoError(t, err)
	assert.False(t, info.Anonymous)
	assert.Equal(t, "Alice", info.Nickname)
	assert.Empty(t, rc.IssuedToken, "identity callers need no session")

	again := &RequestContext{Identity: &Identity{Handle: "alice@example.org", Nickname: "Alice"}}
	rsID := createTicTacToe(t, svc, again)
	_, err = svc.CreateGame(again, rsID)
	require.NoError(t, err)

	sets, err := svc.RuleSets(again)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "Alice", sets[0].Author)
}

func TestServiceRenamePropagatesToGames(t *testing.T) {
	svc, _, _ := newTestService(t)
	rcA, rcB := &RequestContext{}, &RequestContext{}

	rs, err := svc.CreateRuleSet(rcA, "Three-way", 9, 9, 5, 1, 1, 3, false)
	require.NoError(t, err)
	gameID, err := svc.CreateGame(rcA, rs.ID)
	require.NoError(t, err)
	_, err = svc.JoinGame(rcB, gameID)
	require.NoError(t, err)

	info, err := svc.ChangeNickname(rcB, "Bobby")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", info.Nickname)

	st, err := svc.Status(rcA, gameID, nil)
	require.NoError(t, err)
	assert.Contains(t, st.Players, "Bobby")
	assert.Contains(t, st.Players, NicknameAnonymous)

	_, err = svc.ChangeNickname(rcB, "CPU")
	assert.ErrorIs(t, err, ErrInvalidNickname)
}

func TestServiceCreateGameUnknownRuleSet(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateGame(&RequestContext{}, "no-such-rule-set")
	assert.ErrorIs(t, err, ErrNotFound)
}
