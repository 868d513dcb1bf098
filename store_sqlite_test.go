package monkey

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "monkey.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreGameRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	rs := mustRuleSet(t, 3, 3, 3, 1, 1, 2)
	require.NoError(t, store.CreateRuleSet(rs))

	g := NewGame(rs, testTime)
	require.NoError(t, g.AddPlayer(testPlayer("a", "Alice"), testTime))
	require.NoError(t, g.AddPlayer(testPlayer("b", "Bob"), testTime))
	require.NoError(t, store.CreateGame(g))

	loaded, err := store.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.State, loaded.State)
	assert.Equal(t, g.Players, loaded.Players)
	assert.Equal(t, g.PlayerNames, loaded.PlayerNames)
	assert.Equal(t, g.BoardData, loaded.BoardData)
	assert.Equal(t, g.Turn, loaded.Turn)
	assert.Equal(t, g.CurrentPlayer, loaded.CurrentPlayer)

	loaded.AttachRuleSet(rs)
	require.NoError(t, loaded.Move(loaded.Players[0], 1, 1, testTime))
	require.NoError(t, store.UpdateGame(loaded))

	reloaded, err := store.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Turn)
	assert.Equal(t, loaded.BoardData, reloaded.BoardData)
	assert.Equal(t, 1, reloaded.UpdateSerial)

	require.NoError(t, store.DeleteGame(g.ID))
	_, err = store.GetGame(g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteGame(g.ID), ErrNotFound)
}

func TestSQLiteStoreOptimisticConcurrency(t *testing.T) {
	store := newTestSQLiteStore(t)
	rs := mustRuleSet(t, 3, 3, 3, 1, 1, 2)
	g := NewGame(rs, testTime)
	require.NoError(t, store.CreateGame(g))

	first, err := store.GetGame(g.ID)
	require.NoError(t, err)
	second, err := store.GetGame(g.ID)
	require.NoError(t, err)

	first.State = GameState_Aborted
	require.NoError(t, store.UpdateGame(first))

	second.State = GameState_Playing
	assert.ErrorIs(t, store.UpdateGame(second), ErrConcurrentUpdate)
}

func TestSQLiteStorePlayerRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	anon := NewAnonymousPlayer(testTime)
	require.NoError(t, store.CreatePlayer(anon))

	reg := NewUserPlayer("alice@player@mnk", "Alice")
	reg.PasswordHash = HashPassword("secret")
	require.NoError(t, store.CreatePlayer(reg))

	p, err := store.GetPlayer(anon.ID)
	require.NoError(t, err)
	assert.True(t, p.IsAnonymous())
	assert.Equal(t, anon.SessionToken, p.SessionToken)

	p, err = store.GetPlayerByUser("alice@player@mnk")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, p.ID)

	p, err = store.GetPlayerByNickname("ALICE")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, p.ID)

	p, err = store.GetPlayerBySession(anon.SessionToken, testTime)
	require.NoError(t, err)
	assert.Equal(t, anon.ID, p.ID)
	_, err = store.GetPlayerBySession(anon.SessionToken, testTime.Add(SessionTTL+1))
	assert.ErrorIs(t, err, ErrNotFound)

	p, err = store.GetPlayer(reg.ID)
	require.NoError(t, err)
	p.Wins = 3
	require.NoError(t, store.UpdatePlayer(p))
	p, err = store.GetPlayer(reg.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Wins)
	assert.Equal(t, 1, p.UpdateSerial)
}

func TestSQLiteStoreRuleSets(t *testing.T) {
	store := newTestSQLiteStore(t)

	a, err := NewRuleSet("Alpha", 3, 3, 3, 1, 1, 2, false)
	require.NoError(t, err)
	b, err := NewRuleSet("Beta", 19, 19, 6, 2, 1, 2, false)
	require.NoError(t, err)
	require.NoError(t, store.CreateRuleSet(b))
	require.NoError(t, store.CreateRuleSet(a))

	sets, err := store.ListRuleSets()
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "Alpha", sets[0].Name, "sorted by name")

	loaded, err := store.GetRuleSet(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.K)
	assert.Equal(t, 2, loaded.P)

	loaded.NumGames++
	require.NoError(t, store.UpdateRuleSet(loaded))
	loaded, err = store.GetRuleSet(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.NumGames)
	assert.Equal(t, 1, loaded.UpdateSerial)

	_, err = store.GetRuleSet("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreListGames(t *testing.T) {
	store := newTestSQLiteStore(t)
	rs := mustRuleSet(t, 3, 3, 3, 1, 1, 2)

	older := NewGame(rs, testTime)
	older.State = GameState_Playing
	older.Players = []string{"p1", "p2"}
	older.LastUpdate = 100
	require.NoError(t, store.CreateGame(older))

	newer := NewGame(rs, testTime)
	newer.State = GameState_Playing
	newer.Players = []string{"p2", "p3"}
	newer.LastUpdate = 200
	require.NoError(t, store.CreateGame(newer))

	waiting := NewGame(rs, testTime)
	waiting.LastUpdate = 300
	require.NoError(t, store.CreateGame(waiting))

	games, err := store.ListGames(GameQuery{States: []string{GameState_Playing}})
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, newer.ID, games[0].ID)

	games, err = store.ListGames(GameQuery{States: []string{GameState_Playing}, PlayerID: "p1"})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, older.ID, games[0].ID)

	games, err = store.ListGames(GameQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, waiting.ID, games[0].ID)

	// The service runs against either backend; a quick smoke check.
	svc := NewGameService(store, NewServiceOptions(), WithStrategist(fixedStrategist()))
	rc := &RequestContext{}
	rsInfo, err := svc.CreateRuleSet(rc, "Tic-tac-toe", 3, 3, 3, 1, 1, 2, false)
	require.NoError(t, err)
	gameID, err := svc.CreateGame(rc, rsInfo.ID)
	require.NoError(t, err)
	st, err := svc.AddCPUPlayer(rc, gameID)
	require.NoError(t, err)
	assert.Equal(t, GameState_Playing, st.State)
}
