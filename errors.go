package monkey

import "errors"

var (
	// Join errors
	ErrAlreadyInGame = errors.New("game: player is already in game")
	ErrGameFull      = errors.New("game: game is full")
	ErrNotAccepting  = errors.New("game: game is not accepting new players")

	// Move errors
	ErrNotInGame       = errors.New("game: player is not in game")
	ErrNotPlaying      = errors.New("game: game is not in play")
	ErrNotYourTurn     = errors.New("game: not player's turn")
	ErrInvalidPosition = errors.New("game: invalid tile position")

	// Leave/abort errors
	ErrNotSeated    = errors.New("game: player has no seat in game")
	ErrGameOver     = errors.New("game: game is already over")
	ErrTerminalGame = errors.New("game: game has already ended")

	// CPU errors
	ErrCPUWithoutSeat = errors.New("cpu: no seat in game")

	// Rule set errors
	ErrNotSupported       = errors.New("rules: exact k-in-a-row is not supported")
	ErrInvalidRuleSet     = errors.New("rules: invalid rule set")
	ErrInvalidRuleSetName = errors.New("rules: invalid rule set name")

	// Registry errors
	ErrInvalidNickname = errors.New("player: invalid nickname")
	ErrLogInFailed     = errors.New("player: log in failed")
	ErrRegisterFailed  = errors.New("player: registration failed")

	// Facade errors
	ErrInvalidArgument = errors.New("service: invalid argument")
	ErrUnknownCommand  = errors.New("service: unknown command")

	// Store errors
	ErrNotFound         = errors.New("store: not found")
	ErrConcurrentUpdate = errors.New("store: concurrent update")
)

// Kind maps an error to its wire taxonomy name, the "type" field of the
// error envelope.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyInGame), errors.Is(err, ErrGameFull), errors.Is(err, ErrNotAccepting):
		return "JoinError"
	case errors.Is(err, ErrNotInGame), errors.Is(err, ErrNotPlaying),
		errors.Is(err, ErrNotYourTurn), errors.Is(err, ErrInvalidPosition):
		return "MoveError"
	case errors.Is(err, ErrNotSeated), errors.Is(err, ErrGameOver):
		return "LeaveError"
	case errors.Is(err, ErrTerminalGame):
		return "AbortError"
	case errors.Is(err, ErrCPUWithoutSeat):
		return "CpuError"
	case errors.Is(err, ErrNotSupported):
		return "NotSupported"
	case errors.Is(err, ErrInvalidNickname):
		return "PlayerNameError"
	case errors.Is(err, ErrLogInFailed):
		return "LogInError"
	case errors.Is(err, ErrRegisterFailed):
		return "RegisterError"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrUnknownCommand),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidRuleSet),
		errors.Is(err, ErrInvalidRuleSetName):
		return "InvalidArgument"
	case errors.Is(err, ErrConcurrentUpdate):
		return "ConcurrentUpdate"
	default:
		return "InternalError"
	}
}
