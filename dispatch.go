package monkey

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Response is the wire envelope of every dispatched command. Status is
// "success" or "error"; on error the response body carries the error
// type from the taxonomy and a message.
type Response struct {
	Status   string `json:"status"`
	Response any    `json:"response"`
}

// ErrorBody is the response payload of a failed command.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type commandSpec struct {
	params  []string
	handler func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error)
}

// The command registry. Parameter values arrive as JSON; the handlers
// decode and type-check them before calling into the service.
var commands = map[string]commandSpec{
	"create_game": {
		params: []string{"rule_set"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			ruleSet, err := argString(args, "rule_set")
			if err != nil {
				return nil, err
			}
			return svc.CreateGame(rc, ruleSet)
		},
	},
	"join_game": {
		params: []string{"game"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			game, err := argString(args, "game")
			if err != nil {
				return nil, err
			}
			return svc.JoinGame(rc, game)
		},
	},
	"leave_game": {
		params: []string{"game"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			game, err := argString(args, "game")
			if err != nil {
				return nil, err
			}
			return true, svc.LeaveGame(rc, game)
		},
	},
	"add_cpu_player": {
		params: []string{"game"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			game, err := argString(args, "game")
			if err != nil {
				return nil, err
			}
			return svc.AddCPUPlayer(rc, game)
		},
	},
	"cpu_battle": {
		params: []string{"rule_set"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			ruleSet, err := argString(args, "rule_set")
			if err != nil {
				return nil, err
			}
			return svc.CPUBattle(rc, ruleSet)
		},
	},
	"put_tile": {
		params: []string{"game", "x", "y"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			game, err := argString(args, "game")
			if err != nil {
				return nil, err
			}
			x, err := argInt(args, "x")
			if err != nil {
				return nil, err
			}
			y, err := argInt(args, "y")
			if err != nil {
				return nil, err
			}
			return svc.Move(rc, game, x, y)
		},
	},
	"get_game_status": {
		params: []string{"game", "turn"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			game, err := argString(args, "game")
			if err != nil {
				return nil, err
			}
			turn, err := optInt(args, "turn")
			if err != nil {
				return nil, err
			}
			status, err := svc.Status(rc, game, turn)
			if err != nil {
				return nil, err
			}
			if status == nil {
				// No change since the caller's turn.
				return false, nil
			}
			return status, nil
		},
	},
	"get_games": {
		params: []string{"mode"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			mode, err := argStringDefault(args, "mode", "play")
			if err != nil {
				return nil, err
			}
			return svc.Games(rc, mode)
		},
	},
	"get_player_info": {
		params: []string{},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			return svc.PlayerInfo(rc)
		},
	},
	"change_nickname": {
		params: []string{"nickname"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			nickname, err := argString(args, "nickname")
			if err != nil {
				return nil, err
			}
			return svc.ChangeNickname(rc, nickname)
		},
	},
	"create_rule_set": {
		params: []string{"name", "m", "n", "k", "p", "q", "num_players"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			name, err := argString(args, "name")
			if err != nil {
				return nil, err
			}
			m, err := argInt(args, "m")
			if err != nil {
				return nil, err
			}
			n, err := argInt(args, "n")
			if err != nil {
				return nil, err
			}
			k, err := argInt(args, "k")
			if err != nil {
				return nil, err
			}
			p, err := argIntDefault(args, "p", 1)
			if err != nil {
				return nil, err
			}
			q, err := argIntDefault(args, "q", 1)
			if err != nil {
				return nil, err
			}
			numPlayers, err := argIntDefault(args, "num_players", 2)
			if err != nil {
				return nil, err
			}
			return svc.CreateRuleSet(rc, name, m, n, k, p, q, numPlayers, false)
		},
	},
	"get_rule_sets": {
		params: []string{},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			return svc.RuleSets(rc)
		},
	},
	"register": {
		params: []string{"nickname", "password"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			nickname, err := argString(args, "nickname")
			if err != nil {
				return nil, err
			}
			password, err := argString(args, "password")
			if err != nil {
				return nil, err
			}
			return svc.Register(rc, nickname, password)
		},
	},
	"log_in": {
		params: []string{"nickname", "password"},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			nickname, err := argString(args, "nickname")
			if err != nil {
				return nil, err
			}
			password, err := argString(args, "password")
			if err != nil {
				return nil, err
			}
			return svc.LogIn(rc, nickname, password)
		},
	},
	"log_out": {
		params: []string{},
		handler: func(svc GameService, rc *RequestContext, args map[string]json.RawMessage) (any, error) {
			return true, svc.LogOut(rc)
		},
	},
}

// Commands returns the registry table: command name to parameter
// names, sorted by name. It backs the "commands" meta-command.
func Commands() []map[string]any {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	table := make([]map[string]any, 0, len(names))
	for _, name := range names {
		table = append(table, map[string]any{
			"name":       name,
			"parameters": commands[name].params,
		})
	}
	return table
}

// Dispatch runs one named command against the service and wraps the
// result in the wire envelope. Unknown commands fail like any other
// invalid argument.
func Dispatch(svc GameService, rc *RequestContext, name string, args map[string]json.RawMessage) *Response {
	var result any
	var err error
	if name == "commands" {
		result = Commands()
	} else if cmd, ok := commands[name]; ok {
		result, err = cmd.handler(svc, rc, args)
	} else {
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if err != nil {
		return &Response{
			Status: "error",
			Response: &ErrorBody{
				Type:    Kind(err),
				Message: err.Error(),
			},
		}
	}
	return &Response{Status: "success", Response: result}
}

func argRaw(args map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := args[name]
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing parameter %q", ErrInvalidArgument, name)
	}
	return raw, nil
}

func argString(args map[string]json.RawMessage, name string) (string, error) {
	raw, err := argRaw(args, name)
	if err != nil {
		return "", err
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: parameter %q must be a string", ErrInvalidArgument, name)
	}
	return v, nil
}

func argStringDefault(args map[string]json.RawMessage, name, def string) (string, error) {
	if _, ok := args[name]; !ok {
		return def, nil
	}
	return argString(args, name)
}

func argInt(args map[string]json.RawMessage, name string) (int, error) {
	raw, err := argRaw(args, name)
	if err != nil {
		return 0, err
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: parameter %q must be an integer", ErrInvalidArgument, name)
	}
	return v, nil
}

func argIntDefault(args map[string]json.RawMessage, name string, def int) (int, error) {
	if _, ok := args[name]; !ok {
		return def, nil
	}
	return argInt(args, name)
}

func optInt(args map[string]json.RawMessage, name string) (*int, error) {
	raw, ok := args[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: parameter %q must be an integer", ErrInvalidArgument, name)
	}
	return &v, nil
}
