package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	monkey "github.com/blixt/monkey"
)

const sessionCookie = "session"

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dbPath := flag.String("db", "monkey.db", "sqlite database path")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	}

	store, err := monkey.NewSQLiteStore(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", *dbPath).Msg("open store")
	}
	defer store.Close()

	svc := monkey.NewGameService(store, monkey.NewServiceOptions(), monkey.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/game/", &serviceHandler{svc: svc, logger: logger})

	logger.Info().Str("addr", *addr).Str("db", *dbPath).Msg("monkeyd listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// serviceHandler maps /game/<command> onto the command registry. Each
// query parameter is decoded as a JSON value (bare words count as
// strings); a POST body may carry the parameters as a JSON object
// instead, with query parameters taking precedence.
type serviceHandler struct {
	svc    monkey.GameService
	logger zerolog.Logger
}

func (h *serviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/game/")

	args := map[string]json.RawMessage{}
	if r.Method == http.MethodPost {
		err := json.NewDecoder(r.Body).Decode(&args)
		if err != nil && !errors.Is(err, io.EOF) {
			h.logger.Debug().Err(err).Str("command", name).Msg("bad request body")
			writeResponse(w, h.logger, &monkey.Response{
				Status: "error",
				Response: &monkey.ErrorBody{
					Type:    "InvalidArgument",
					Message: "request body is not a JSON object",
				},
			})
			return
		}
	}
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		raw := []byte(values[0])
		if json.Valid(raw) {
			args[key] = json.RawMessage(raw)
		} else {
			quoted, _ := json.Marshal(values[0])
			args[key] = quoted
		}
	}

	rc := &monkey.RequestContext{}
	if c, err := r.Cookie(sessionCookie); err == nil {
		rc.SessionToken = c.Value
	}

	resp := monkey.Dispatch(h.svc, rc, name, args)

	switch {
	case rc.ClearSession:
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
		})
	case rc.IssuedToken != "":
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    rc.IssuedToken,
			Path:     "/",
			Expires:  rc.IssuedExpiry,
			HttpOnly: true,
		})
	}

	writeResponse(w, h.logger, resp)
}

func writeResponse(w http.ResponseWriter, logger zerolog.Logger, resp *monkey.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn().Err(err).Msg("write response")
	}
}
