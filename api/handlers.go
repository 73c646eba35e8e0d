package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tomyedwab/wifigrid/api/middleware"
	"github.com/tomyedwab/wifigrid/database"
	"github.com/tomyedwab/wifigrid/database/events"
	"github.com/tomyedwab/wifigrid/state"
)

const (
	defaultPollTimeout  = 50 * time.Second
	defaultResultsLimit = 20
)

// Config holds configuration options for the API server.
type Config struct {
	Database    *state.WifiDatabase // Required
	SecretKey   []byte              // Required unless DisableAuth is set
	DisableAuth bool                // For dev only, serve every route without a token
	AllowOrigin string              // Optional, CORS is disabled when empty
	PollTimeout time.Duration       // Optional, defaults to 50s
	Logger      *slog.Logger        // Optional, defaults to slog.Default()
}

type Server struct {
	db     *state.WifiDatabase
	dao    *state.Dao
	config Config
	logger *slog.Logger
	mux    *http.ServeMux
	chain  http.HandlerFunc
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string {
	return e.msg
}

func NewServer(config Config) (*Server, error) {
	if config.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if !config.DisableAuth && len(config.SecretKey) == 0 {
		return nil, fmt.Errorf("secret key is required when auth is enabled")
	}
	if config.PollTimeout == 0 {
		config.PollTimeout = defaultPollTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		db:     config.Database,
		dao:    config.Database.Dao(),
		config: config,
		logger: config.Logger,
		mux:    http.NewServeMux(),
	}
	s.initHandlers()
	s.chain = middleware.Chain(
		s.mux.ServeHTTP,
		middleware.EnableCrossOrigin(config.AllowOrigin),
		middleware.LogRequests(s.logger),
	)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.chain(w, r)
}

func errorStatus(err error) int {
	var conflict *database.ConflictError
	var badRequest *badRequestError
	var notFound *notFoundError
	var unknownTable *events.UnknownTableError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &badRequest), errors.As(err, &unknownTable):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleAPIResponse writes resp as JSON with the given status, or the error
// with a status derived from its type.
func (s *Server) HandleAPIResponse(w http.ResponseWriter, r *http.Request, resp interface{}, err error, status int) {
	if err != nil {
		status = errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		http.Error(w, err.Error(), status)
		return
	}
	json, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("Failed to encode response", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(json)
}

func decodeBody(r *http.Request, dest any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return &badRequestError{msg: fmt.Sprintf("Invalid request body: %v", err)}
	}
	return nil
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	if !s.config.DisableAuth {
		h = middleware.LoginRequired(s.config.SecretKey)(h)
	}
	s.mux.HandleFunc(pattern, h)
}

func (s *Server) initHandlers() {
	s.mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok")
	})

	s.handle("GET /api/networks", func(w http.ResponseWriter, r *http.Request) {
		networks, err := s.dao.GetSelectedNetworksSnapshot(r.Context())
		s.HandleAPIResponse(w, r, networks, err, http.StatusOK)
	})

	s.handle("PUT /api/networks", func(w http.ResponseWriter, r *http.Request) {
		var network state.SelectedNetwork
		err := decodeBody(r, &network)
		if err == nil && network.Ssid == "" {
			err = &badRequestError{msg: "Missing ssid"}
		}
		if err == nil {
			err = s.dao.InsertSelected(r.Context(), network)
		}
		s.HandleAPIResponse(w, r, map[string]interface{}{"status": "success", "ssid": network.Ssid}, err, http.StatusOK)
	})

	s.handle("DELETE /api/networks/{ssid}", func(w http.ResponseWriter, r *http.Request) {
		ssid := r.PathValue("ssid")
		err := s.dao.RemoveSelected(r.Context(), ssid)
		s.HandleAPIResponse(w, r, map[string]interface{}{"status": "success", "ssid": ssid}, err, http.StatusOK)
	})

	s.handle("GET /api/vault", func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.dao.GetVaultSnapshot(r.Context())
		s.HandleAPIResponse(w, r, entries, err, http.StatusOK)
	})

	s.handle("PUT /api/vault", func(w http.ResponseWriter, r *http.Request) {
		var entry state.VaultEntry
		err := decodeBody(r, &entry)
		if err == nil && entry.Ssid == "" {
			err = &badRequestError{msg: "Missing ssid"}
		}
		if err == nil {
			err = s.dao.InsertVault(r.Context(), entry)
		}
		s.HandleAPIResponse(w, r, map[string]interface{}{"status": "success", "ssid": entry.Ssid}, err, http.StatusOK)
	})

	s.handle("DELETE /api/vault/{ssid}", func(w http.ResponseWriter, r *http.Request) {
		ssid := r.PathValue("ssid")
		err := s.dao.DeleteVault(r.Context(), ssid)
		s.HandleAPIResponse(w, r, map[string]interface{}{"status": "success", "ssid": ssid}, err, http.StatusOK)
	})

	s.handle("GET /api/vault/{ssid}/password", func(w http.ResponseWriter, r *http.Request) {
		ssid := r.PathValue("ssid")
		password, ok, err := s.dao.GetPasswordFromVault(r.Context(), ssid)
		if err == nil && !ok {
			err = &notFoundError{msg: fmt.Sprintf("No password stored for %s", ssid)}
		}
		s.HandleAPIResponse(w, r, map[string]interface{}{"ssid": ssid, "password": password}, err, http.StatusOK)
	})

	s.handle("GET /api/results", func(w http.ResponseWriter, r *http.Request) {
		ssid := r.URL.Query().Get("ssid")
		if ssid == "" {
			results, err := s.dao.GetRankedResultsSnapshot(r.Context())
			s.HandleAPIResponse(w, r, results, err, http.StatusOK)
			return
		}

		limit := defaultResultsLimit
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			n, err := strconv.Atoi(limitStr)
			if err != nil || n < 0 {
				s.HandleAPIResponse(w, r, nil, &badRequestError{msg: fmt.Sprintf("Invalid limit %s", limitStr)}, 0)
				return
			}
			limit = n
		}
		results, err := s.dao.GetResultsForSsid(r.Context(), ssid, limit)
		s.HandleAPIResponse(w, r, results, err, http.StatusOK)
	})

	s.handle("GET /api/results.csv", func(w http.ResponseWriter, r *http.Request) {
		results, err := s.dao.GetRankedResultsSnapshot(r.Context())
		if err != nil {
			s.HandleAPIResponse(w, r, nil, err, 0)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", state.CsvFileName(time.Now())))
		if err := state.WriteResultsCsv(w, results, nil); err != nil {
			s.logger.Error("Failed to export results", "error", err)
		}
	})

	s.handle("POST /api/results", func(w http.ResponseWriter, r *http.Request) {
		var result state.TestResult
		err := decodeBody(r, &result)
		if err == nil && result.Ssid == "" {
			err = &badRequestError{msg: "Missing ssid"}
		}
		var id int64
		if err == nil {
			id, err = s.dao.InsertResult(r.Context(), result)
		}
		s.HandleAPIResponse(w, r, map[string]interface{}{"status": "success", "id": id}, err, http.StatusCreated)
	})

	s.handle("POST /api/clear", func(w http.ResponseWriter, r *http.Request) {
		err := s.db.ClearAllTables(r.Context())
		s.HandleAPIResponse(w, r, map[string]interface{}{"status": "success"}, err, http.StatusOK)
	})

	s.handle("GET /api/poll", s.handlePoll)
}

// handlePoll waits for a table to move past the version the client already
// has. Clients poll speculatively, so a timeout is answered with 304.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("t")
	versionStr := r.URL.Query().Get("v")
	after, err := strconv.Atoi(versionStr)
	if err != nil {
		s.HandleAPIResponse(w, r, nil, &badRequestError{msg: fmt.Sprintf("Invalid version %s", versionStr)}, 0)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.PollTimeout)
	defer cancel()

	version, advanced, err := s.db.Tracker().PollForVersion(ctx, table, after)
	if err != nil {
		s.HandleAPIResponse(w, r, nil, err, 0)
		return
	}
	if !advanced {
		http.Error(w, fmt.Sprintf("Timed out while waiting for %s version %d", table, after), http.StatusNotModified)
		return
	}
	s.HandleAPIResponse(w, r, map[string]interface{}{"table": table, "version": version}, nil, http.StatusOK)
}
