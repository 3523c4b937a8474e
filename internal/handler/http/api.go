package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/service"
)

// API carries the JSON endpoints. Caller authentication is delegated to the
// fronting gateway; user identity in request bodies arrives pre-validated.
type API struct {
	ingest   service.Ingestor
	tokens   service.TokenIssuer
	delivery service.Deliverer
	logger   *slog.Logger
}

func NewAPI(ingest service.Ingestor, tokens service.TokenIssuer, delivery service.Deliverer, logger *slog.Logger) *API {
	return &API{
		ingest:   ingest,
		tokens:   tokens,
		delivery: delivery,
		logger:   logger.With("component", "api"),
	}
}

type postMessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type postMessageResponse struct {
	Sequence uint64 `json:"sequence"`
}

// PostMessage ingests one message. 202 on acceptance: delivery itself is
// asynchronous and its failures are resolved by storage + replay, never
// surfaced here.
func (a *API) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	seq, err := a.ingest.Enqueue(r.Context(), userID, []byte(req.Message))
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("enqueue failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusAccepted, postMessageResponse{Sequence: seq})
}

type postTokenRequest struct {
	UserID string `json:"user_id"`
}

type postTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in_ms"`
}

// PostToken issues a single-use connect token for the WebSocket handshake.
func (a *API) PostToken(w http.ResponseWriter, r *http.Request) {
	var req postTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	token, ttl := a.tokens.Issue(userID)
	writeJSON(w, http.StatusOK, postTokenResponse{
		Token:     token,
		ExpiresIn: ttl.Milliseconds(),
	})
}

func (a *API) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.delivery.Stats())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
