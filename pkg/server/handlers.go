package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-go-golems/forkchat/pkg/branches"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type CreateBranchRequest struct {
	BranchID       string `json:"branchId"`
	ParentBranchID string `json:"parentBranchId,omitempty"`
}

type CreateBranchResponse struct {
	Success  bool   `json:"success"`
	BranchID string `json:"branchId"`
}

type SendMessageRequest struct {
	BranchID string `json:"branchId"`
	Message  string `json:"message"`
}

type SendMessageResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

type HistoryMessage struct {
	Role     conversation.Role `json:"role"`
	Content  string            `json:"content"`
	Sequence int               `json:"sequence"`
}

type HistoryResponse struct {
	Success bool             `json:"success"`
	History []HistoryMessage `json:"history"`
	Tokens  *int             `json:"tokens,omitempty"`
}

type BranchResponse struct {
	Success bool                `json:"success"`
	Branch  branches.Descriptor `json:"branch"`
}

type ListBranchesResponse struct {
	Success  bool                  `json:"success"`
	Branches []branches.Descriptor `json:"branches"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Info
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req CreateBranchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.manager.CreateBranch(r.Context(), req.BranchID, req.ParentBranchID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("branch_id", res.BranchID).Str("parent_branch_id", req.ParentBranchID).Msg("Branch created")
	writeJSON(w, http.StatusOK, CreateBranchResponse{Success: true, BranchID: res.BranchID})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.BranchID == "" {
		writeError(w, r, &branches.InvalidInputError{Field: "branchId", Reason: "must not be empty"})
		return
	}

	reply, err := s.manager.SendMessage(r.Context(), req.BranchID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SendMessageResponse{Success: true, Response: reply})
}

// handleChat is the single-conversation endpoint: every message goes to the chat branch.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, &branches.InvalidInputError{Field: "message", Reason: "message is required"})
		return
	}

	_, err := s.manager.CreateBranch(r.Context(), s.chatBranch, "")
	if err != nil && !errors.Is(err, branches.ErrDuplicateBranch) {
		writeError(w, r, err)
		return
	}

	reply, err := s.manager.SendMessage(r.Context(), s.chatBranch, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Success: true, Response: reply})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	getHistory := s.manager.GetHistory
	if v := r.URL.Query().Get("settled"); v != "" {
		settled, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, &badRequestError{err: errors.Errorf("invalid settled value %q", v)})
			return
		}
		if settled {
			getHistory = s.manager.GetSettledHistory
		}
	}

	history, err := getHistory(r.Context(), r.PathValue("branchId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := HistoryResponse{Success: true, History: make([]HistoryMessage, 0, len(history))}
	for _, m := range history {
		res.History = append(res.History, HistoryMessage{Role: m.Role, Content: m.Content, Sequence: m.Sequence})
	}
	if s.tokens != nil {
		n, err := s.tokens.Count(history)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("could not count history tokens")
		} else {
			res.Tokens = &n
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	d, err := s.manager.GetBranch(r.PathValue("branchId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BranchResponse{Success: true, Branch: d})
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.ListBranches(r.URL.Query().Get("match"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListBranchesResponse{Success: true, Branches: list})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Info: s.info})
}

type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &badRequestError{err: errors.New("request body is empty")}
		}
		return &badRequestError{err: errors.Wrap(err, "invalid JSON body")}
	}
	return nil
}

// StatusClientClosedRequest is reported when the client went away while its request was
// waiting for a busy branch.
const StatusClientClosedRequest = 499

// statusFor maps the branch error taxonomy onto HTTP statuses. Model failures are
// matched before context errors, since a model call that timed out wraps
// context.DeadlineExceeded.
func statusFor(err error) int {
	var bre *badRequestError
	switch {
	case errors.As(err, &bre), errors.Is(err, branches.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, branches.ErrBranchNotFound):
		return http.StatusNotFound
	case errors.Is(err, branches.ErrDuplicateBranch):
		return http.StatusConflict
	case errors.Is(err, branches.ErrModelInvocation):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
