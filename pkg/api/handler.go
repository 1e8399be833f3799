package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"branchdesk/pkg/auth"
	"branchdesk/pkg/records"
	"branchdesk/pkg/schema"
	"branchdesk/pkg/session"
	"branchdesk/pkg/store"
	"branchdesk/pkg/validate"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

const SessionHeader = "X-Session-ID"

type ctxKey struct{}

type Handler struct {
	auth     Authenticator
	store    RecordStore
	sessions *session.Manager
	location *time.Location
}

func NewHandler(a Authenticator, s RecordStore, sessions *session.Manager, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{auth: a, store: s, sessions: sessions, location: loc}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	role, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var locked *auth.LockedError
		switch {
		case errors.As(err, &locked):
			w.Header().Set("Retry-After", strconv.Itoa(int(locked.Remaining.Seconds())+1))
			sendError(w, http.StatusTooManyRequests, locked.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			sendError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		default:
			h.fail(w, err)
		}
		return
	}

	// a session carried into login is replaced, never promoted
	if old := r.Header.Get(SessionHeader); old != "" {
		h.sessions.Delete(old)
	}
	sess := h.sessions.Create(records.Identity{Username: req.Username, Role: role})
	w.Header().Set(SessionHeader, sess.ID)
	sendJSON(w, http.StatusOK, loginResponse{Session: sess.ID, Username: req.Username, Role: role})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(sessionFrom(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Old == "" || req.New == "" || req.Confirm == "" {
		sendError(w, http.StatusBadRequest, "old, new and confirmation passwords are all required")
		return
	}
	if req.New != req.Confirm {
		sendError(w, http.StatusBadRequest, "new passwords do not match")
		return
	}

	sess := sessionFrom(r.Context())
	err := h.auth.ChangePassword(r.Context(), sess.Identity().Username, req.Old, req.New)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		sendError(w, http.StatusUnauthorized, "old password is incorrect")
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	h.sessions.Delete(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	caps, err := h.store.Capabilities(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if c := r.URL.Query().Get("capability"); c != "" {
		capability, err := store.ParseCapability(c)
		if err != nil {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		sessionFrom(r.Context()).SelectFunction(string(capability))
		tables := caps[capability]
		if tables == nil {
			tables = []string{}
		}
		sendJSON(w, http.StatusOK, map[string][]string{string(capability): tables})
		return
	}
	sendJSON(w, http.StatusOK, caps)
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	cols, err := h.store.Describe(r.Context(), table)
	resp := toSchema(table, cols)
	if err != nil {
		// no input fields, but the page still renders
		resp.Warning = "unable to read the table layout, try again shortly"
	}
	sendJSON(w, http.StatusOK, resp)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !h.allowed(w, r, table, store.Searchable, store.Viewable) {
		return
	}

	q, err := h.parseQuery(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.store.Query(r.Context(), sessionFrom(r.Context()).Identity(), table, q)
	if err != nil {
		h.fail(w, err)
		return
	}
	sendJSON(w, http.StatusOK, toRecords(table, res))
}

func (h *Handler) submitRecord(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if !h.allowed(w, r, table, store.Enterable) {
		return
	}
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := h.store.Submit(r.Context(), sessionFrom(r.Context()).Identity(), table, req.Values)
	if err != nil {
		h.fail(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, toSubmit(table, res))
}

func (h *Handler) editRecord(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		sendError(w, http.StatusBadRequest, "record index must be a number")
		return
	}
	if !h.allowed(w, r, table, store.Enterable) {
		return
	}
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := h.store.Edit(r.Context(), sessionFrom(r.Context()).Identity(), table, index, req.Values)
	if err != nil {
		h.fail(w, err)
		return
	}
	sendJSON(w, http.StatusOK, toSubmit(table, res))
}

// allowed checks the Config table grants table one of the capabilities.
func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, table string, capabilities ...store.Capability) bool {
	caps, err := h.store.Capabilities(r.Context())
	if err != nil {
		h.fail(w, err)
		return false
	}
	for _, c := range capabilities {
		if caps.Allows(table, c) {
			return true
		}
	}
	sendError(w, http.StatusForbidden, "table "+table+" is not available here")
	return false
}

func (h *Handler) parseQuery(r *http.Request) (store.Query, error) {
	v := r.URL.Query()
	q := store.Query{Keyword: strings.TrimSpace(v.Get("q")), Field: v.Get("field")}
	var err error
	if q.From, err = h.parseDate(v.Get("from")); err != nil {
		return q, err
	}
	if q.To, err = h.parseDate(v.Get("to")); err != nil {
		return q, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errors.New("date range ends before it starts")
	}
	return q, nil
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	norm, ok := validate.NormalizeDate(s)
	if !ok {
		return time.Time{}, errors.New("invalid date " + strconv.Quote(s) + ", expected dd/mm/yyyy")
	}
	return time.ParseInLocation(schema.DateLayout, norm, h.location)
}

// fail maps an operation error to a status and a message safe to show.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		resp := errorResponse{Error: "please correct the highlighted fields"}
		for _, f := range verr.Fields {
			resp.Fields = append(resp.Fields, fieldError{Column: f.Column, Message: f.Message})
		}
		sendJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, store.ErrNotLoggedIn):
		sendError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, store.ErrForbidden):
		sendError(w, http.StatusForbidden, "you can only edit your own records")
	case errors.Is(err, records.ErrIndexOutOfRange):
		sendError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, store.ErrNoColumns):
		sendError(w, http.StatusConflict, err.Error())
	default:
		log.WithError(err).Error("request failed")
		sendError(w, http.StatusBadGateway, "the spreadsheet is unavailable, please try again")
	}
}

// requireLogin resolves the session and rejects anonymous requests.
func (h *Handler) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.sessions.Get(r.Header.Get(SessionHeader))
		if !ok {
			sendError(w, http.StatusUnauthorized, "please log in")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(ctxKey{}).(*session.Session)
	return s
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("unable to encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	sendResponse(w, status, body)
}

func sendError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, errorResponse{Error: msg})
}

func sendResponse(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
