// Package server exposes the assistant and the report scheduler over HTTP.
//
// Routes:
//
//	GET  /health
//	POST /message               {"from": "...", "text": "..."}
//	POST /link                  {"phone": "...", "username": "..."}
//	POST /generate-reports      ?send=true delivers every payload
//	POST /webhook/whatsapp      Twilio form post, answered with TwiML
//	GET  /parcels/{id}?phone=   parcel details for the linked farmer
//	GET  /parcels/{id}/trends?phone=
package server

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/derickschaefer/agrobot/internal/assistant"
	"github.com/derickschaefer/agrobot/internal/messaging"
	"github.com/derickschaefer/agrobot/internal/scheduler"
	"github.com/derickschaefer/agrobot/internal/util"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	assistant *assistant.Service
	scheduler *scheduler.Scheduler
	transport messaging.Transport
	log       *zap.Logger
	validate  *validator.Validate
	router    chi.Router
}

// New builds a Server and mounts its routes. transport may be nil, in which
// case /generate-reports?send=true is rejected.
func New(a *assistant.Service, sched *scheduler.Scheduler, t messaging.Transport, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		assistant: a,
		scheduler: sched,
		transport: t,
		log:       log,
		validate:  validator.New(),
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(s.recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/message", s.handleMessage)
	r.Post("/link", s.handleLink)
	r.Post("/generate-reports", s.handleGenerateReports)
	r.Post("/webhook/whatsapp", s.handleWhatsApp)
	r.Route("/parcels/{id}", func(pr chi.Router) {
		pr.Get("/", s.handleParcel)
		pr.Get("/trends", s.handleParcelTrends)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// ─── Middleware ───────────────────────────────────────────────────────────────

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.log.Error("panic recovered",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprintf("%v", rvr)),
					zap.ByteString("stack", debug.Stack()))
				writeError(w, http.StatusInternalServerError, "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad json: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s is %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageRequest struct {
	From string `json:"from" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: s.assistant.HandleMessage(r.Context(), req.From, req.Text)})
}

type linkRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Username string `json:"username" validate:"required"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: s.assistant.LinkAccount(req.Phone, req.Username)})
}

type reportsResponse struct {
	Reports    []scheduler.Payload  `json:"reports"`
	Deliveries []messaging.Delivery `json:"deliveries,omitempty"`
	Failures   []string             `json:"failures,omitempty"`
}

func (s *Server) handleGenerateReports(w http.ResponseWriter, r *http.Request) {
	send := false
	if v := r.URL.Query().Get("send"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "send must be true or false")
			return
		}
		send = b
	}
	if send && s.transport == nil {
		writeError(w, http.StatusServiceUnavailable, "no message transport configured")
		return
	}

	payloads, err := s.scheduler.Run(r.Context())
	resp := reportsResponse{Reports: payloads}
	if err != nil {
		var multi *util.MultiError
		if !errors.As(err, &multi) {
			s.log.Error("report run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "report generation failed")
			return
		}
		for _, e := range multi.Errors {
			resp.Failures = append(resp.Failures, e.Error())
		}
	}
	if send {
		resp.Deliveries = messaging.Deliver(r.Context(), s.transport, payloads)
	}
	writeJSON(w, http.StatusOK, resp)
}

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// handleWhatsApp answers a Twilio webhook. The reply travels back in the
// TwiML body; signature verification is left to the edge.
func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad form")
		return
	}
	from, body := r.PostForm.Get("From"), r.PostForm.Get("Body")
	if from == "" || body == "" {
		writeError(w, http.StatusBadRequest, "missing From or Body")
		return
	}
	reply := s.assistant.HandleMessage(r.Context(), from, body)

	out, err := xml.Marshal(twiml{Message: reply})
	if err != nil {
		s.log.Error("encoding twiml", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encoding reply")
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

// farmerID resolves the ?phone= query to a linked farmer. It writes the
// error response itself and reports false when the request cannot proceed.
func (s *Server) farmerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		writeError(w, http.StatusBadRequest, "phone is required")
		return "", false
	}
	f, found, err := s.assistant.Farmer(phone)
	if err != nil {
		s.log.Error("looking up farmer", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return "", false
	}
	if !found {
		writeError(w, http.StatusNotFound, "phone is not linked to an account")
		return "", false
	}
	return f.ID, true
}

func lookupError(w http.ResponseWriter, status assistant.LookupStatus, id string) bool {
	switch status {
	case assistant.NotFound:
		writeError(w, http.StatusNotFound, status.Message(id))
		return true
	case assistant.NotOwned:
		writeError(w, http.StatusForbidden, status.Message(id))
		return true
	}
	return false
}

func (s *Server) handleParcel(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := s.farmerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	d, status, err := s.assistant.ParcelDetails(farmerID, id)
	if err != nil {
		s.log.Error("parcel details", zap.String("parcel", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if lookupError(w, status, id) {
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleParcelTrends(w http.ResponseWriter, r *http.Request) {
	farmerID, ok := s.farmerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	rep, status, err := s.assistant.ParcelTrends(r.Context(), farmerID, id)
	if err != nil {
		s.log.Error("parcel trends", zap.String("parcel", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if lookupError(w, status, id) {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
