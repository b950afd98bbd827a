package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jdillenkofer/fixity/internal/database"
	"github.com/jdillenkofer/fixity/internal/fixity"
	"github.com/jdillenkofer/fixity/internal/http/httputils"
	"github.com/jdillenkofer/fixity/internal/http/middlewares"
	"github.com/jdillenkofer/fixity/internal/http/server/authorization"
	"github.com/jdillenkofer/fixity/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultHistoryLimit = 100
const maxHistoryLimit = 1000

const idPath = "id"

const fromQuery = "from"
const toQuery = "to"
const outcomeQuery = "outcome"
const bitstreamQuery = "bitstream"
const limitQuery = "limit"

var errInvalidLimit = errors.New("limit must be a positive integer")

// ReportStore is the read side of the checksum ledger.
type ReportStore interface {
	FindByBitstreamId(ctx context.Context, id fixity.BitstreamId) (*ledger.Record, error)
	FindHistory(ctx context.Context, query ledger.HistoryQuery) ([]ledger.HistoryEntry, error)
	CountHistoryByOutcome(ctx context.Context, from time.Time, to time.Time) (map[fixity.Outcome]int64, error)
}

type Server struct {
	requestAuthorizer authorization.RequestAuthorizer
	store             ReportStore
	now               func() time.Time
	tracer            trace.Tracer
}

func SetupServer(requestAuthorizer authorization.RequestAuthorizer, store ReportStore) http.Handler {
	server := &Server{
		requestAuthorizer: requestAuthorizer,
		store:             store,
		now:               time.Now,
		tracer:            otel.Tracer("internal/http/server"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/records/{id}", server.getRecordHandler)
	mux.HandleFunc("GET /api/v1/history", server.listHistoryHandler)
	mux.HandleFunc("GET /api/v1/history/summary", server.getHistorySummaryHandler)
	var rootHandler http.Handler = mux
	rootHandler = middlewares.MakeCompressionMiddleware(rootHandler)
	return rootHandler
}

func makeHealthCheckHandler(dbs []database.Database) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, db := range dbs {
			err := db.PingContext(ctx)
			if err != nil {
				w.WriteHeader(503)
				w.Write([]byte("Unhealthy"))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte("Healthy"))
	}
}

func SetupMonitoringServer(dbs []database.Database, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", makeHealthCheckHandler(dbs))
	var rootHandler http.Handler = mux
	return rootHandler
}

type recordResponse struct {
	BitstreamId     string  `json:"bitstreamId"`
	Deleted         bool    `json:"deleted"`
	ExpectedDigest  string  `json:"expectedDigest"`
	ObservedDigest  string  `json:"observedDigest"`
	Algorithm       string  `json:"algorithm"`
	Scheduled       bool    `json:"scheduled"`
	WindowStart     *string `json:"windowStart"`
	WindowEnd       *string `json:"windowEnd"`
	Outcome         string  `json:"outcome"`
	Description     string  `json:"description"`
	MatchedPrevious bool    `json:"matchedPrevious"`
}

type historyEntryResponse struct {
	Id             string `json:"id"`
	BitstreamId    string `json:"bitstreamId"`
	Deleted        bool   `json:"deleted"`
	ExpectedDigest string `json:"expectedDigest"`
	ObservedDigest string `json:"observedDigest"`
	Algorithm      string `json:"algorithm"`
	WindowStart    string `json:"windowStart"`
	WindowEnd      string `json:"windowEnd"`
	Outcome        string `json:"outcome"`
}

type historyResponse struct {
	Entries []historyEntryResponse `json:"entries"`
}

type summaryResponse struct {
	From     string           `json:"from"`
	To       string           `json:"to"`
	Total    int64            `json:"total"`
	Outcomes map[string]int64 `json:"outcomes"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, request *authorization.Request) bool {
	request.Authorization = authorization.Authorization{Token: httputils.BearerToken(r)}
	request.RemoteAddr = r.RemoteAddr
	authorized, err := s.requestAuthorizer.AuthorizeRequest(r.Context(), request)
	if err != nil {
		slog.Error(fmt.Sprintf("Could not authorize %s request: %s", request.Operation, err))
		httputils.WriteError(w, http.StatusInternalServerError, "authorization failed")
		return false
	}
	if !authorized {
		httputils.WriteError(w, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

func (s *Server) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Server.getRecordHandler")
	defer span.End()
	r = r.WithContext(ctx)

	rawId := r.PathValue(idPath)
	if !s.authorize(w, r, &authorization.Request{Operation: authorization.OperationGetRecord, BitstreamId: &rawId}) {
		return
	}
	id, err := fixity.NewBitstreamIdFromString(rawId)
	if err != nil {
		httputils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	record, err := s.store.FindByBitstreamId(ctx, *id)
	if err != nil {
		slog.Error(fmt.Sprintf("Could not load checksum record %s: %s", rawId, err))
		httputils.WriteError(w, http.StatusInternalServerError, "could not load checksum record")
		return
	}
	if record == nil {
		httputils.WriteError(w, http.StatusNotFound, "checksum record not found")
		return
	}
	httputils.WriteJSON(w, http.StatusOK, recordResponse{
		BitstreamId:     record.BitstreamId.String(),
		Deleted:         record.Deleted,
		ExpectedDigest:  record.ExpectedDigest,
		ObservedDigest:  record.ObservedDigest,
		Algorithm:       record.Algorithm,
		Scheduled:       record.Scheduled,
		WindowStart:     formatOptionalTime(record.WindowStart),
		WindowEnd:       formatOptionalTime(record.WindowEnd),
		Outcome:         string(record.Outcome),
		Description:     record.Outcome.Description(),
		MatchedPrevious: record.MatchedPrevious,
	})
}

func parseTimeParam(r *http.Request, key string) (*time.Time, error) {
	value := httputils.GetQueryParam(r.URL.Query(), key)
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &t, nil
}

func parseTimeRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := parseTimeParam(r, fromQuery)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseTimeParam(r, toQuery)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseLimit(r *http.Request) (int, error) {
	value := httputils.GetQueryParam(r.URL.Query(), limitQuery)
	if value == nil {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(*value)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	return min(limit, maxHistoryLimit), nil
}

func (s *Server) listHistoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Server.listHistoryHandler")
	defer span.End()
	r = r.WithContext(ctx)

	query := r.URL.Query()
	rawBitstreamId := httputils.GetQueryParam(query, bitstreamQuery)
	rawOutcome := httputils.GetQueryParam(query, outcomeQuery)
	if !s.authorize(w, r, &authorization.Request{Operation: authorization.OperationListHistory, BitstreamId: rawBitstreamId, Outcome: rawOutcome}) {
		return
	}

	from, to, err := parseTimeRange(r)
	if err != nil {
		httputils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	historyQuery := ledger.HistoryQuery{From: from, To: to, Limit: limit}
	if rawBitstreamId != nil {
		historyQuery.BitstreamId, err = fixity.NewBitstreamIdFromString(*rawBitstreamId)
		if err != nil {
			httputils.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if rawOutcome != nil {
		outcome, err := fixity.ParseOutcome(*rawOutcome)
		if err != nil {
			httputils.WriteError(w, http.StatusBadRequest, fmt.Sprintf("%s: %s", err, *rawOutcome))
			return
		}
		historyQuery.Outcome = &outcome
	}

	entries, err := s.store.FindHistory(ctx, historyQuery)
	if err != nil {
		slog.Error(fmt.Sprintf("Could not load checksum history: %s", err))
		httputils.WriteError(w, http.StatusInternalServerError, "could not load checksum history")
		return
	}
	response := historyResponse{Entries: make([]historyEntryResponse, 0, len(entries))}
	for _, entry := range entries {
		response.Entries = append(response.Entries, historyEntryResponse{
			Id:             entry.Id.String(),
			BitstreamId:    entry.BitstreamId.String(),
			Deleted:        entry.Deleted,
			ExpectedDigest: entry.ExpectedDigest,
			ObservedDigest: entry.ObservedDigest,
			Algorithm:      entry.Algorithm,
			WindowStart:    formatTime(entry.WindowStart),
			WindowEnd:      formatTime(entry.WindowEnd),
			Outcome:        string(entry.Outcome),
		})
	}
	httputils.WriteJSON(w, http.StatusOK, response)
}

func (s *Server) getHistorySummaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "Server.getHistorySummaryHandler")
	defer span.End()
	r = r.WithContext(ctx)

	if !s.authorize(w, r, &authorization.Request{Operation: authorization.OperationGetHistorySummary}) {
		return
	}
	from, to, err := parseTimeRange(r)
	if err != nil {
		httputils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to == nil {
		now := s.now()
		to = &now
	}
	if from == nil {
		epoch := time.Unix(0, 0)
		from = &epoch
	}
	counts, err := s.store.CountHistoryByOutcome(ctx, *from, *to)
	if err != nil {
		slog.Error(fmt.Sprintf("Could not summarize checksum history: %s", err))
		httputils.WriteError(w, http.StatusInternalServerError, "could not summarize checksum history")
		return
	}
	response := summaryResponse{
		From:     formatTime(*from),
		To:       formatTime(*to),
		Outcomes: map[string]int64{},
	}
	for _, outcome := range fixity.Outcomes {
		count := counts[outcome]
		response.Outcomes[string(outcome)] = count
		response.Total += count
	}
	httputils.WriteJSON(w, http.StatusOK, response)
}
