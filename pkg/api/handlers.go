package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	icommon "github.com/goran-ethernal/DIDIndexor/internal/common"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	"github.com/goran-ethernal/DIDIndexor/internal/logger"
	"github.com/goran-ethernal/DIDIndexor/internal/projection"
	"github.com/goran-ethernal/DIDIndexor/pkg/indexer"
)

// ProjectionReader is the read side of the projection store.
type ProjectionReader interface {
	Get(ctx context.Context, didHash common.Hash) (*projection.DIDRecord, error)
	GetByDID(ctx context.Context, did string) (*projection.DIDRecord, error)
	ListByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]*projection.DIDRecord, int, error)
	QueryEvents(ctx context.Context, q projection.EventQuery) ([]*projection.EventRecord, int, error)
	ListFaults(ctx context.Context, limit, offset int) ([]*projection.Fault, int, error)
	Stats(ctx context.Context) (*projection.Stats, error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	controller indexer.Controller
	store      ProjectionReader
	log        *logger.Logger

	// lifetime bounds indexing runs started over HTTP; request contexts end with the response.
	lifetime context.Context
}

// NewHandler creates a new API handler.
func NewHandler(controller indexer.Controller, store ProjectionReader, log *logger.Logger) *Handler {
	return &Handler{
		controller: controller,
		store:      store,
		log:        log,
		lifetime:   context.Background(),
	}
}

// Health reports the indexer state.
// @Summary Indexer health
// @Description Current state of the indexer. Reads stay available while the indexer is failed.
// @Tags Indexer
// @Produce json
// @Success 200 {object} HealthResponse "Indexer health"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Health:    h.controller.Health(),
		Timestamp: time.Now().UTC(),
	})
}

// StartIndexer starts the indexer. Starting a running indexer returns its current state.
// @Summary Start indexing
// @Tags Indexer
// @Produce json
// @Success 200 {object} HealthResponse "Indexer health after start"
// @Router /indexer/start [post]
func (h *Handler) StartIndexer(w http.ResponseWriter, r *http.Request) {
	health := h.controller.Start(h.lifetime)
	h.log.Infow("indexer start requested", "status", health.Status, "runId", health.RunID)

	respondJSON(w, http.StatusOK, HealthResponse{Health: health, Timestamp: time.Now().UTC()})
}

// StopIndexer stops the indexer at the next batch boundary.
// @Summary Stop indexing
// @Tags Indexer
// @Produce json
// @Success 200 {object} HealthResponse "Indexer health after stop"
// @Router /indexer/stop [post]
func (h *Handler) StopIndexer(w http.ResponseWriter, r *http.Request) {
	health := h.controller.Stop()
	h.log.Infow("indexer stop requested", "status", health.Status, "lastProcessedBlock", health.LastProcessedBlock)

	respondJSON(w, http.StatusOK, HealthResponse{Health: health, Timestamp: time.Now().UTC()})
}

// GetDID returns one DID record.
// @Summary Get a DID record
// @Tags DIDs
// @Produce json
// @Param didHash path string true "keccak256 hash of the DID string"
// @Success 200 {object} projection.DIDRecord "DID record"
// @Failure 400 {object} ErrorResponse "Invalid did hash"
// @Failure 404 {object} ErrorResponse "DID not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /dids/{didHash} [get]
func (h *Handler) GetDID(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// ListDIDs lists the DIDs of an owner, or resolves one DID string.
// @Summary List DID records
// @Description Exactly one of owner or did is required.
// @Tags DIDs
// @Produce json
// @Param owner query string false "Owner address"
// @Param did query string false "DID string"
// @Param limit query int false "Maximum number of records to return" default(100)
// @Param offset query int false "Number of records to skip" default(0)
// @Success 200 {object} DIDListResponse "Page of DID records"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /dids [get]
func (h *Handler) ListDIDs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerStr := r.URL.Query().Get("owner")
	did := r.URL.Query().Get("did")

	switch {
	case ownerStr != "" && did != "":
		respondError(w, http.StatusBadRequest, "owner and did are mutually exclusive")
	case did != "":
		records := []*projection.DIDRecord{}
		rec, err := h.store.GetByDID(r.Context(), did)
		switch {
		case errors.Is(err, projection.ErrNotFound):
		case err != nil:
			h.log.Errorf("Failed to get did %q: %v", did, err)
			respondError(w, http.StatusInternalServerError, "failed to get did")
			return
		default:
			records = append(records, rec)
		}

		page := records[min(offset, len(records)):min(offset+limit, len(records))]
		respondJSON(w, http.StatusOK, DIDListResponse{
			Records:    page,
			Pagination: newPagination(len(records), limit, offset, len(page)),
		})
	case ownerStr != "":
		owner, err := parseAddress("owner", ownerStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		records, total, err := h.store.ListByOwner(r.Context(), owner, limit, offset)
		if err != nil {
			h.log.Errorf("Failed to list dids of %s: %v", owner.Hex(), err)
			respondError(w, http.StatusInternalServerError, "failed to list dids")
			return
		}

		respondJSON(w, http.StatusOK, DIDListResponse{
			Records:    records,
			Pagination: newPagination(total, limit, offset, len(records)),
		})
	default:
		respondError(w, http.StatusBadRequest, "owner or did is required")
	}
}

// GetPointers returns the data pointers and access grants of one DID.
// @Summary Get DID data pointers
// @Tags DIDs
// @Produce json
// @Param didHash path string true "keccak256 hash of the DID string"
// @Success 200 {object} PointersResponse "Data pointers and grants"
// @Failure 400 {object} ErrorResponse "Invalid did hash"
// @Failure 404 {object} ErrorResponse "DID not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /dids/{didHash}/pointers [get]
func (h *Handler) GetPointers(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	pointers := rec.DataPointers
	if pointers == nil {
		pointers = map[string]common.Hash{}
	}
	grants := rec.GrantList()
	if grants == nil {
		grants = []projection.AccessKey{}
	}

	respondJSON(w, http.StatusOK, PointersResponse{
		DIDHash:      rec.DIDHash,
		IsActive:     rec.IsActive,
		DataPointers: pointers,
		AccessGrants: grants,
	})
}

// GetDIDEvents returns the event history of one DID, including faulted events.
// @Summary Get DID event history
// @Tags Events
// @Produce json
// @Param didHash path string true "keccak256 hash of the DID string"
// @Param type query string false "Event type, case-insensitive (e.g. DIDCreated)"
// @Param fromBlock query integer false "Lowest block number"
// @Param toBlock query integer false "Highest block number"
// @Param order query string false "Sort order" Enums(asc, desc) default(asc)
// @Param limit query int false "Maximum number of events to return" default(100)
// @Param offset query int false "Number of events to skip" default(0)
// @Success 200 {object} EventResponse "Page of events"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /dids/{didHash}/events [get]
func (h *Handler) GetDIDEvents(w http.ResponseWriter, r *http.Request) {
	didHash, err := parseHash("didHash", r.PathValue("didHash"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := parseEventQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}
	q.DIDHash = &didHash

	h.respondEvents(w, r, q)
}

// GetEvents returns the event history across all DIDs.
// @Summary Query event history
// @Description Filter by event type, owner, did hash and block range, with offset/limit pagination.
// @Tags Events
// @Produce json
// @Param type query string false "Event type, case-insensitive (e.g. DIDCreated)"
// @Param owner query string false "Owner of the DID after the event"
// @Param didHash query string false "keccak256 hash of the DID string"
// @Param fromBlock query integer false "Lowest block number"
// @Param toBlock query integer false "Highest block number"
// @Param order query string false "Sort order" Enums(asc, desc) default(asc)
// @Param limit query int false "Maximum number of events to return" default(100)
// @Param offset query int false "Number of events to skip" default(0)
// @Success 200 {object} EventResponse "Page of events"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /events [get]
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}

	if v := r.URL.Query().Get("didHash"); v != "" {
		didHash, err := parseHash("didHash", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
			return
		}
		q.DIDHash = &didHash
	}

	h.respondEvents(w, r, q)
}

func (h *Handler) respondEvents(w http.ResponseWriter, r *http.Request, q projection.EventQuery) {
	events, total, err := h.store.QueryEvents(r.Context(), q)
	if err != nil {
		h.log.Errorf("Failed to query events: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	respondJSON(w, http.StatusOK, EventResponse{
		Events:     events,
		Pagination: newPagination(total, q.Limit, q.Offset, len(events)),
	})
}

// GetFaults returns the recorded consistency faults.
// @Summary List consistency faults
// @Description Events that could not be applied to the projection, oldest first.
// @Tags Diagnostics
// @Produce json
// @Param limit query int false "Maximum number of faults to return" default(100)
// @Param offset query int false "Number of faults to skip" default(0)
// @Success 200 {object} FaultResponse "Page of faults"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /faults [get]
func (h *Handler) GetFaults(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	faults, total, err := h.store.ListFaults(r.Context(), limit, offset)
	if err != nil {
		h.log.Errorf("Failed to list faults: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list faults")
		return
	}

	respondJSON(w, http.StatusOK, FaultResponse{
		Faults:     faults,
		Pagination: newPagination(total, limit, offset, len(faults)),
	})
}

// GetStats returns projection statistics.
// @Summary Projection statistics
// @Tags Diagnostics
// @Produce json
// @Success 200 {object} StatsResponse "Statistics"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.log.Errorf("Failed to get stats: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	health := h.controller.Health()
	respondJSON(w, http.StatusOK, StatsResponse{
		Stats:              stats,
		LastProcessedBlock: health.LastProcessedBlock,
		Status:             health.Status,
	})
}

// lookup resolves the {didHash} path value, writing the error response itself when it fails.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*projection.DIDRecord, bool) {
	didHash, err := parseHash("didHash", r.PathValue("didHash"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	rec, err := h.store.Get(r.Context(), didHash)
	if errors.Is(err, projection.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("did %s not found", didHash.Hex()))
		return nil, false
	}
	if err != nil {
		h.log.Errorf("Failed to get did %s: %v", didHash.Hex(), err)
		respondError(w, http.StatusInternalServerError, "failed to get did")
		return nil, false
	}

	return rec, true
}

// parsePage parses limit and offset.
func parsePage(r *http.Request) (int, int, error) {
	limit, offset := defaultLimit, 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 || v > maxLimit {
			return 0, 0, fmt.Errorf("invalid limit: must be between 1 and %d", maxLimit)
		}
		limit = v
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		v, err := strconv.Atoi(offsetStr)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("invalid offset: must be non-negative")
		}
		offset = v
	}

	return limit, offset, nil
}

// parseEventQuery parses the history filters shared by the event endpoints. didHash is left to the caller.
func parseEventQuery(r *http.Request) (projection.EventQuery, error) {
	var q projection.EventQuery

	limit, offset, err := parsePage(r)
	if err != nil {
		return q, err
	}
	q.Limit, q.Offset = limit, offset

	values := r.URL.Query()

	if v := values.Get("type"); v != "" {
		kind, err := decoder.ParseKind(v)
		if err != nil {
			return q, err
		}
		q.Kind = kind
	}

	if v := values.Get("owner"); v != "" {
		owner, err := parseAddress("owner", v)
		if err != nil {
			return q, err
		}
		q.Owner = &owner
	}

	if v := values.Get("fromBlock"); v != "" {
		from, err := icommon.ParseUint64orHex(&v)
		if err != nil {
			return q, fmt.Errorf("invalid fromBlock")
		}
		q.FromBlock = &from
	}

	if v := values.Get("toBlock"); v != "" {
		to, err := icommon.ParseUint64orHex(&v)
		if err != nil {
			return q, fmt.Errorf("invalid toBlock")
		}
		q.ToBlock = &to
	}

	if q.FromBlock != nil && q.ToBlock != nil && *q.FromBlock > *q.ToBlock {
		return q, fmt.Errorf("fromBlock cannot be greater than toBlock")
	}

	if v := values.Get("order"); v != "" {
		switch icommon.ToLowerWithTrim(v) {
		case "asc":
		case "desc":
			q.Descending = true
		default:
			return q, fmt.Errorf("invalid order: must be 'asc' or 'desc'")
		}
	}

	return q, nil
}

func parseHash(name, v string) (common.Hash, error) {
	if !strings.HasPrefix(v, "0x") {
		v = "0x" + v
	}
	b, err := hexutil.Decode(v)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid %s: must be a 32-byte hex string", name)
	}
	return common.BytesToHash(b), nil
}

func parseAddress(name, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid %s: must be a 20-byte hex address", name)
	}
	return common.HexToAddress(v), nil
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	// Headers are already sent; nothing left to report to the client.
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
