package projection

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	"github.com/russross/meddler"
)

// EventQuery filters the event history. Zero values mean no filter.
type EventQuery struct {
	Kind       decoder.Kind
	Owner      *common.Address
	DIDHash    *common.Hash
	FromBlock  *uint64
	ToBlock    *uint64
	Limit      int
	Offset     int
	Descending bool
}

// EventRecord is one history entry as served to readers.
type EventRecord struct {
	DIDHash     common.Hash     `json:"didHash"`
	Type        decoder.Kind    `json:"type"`
	Owner       *common.Address `json:"owner"`
	BlockNumber uint64          `json:"blockNumber"`
	LogIndex    uint            `json:"logIndex"`
	BlockHash   common.Hash     `json:"blockHash"`
	TxHash      common.Hash     `json:"txHash"`
	Contract    common.Address  `json:"contract"`
	Timestamp   uint64          `json:"timestamp"`
	Status      string          `json:"status"`
	Args        map[string]any  `json:"args,omitempty"`
}

func (q EventQuery) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if q.Kind != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, q.Kind.String())
	}
	if q.Owner != nil {
		clauses = append(clauses, "owner = ?")
		args = append(args, q.Owner.Hex())
	}
	if q.DIDHash != nil {
		clauses = append(clauses, "did_hash = ?")
		args = append(args, q.DIDHash.Hex())
	}
	if q.FromBlock != nil {
		clauses = append(clauses, "block_number >= ?")
		args = append(args, *q.FromBlock)
	}
	if q.ToBlock != nil {
		clauses = append(clauses, "block_number <= ?")
		args = append(args, *q.ToBlock)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryEvents returns a page of the event history in chain order and the total number of matches.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]*EventRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	where, args := q.where()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM did_events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf("SELECT * FROM did_events%s ORDER BY block_number %s, log_index %s LIMIT ? OFFSET ?",
		where, order, order)

	var rows []*eventRow
	if err := meddler.QueryAll(s.db, &rows, query, append(args, q.Limit, q.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}

	out := make([]*EventRecord, 0, len(rows))
	for _, row := range rows {
		rec := &EventRecord{
			DIDHash:     row.DIDHash,
			Type:        decoder.Kind(row.EventType),
			Owner:       row.Owner,
			BlockNumber: row.BlockNumber,
			LogIndex:    row.LogIndex,
			BlockHash:   row.BlockHash,
			TxHash:      row.TxHash,
			Contract:    row.Contract,
			Timestamp:   row.Timestamp,
			Status:      row.Status,
		}
		if ev, err := row.decode(); err == nil {
			rec.Args = eventArgs(ev)
		} else {
			s.log.Warnf("failed to decode stored event %d:%d: %v", row.BlockNumber, row.LogIndex, err)
		}
		out = append(out, rec)
	}

	return out, total, nil
}

// eventArgs returns the kind specific fields of ev.
func eventArgs(ev decoder.Event) map[string]any {
	switch e := ev.(type) {
	case *decoder.DIDCreated:
		return map[string]any{"did": e.DID, "owner": e.Owner}
	case *decoder.DIDUpdated:
		return map[string]any{"document": e.Document}
	case *decoder.DIDRevoked:
		return nil
	case *decoder.DIDTransferred:
		return map[string]any{"previousOwner": e.PreviousOwner, "newOwner": e.NewOwner}
	case *decoder.ControllerAdded:
		return map[string]any{"controller": e.Controller}
	case *decoder.ControllerRemoved:
		return map[string]any{"controller": e.Controller}
	case *decoder.DataStored:
		return map[string]any{"dataType": e.DataType, "dataHash": e.DataHash}
	case *decoder.DataUpdated:
		return map[string]any{"dataType": e.DataType, "dataHash": e.DataHash}
	case *decoder.DataDeleted:
		return map[string]any{"dataType": e.DataType}
	case *decoder.AccessGranted:
		return map[string]any{"accessor": e.Accessor, "dataType": e.DataType}
	case *decoder.AccessRevoked:
		return map[string]any{"accessor": e.Accessor, "dataType": e.DataType}
	}
	return nil
}

// Fault is a recorded consistency fault.
type Fault struct {
	ID          int64        `json:"id"`
	BlockNumber uint64       `json:"blockNumber"`
	LogIndex    uint         `json:"logIndex"`
	TxHash      common.Hash  `json:"txHash"`
	DIDHash     common.Hash  `json:"didHash"`
	Type        decoder.Kind `json:"type"`
	Reason      FaultReason  `json:"reason"`
	Detail      string       `json:"detail"`
	CreatedAt   int64        `json:"createdAt"`
}

// ListFaults returns a page of consistency faults in chain order and the total count.
func (s *Store) ListFaults(ctx context.Context, limit, offset int) ([]*Fault, int, error) {
	total, err := s.CountFaults(ctx)
	if err != nil {
		return nil, 0, err
	}

	var rows []*faultRow
	if err := meddler.QueryAll(s.db, &rows,
		"SELECT * FROM consistency_faults ORDER BY block_number, log_index, id LIMIT ? OFFSET ?",
		limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to query faults: %w", err)
	}

	out := make([]*Fault, 0, len(rows))
	for _, row := range rows {
		out = append(out, &Fault{
			ID:          row.ID,
			BlockNumber: row.BlockNumber,
			LogIndex:    row.LogIndex,
			TxHash:      row.TxHash,
			DIDHash:     row.DIDHash,
			Type:        decoder.Kind(row.EventType),
			Reason:      FaultReason(row.Reason),
			Detail:      row.Detail,
			CreatedAt:   row.CreatedAt,
		})
	}

	return out, total, nil
}

// CountFaults returns the number of recorded consistency faults.
func (s *Store) CountFaults(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consistency_faults").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count faults: %w", err)
	}
	return n, nil
}

// Stats summarises the projection.
type Stats struct {
	Records       int            `json:"records"`
	ActiveRecords int            `json:"activeRecords"`
	Owners        int            `json:"owners"`
	Events        int            `json:"events"`
	Faults        int            `json:"faults"`
	EventsByType  map[string]int `json:"eventsByType"`
}

// Stats counts records, events and faults.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{EventsByType: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM did_records),
		(SELECT COUNT(*) FROM did_records WHERE is_active = 1),
		(SELECT COUNT(DISTINCT owner) FROM did_records),
		(SELECT COUNT(*) FROM did_events),
		(SELECT COUNT(*) FROM consistency_faults)`).
		Scan(&stats.Records, &stats.ActiveRecords, &stats.Owners, &stats.Events, &stats.Faults)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT event_type, COUNT(*) FROM did_events GROUP BY event_type")
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		stats.EventsByType[kind] = n
	}

	return stats, rows.Err()
}
