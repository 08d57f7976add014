package projection

import (
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/DIDIndexor/internal/decoder"
	itypes "github.com/goran-ethernal/DIDIndexor/internal/types"
	"github.com/russross/meddler"
)

const (
	recordsTable     = "did_records"
	controllersTable = "did_controllers"
	pointersTable    = "did_data_pointers"
	grantsTable      = "did_access_grants"
	eventsTable      = "did_events"
	faultsTable      = "consistency_faults"
)

type recordRow struct {
	DIDHash              common.Hash    `meddler:"did_hash,hash"`
	DID                  string         `meddler:"did"`
	Owner                common.Address `meddler:"owner,address"`
	Document             string         `meddler:"document"`
	IsActive             bool           `meddler:"is_active"`
	CreatedBlock         uint64         `meddler:"created_block"`
	LastAppliedBlock     uint64         `meddler:"last_applied_block"`
	LastAppliedLogIndex  uint           `meddler:"last_applied_log_index"`
	LastAppliedTimestamp uint64         `meddler:"last_applied_timestamp"`
}

type controllerRow struct {
	DIDHash    common.Hash    `meddler:"did_hash,hash"`
	Controller common.Address `meddler:"controller,address"`
}

type pointerRow struct {
	DIDHash  common.Hash `meddler:"did_hash,hash"`
	DataType string      `meddler:"data_type"`
	DataHash common.Hash `meddler:"data_hash,hash"`
}

type grantRow struct {
	DIDHash  common.Hash    `meddler:"did_hash,hash"`
	Accessor common.Address `meddler:"accessor,address"`
	DataType string         `meddler:"data_type"`
}

// eventRow is one entry of the event history. Topics and data are kept so records can be
// rebuilt after a rollback.
type eventRow struct {
	BlockNumber uint64          `meddler:"block_number"`
	LogIndex    uint            `meddler:"log_index"`
	BlockHash   common.Hash     `meddler:"block_hash,hash"`
	TxHash      common.Hash     `meddler:"tx_hash,hash"`
	Contract    common.Address  `meddler:"contract,address"`
	DIDHash     common.Hash     `meddler:"did_hash,hash"`
	EventType   string          `meddler:"event_type"`
	Owner       *common.Address `meddler:"owner,address"`
	Timestamp   uint64          `meddler:"block_timestamp"`
	Topics      []common.Hash   `meddler:"topics,topics"`
	Data        []byte          `meddler:"data"`
	Status      string          `meddler:"status"`
}

func (r *eventRow) rawLog() itypes.RawLog {
	raw := itypes.RawLog{Timestamp: r.Timestamp}
	raw.Address = r.Contract
	raw.Topics = r.Topics
	raw.Data = r.Data
	raw.BlockNumber = r.BlockNumber
	raw.BlockHash = r.BlockHash
	raw.TxHash = r.TxHash
	raw.Index = r.LogIndex
	return raw
}

func (r *eventRow) decode() (decoder.Event, error) {
	return decoder.Decode(r.rawLog())
}

type faultRow struct {
	ID          int64       `meddler:"id,pk"`
	BlockNumber uint64      `meddler:"block_number"`
	LogIndex    uint        `meddler:"log_index"`
	TxHash      common.Hash `meddler:"tx_hash,hash"`
	DIDHash     common.Hash `meddler:"did_hash,hash"`
	EventType   string      `meddler:"event_type"`
	Reason      string      `meddler:"reason"`
	Detail      string      `meddler:"detail"`
	CreatedAt   int64       `meddler:"created_at"`
}

func toRecordRow(rec *DIDRecord) *recordRow {
	return &recordRow{
		DIDHash:              rec.DIDHash,
		DID:                  rec.DID,
		Owner:                rec.Owner,
		Document:             rec.Document,
		IsActive:             rec.IsActive,
		CreatedBlock:         rec.CreatedBlock,
		LastAppliedBlock:     rec.LastAppliedBlock,
		LastAppliedLogIndex:  rec.LastAppliedLogIndex,
		LastAppliedTimestamp: rec.LastAppliedTimestamp,
	}
}

func (r *recordRow) toRecord() *DIDRecord {
	return &DIDRecord{
		DIDHash:              r.DIDHash,
		DID:                  r.DID,
		Owner:                r.Owner,
		Document:             r.Document,
		Controllers:          make(map[common.Address]struct{}),
		IsActive:             r.IsActive,
		DataPointers:         make(map[string]common.Hash),
		AccessGrants:         make(map[AccessKey]struct{}),
		CreatedBlock:         r.CreatedBlock,
		LastAppliedBlock:     r.LastAppliedBlock,
		LastAppliedLogIndex:  r.LastAppliedLogIndex,
		LastAppliedTimestamp: r.LastAppliedTimestamp,
	}
}

// loadRecord reads one record and its sets. Returns ErrNotFound when absent.
func loadRecord(q meddler.DB, didHash common.Hash) (*DIDRecord, error) {
	var row recordRow
	err := meddler.QueryRow(q, &row, "SELECT * FROM did_records WHERE did_hash = ?", didHash.Hex())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return loadSets(q, row.toRecord())
}

func loadSets(q meddler.DB, rec *DIDRecord) (*DIDRecord, error) {
	key := rec.DIDHash.Hex()

	var controllers []*controllerRow
	if err := meddler.QueryAll(q, &controllers, "SELECT * FROM did_controllers WHERE did_hash = ?", key); err != nil {
		return nil, err
	}
	for _, c := range controllers {
		rec.Controllers[c.Controller] = struct{}{}
	}

	var pointers []*pointerRow
	if err := meddler.QueryAll(q, &pointers, "SELECT * FROM did_data_pointers WHERE did_hash = ?", key); err != nil {
		return nil, err
	}
	for _, p := range pointers {
		rec.DataPointers[p.DataType] = p.DataHash
	}

	var grants []*grantRow
	if err := meddler.QueryAll(q, &grants, "SELECT * FROM did_access_grants WHERE did_hash = ?", key); err != nil {
		return nil, err
	}
	for _, g := range grants {
		rec.AccessGrants[AccessKey{Accessor: g.Accessor, DataType: g.DataType}] = struct{}{}
	}

	return rec, nil
}

// deleteRecord removes a record and its sets.
func deleteRecord(q meddler.DB, didHash common.Hash) error {
	for _, table := range []string{grantsTable, pointersTable, controllersTable, recordsTable} {
		if _, err := q.Exec("DELETE FROM "+table+" WHERE did_hash = ?", didHash.Hex()); err != nil {
			return err
		}
	}
	return nil
}

// saveRecord replaces the stored record with rec.
func saveRecord(q meddler.DB, rec *DIDRecord) error {
	if err := deleteRecord(q, rec.DIDHash); err != nil {
		return err
	}

	if err := meddler.Insert(q, recordsTable, toRecordRow(rec)); err != nil {
		return err
	}
	for _, c := range rec.ControllerList() {
		if err := meddler.Insert(q, controllersTable, &controllerRow{DIDHash: rec.DIDHash, Controller: c}); err != nil {
			return err
		}
	}
	for dataType, dataHash := range rec.DataPointers {
		row := &pointerRow{DIDHash: rec.DIDHash, DataType: dataType, DataHash: dataHash}
		if err := meddler.Insert(q, pointersTable, row); err != nil {
			return err
		}
	}
	for _, g := range rec.GrantList() {
		row := &grantRow{DIDHash: rec.DIDHash, Accessor: g.Accessor, DataType: g.DataType}
		if err := meddler.Insert(q, grantsTable, row); err != nil {
			return err
		}
	}

	return nil
}
