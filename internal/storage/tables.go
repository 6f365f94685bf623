package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/decoder"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
)

// ColumnKind is the storage category of a variant column.
type ColumnKind int

const (
	ColLocation ColumnKind = iota
	ColU64
	ColU256
	ColAddress
	ColLevel
)

// Column names match the JSON field names of the variant they store.
type Column struct {
	Name string
	Kind ColumnKind
}

// Table holds the variant columns of one record kind. Every table also has
// id and at columns.
type Table struct {
	Name    string
	Kind    string
	Columns []Column
}

// EventParentTable is keyed by id and holds the type of every event.
const EventParentTable = "event"

// QuarantineTable holds records that failed to decode.
const QuarantineTable = "ingest_quarantine"

var eventTables = []Table{
	{Name: "event_auction_finished", Kind: string(models.KindAuctionFinished), Columns: []Column{
		{"land_location", ColLocation}, {"buyer", ColAddress}, {"start_time", ColU64}, {"final_time", ColU64}, {"final_price", ColU256},
	}},
	{Name: "event_land_bought", Kind: string(models.KindLandBought), Columns: []Column{
		{"land_location", ColLocation}, {"buyer", ColAddress}, {"seller", ColAddress}, {"sold_price", ColU256}, {"token_used", ColAddress},
	}},
	{Name: "event_nuked", Kind: string(models.KindLandNuked), Columns: []Column{
		{"land_location", ColLocation}, {"owner_nuked", ColAddress},
	}},
	{Name: "event_new_auction", Kind: string(models.KindNewAuction), Columns: []Column{
		{"land_location", ColLocation}, {"start_time", ColU64}, {"start_price", ColU256}, {"floor_price", ColU256},
	}},
	{Name: "event_remaining_stake", Kind: string(models.KindRemainingStake), Columns: []Column{
		{"land_location", ColLocation}, {"remaining_stake", ColU256},
	}},
	{Name: "event_address_authorized", Kind: string(models.KindAddressAuthorized), Columns: []Column{
		{"address", ColAddress}, {"authorized_at", ColU64},
	}},
	{Name: "event_address_removed", Kind: string(models.KindAddressRemoved), Columns: []Column{
		{"address", ColAddress}, {"removed_at", ColU64},
	}},
	{Name: "event_verifier_updated", Kind: string(models.KindVerifierUpdated), Columns: []Column{
		{"new_verifier", ColAddress}, {"old_verifier", ColAddress},
	}},
}

var modelTables = []Table{
	{Name: "historical_land", Kind: string(models.KindLand), Columns: []Column{
		{"location", ColLocation}, {"block_date_bought", ColU64}, {"owner", ColAddress}, {"sell_price", ColU256}, {"token_used", ColAddress}, {"level", ColLevel},
	}},
	{Name: "historical_land_stake", Kind: string(models.KindLandStake), Columns: []Column{
		{"location", ColLocation}, {"last_pay_time", ColU64}, {"amount", ColU256},
	}},
}

func EventTables() []Table { return eventTables }
func ModelTables() []Table { return modelTables }

func EventTable(kind models.EventKind) (Table, bool) {
	return findTable(eventTables, string(kind))
}

func ModelTable(kind models.ModelKind) (Table, bool) {
	return findTable(modelTables, string(kind))
}

func findTable(tables []Table, kind string) (Table, bool) {
	for _, t := range tables {
		if t.Kind == kind {
			return t, true
		}
	}
	return Table{}, false
}

// ColumnNames lists the variant columns in order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Values flattens a variant into column order: locations, u64s and levels
// as int64, u256s as decimal strings, addresses as strings.
func (t Table) Values(data any) ([]any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("flatten %s: %w", t.Kind, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, fmt.Errorf("flatten %s: %w", t.Kind, err)
	}

	out := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		raw, ok := fields[c.Name]
		if !ok {
			return nil, fmt.Errorf("flatten %s: no field %s", t.Kind, c.Name)
		}
		v, err := columnValue(c.Kind, raw)
		if err != nil {
			return nil, fmt.Errorf("flatten %s.%s: %w", t.Kind, c.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func columnValue(kind ColumnKind, raw json.RawMessage) (any, error) {
	switch kind {
	case ColLocation, ColU64:
		n, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return nil, err
		}
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("%d does not fit a signed 64-bit column", n)
		}
		return int64(n), nil
	case ColLevel:
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, err
		}
		lvl, err := models.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		return int64(lvl), nil
	case ColU256, ColAddress:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown column kind %d", kind)
}

// ScanDest returns one destination per variant column for rows.Scan.
func (t Table) ScanDest() []any {
	out := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		switch c.Kind {
		case ColLocation, ColU64, ColLevel:
			out[i] = new(int64)
		default:
			out[i] = new(string)
		}
	}
	return out
}

// DecodeEvent rebuilds an event from scanned ScanDest values through the
// same decoder used on the wire.
func (t Table) DecodeEvent(dest []any) (models.EventData, error) {
	fields := make(map[string]any, len(t.Columns))
	for i, c := range t.Columns {
		switch v := dest[i].(type) {
		case *int64:
			if c.Kind == ColLevel {
				fields[c.Name] = models.Level(*v).String()
			} else {
				fields[c.Name] = *v
			}
		case *string:
			fields[c.Name] = *v
		}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return decoder.DecodeEvent(torii.RawRecord{JSON: &torii.JSONRecord{Name: t.Kind, Data: b}})
}

// LatestEventQuery selects the newest event time, NULL when empty.
func LatestEventQuery() string {
	return fmt.Sprintf("SELECT MAX(at) FROM %s", EventParentTable)
}

// LatestModelQuery selects the newest snapshot time over all model tables.
func LatestModelQuery() string {
	parts := make([]string, len(modelTables))
	for i, t := range modelTables {
		parts[i] = fmt.Sprintf("SELECT MAX(at) AS at FROM %s", t.Name)
	}
	return "SELECT MAX(at) FROM (" + strings.Join(parts, " UNION ALL ") + ") latest"
}

// Dialect holds the SQL differences between backends.
type Dialect struct {
	Placeholder func(n int) string // n is 1-based
	IDType      string
	TimeType    string
	IntType     string
	U256Type    string
	TextType    string
	BlobType    string
	U256Select  string // suffix applied when selecting u256 columns
}

func (d Dialect) columnType(k ColumnKind) string {
	switch k {
	case ColU256:
		return d.U256Type
	case ColAddress:
		return d.TextType
	}
	return d.IntType
}

// Schema returns the CREATE statements for every table.
func (d Dialect) Schema() []string {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s PRIMARY KEY, at %s NOT NULL, event_type %s NOT NULL)",
			EventParentTable, d.IDType, d.TimeType, d.TextType),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_at_idx ON %s (at)", EventParentTable, EventParentTable),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id %s PRIMARY KEY, at %s NOT NULL, loop_name %s NOT NULL, tag %s NOT NULL, event_id %s NOT NULL, payload %s, reason %s NOT NULL)",
			QuarantineTable, d.IDType, d.TimeType, d.TextType, d.TextType, d.TextType, d.BlobType, d.TextType),
	}
	for _, t := range eventTables {
		stmts = append(stmts, d.variantTable(t, fmt.Sprintf(" REFERENCES %s (id)", EventParentTable), false))
	}
	for _, t := range modelTables {
		stmts = append(stmts,
			d.variantTable(t, "", true),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_at_idx ON %s (at)", t.Name, t.Name),
		)
	}
	return stmts
}

func (d Dialect) variantTable(t Table, idRef string, withAt bool) string {
	cols := []string{fmt.Sprintf("id %s PRIMARY KEY%s", d.IDType, idRef)}
	if withAt {
		cols = append(cols, fmt.Sprintf("at %s NOT NULL", d.TimeType))
	}
	for _, c := range t.Columns {
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL", c.Name, d.columnType(c.Kind)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(cols, ", "))
}

// SelectColumns lists the variant columns for a SELECT in this dialect.
func (d Dialect) SelectColumns(t Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Name
		if c.Kind == ColU256 {
			cols[i] += d.U256Select
		}
	}
	return strings.Join(cols, ", ")
}

// Insert builds an idempotent insert of the given columns.
func (d Dialect) Insert(table string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING",
		table, strings.Join(columns, ", "), strings.Join(ph, ", "))
}
