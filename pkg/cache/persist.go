package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/fetch"
	"github.com/Sternrassler/game-catalog/pkg/store"
)

// Keys of the meta store.
const (
	metaOrder        = "order"
	metaFetchedAt    = "fetchedAt"
	metaETag         = "etag"
	metaLastModified = "lastModified"
)

// itemRecord is the value stored per entry in the items store. Index is the
// entry's position at write time and orders entries missing from meta/order.
type itemRecord struct {
	Entry catalog.Entry `json:"entry"`
	Index int           `json:"index"`
}

// persist replaces the durable copy with snap. meta/fetchedAt is removed
// first and written last, so a partially written copy is never restored.
func (m *Manager) persist(ctx context.Context, snap *Snapshot) error {
	if err := m.store.Clear(ctx, store.Meta); err != nil {
		return err
	}
	if err := m.store.Clear(ctx, store.Items); err != nil {
		return err
	}

	items := make(map[string][]byte, len(snap.Catalog))
	for i, e := range snap.Catalog {
		data, err := json.Marshal(itemRecord{Entry: e, Index: i})
		if err != nil {
			return fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
		items[e.ID] = data
	}
	if err := m.store.PutMany(ctx, store.Items, items); err != nil {
		return err
	}

	order, err := json.Marshal(snap.Catalog.IDs())
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := m.store.Put(ctx, store.Meta, metaOrder, order); err != nil {
		return err
	}

	return m.persistMeta(ctx, snap)
}

// save writes snap to the durable store. With metaOnly only validators and
// fetchedAt are written, which requires a complete durable copy to exist.
func (m *Manager) save(ctx context.Context, snap *Snapshot, metaOnly bool) error {
	if metaOnly {
		return m.persistMeta(ctx, snap)
	}
	err := m.persist(ctx, snap)
	m.durable.Store(err == nil)
	return err
}

// persistMeta writes the validators and fetchedAt of snap, leaving items
// untouched.
func (m *Manager) persistMeta(ctx context.Context, snap *Snapshot) error {
	meta := map[string][]byte{
		metaETag:         []byte(snap.ETag),
		metaLastModified: []byte(snap.LastModified),
	}
	if err := m.store.PutMany(ctx, store.Meta, meta); err != nil {
		return err
	}
	fetchedAt := []byte(snap.FetchedAt.UTC().Format(time.RFC3339Nano))
	return m.store.Put(ctx, store.Meta, metaFetchedAt, fetchedAt)
}

// restore reads the durable copy. It returns nil when there is none, it
// cannot be read, or it is incomplete: no order, or an order none of whose
// IDs has a record.
func (m *Manager) restore(ctx context.Context) *Snapshot {
	raw, ok := m.store.Get(ctx, store.Meta, metaFetchedAt)
	if !ok {
		return nil
	}
	fetchedAt, err := parseFetchedAt(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring durable catalog with unreadable fetchedAt")
		return nil
	}

	values, ok := m.store.All(ctx, store.Items)
	if !ok {
		return nil
	}

	records := make(map[string]itemRecord, len(values))
	for key, data := range values {
		var rec itemRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			m.logger.Debug().Err(err).Str("key", key).Msg("Skipping unreadable durable record")
			continue
		}
		if rec.Entry.ID == "" {
			rec.Entry.ID = key
		}
		records[key] = rec
	}

	raw, ok = m.store.Get(ctx, store.Meta, metaOrder)
	if !ok {
		m.logger.Warn().Msg("Ignoring durable catalog without order")
		return nil
	}
	var order []string
	if err := json.Unmarshal(raw, &order); err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring durable catalog with unreadable order")
		return nil
	}
	if len(order) > 0 && !anyOrdered(order, records) {
		m.logger.Warn().
			Int("order", len(order)).
			Int("records", len(records)).
			Msg("Ignoring durable catalog whose items do not match its order")
		return nil
	}

	var v fetch.Validators
	if raw, ok := m.store.Get(ctx, store.Meta, metaETag); ok {
		v.ETag = string(raw)
	}
	if raw, ok := m.store.Get(ctx, store.Meta, metaLastModified); ok {
		v.LastModified = string(raw)
	}

	m.durable.Store(true)
	return newSnapshot(orderEntries(order, records), fetchedAt, LayerDurable, v)
}

// orderEntries rebuilds a catalog from order and records. IDs in order
// without a record are skipped; records not named in order are appended by
// their stored index, ties broken by ID.
func orderEntries(order []string, records map[string]itemRecord) catalog.Catalog {
	entries := make(catalog.Catalog, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, id := range order {
		if _, dup := seen[id]; dup {
			continue
		}
		rec, ok := records[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, rec.Entry)
	}

	var leftovers []string
	for id := range records {
		if _, ok := seen[id]; !ok {
			leftovers = append(leftovers, id)
		}
	}
	sort.Slice(leftovers, func(i, j int) bool {
		a, b := records[leftovers[i]], records[leftovers[j]]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return leftovers[i] < leftovers[j]
	})
	for _, id := range leftovers {
		entries = append(entries, records[id].Entry)
	}

	return entries
}

func anyOrdered(order []string, records map[string]itemRecord) bool {
	for _, id := range order {
		if _, ok := records[id]; ok {
			return true
		}
	}
	return false
}

// parseFetchedAt accepts RFC 3339 timestamps and epoch milliseconds.
func parseFetchedAt(raw []byte) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse fetchedAt %q: not RFC 3339 or epoch milliseconds", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}
