package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-etl/internal/objectstore"
)

const (
	rawPrefix       = "raw"
	processedPrefix = "processed"
)

// RawEnvelope is the fetched bank email as staged before parsing: enough to
// re-run normalization without refetching the source.
type RawEnvelope struct {
	MessageID string `json:"message_id"`
	Date      string `json:"date"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"html_body"`
}

// Relay persists batches of normalized records between the parse and load
// stages, keyed by document identity and processing timestamp. A failed load
// retries from the staged artifact without re-running the parser.
type Relay struct {
	store  objectstore.Store
	bucket string
	now    func() time.Time
}

// NewRelay creates a staging relay writing into the given bucket.
func NewRelay(store objectstore.Store, bucket string) *Relay {
	return &Relay{store: store, bucket: bucket, now: time.Now}
}

// StageRaw persists a fetched bank email under the raw area.
func (r *Relay) StageRaw(ctx context.Context, env *RawEnvelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("staging: marshaling raw envelope %s: %w", env.MessageID, err)
	}
	day := env.Date
	if len(day) > 10 {
		day = day[:10]
	}
	key := fmt.Sprintf("%s/%s/%s-%s.json", rawPrefix, FamilyBankEmail, day, env.MessageID)
	if err := r.store.Put(ctx, r.bucket, key, data); err != nil {
		return "", fmt.Errorf("staging: writing %s: %w", key, err)
	}
	return key, nil
}

// ReadRaw reads a staged bank email envelope back.
func (r *Relay) ReadRaw(ctx context.Context, key string) (*RawEnvelope, error) {
	data, err := r.store.Get(ctx, r.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("staging: reading %s: %w", key, err)
	}
	var env RawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("staging: decoding %s: %w", key, err)
	}
	return &env, nil
}

// Retire removes a raw artifact once its normalized records are staged, so
// the next transform run starts from an empty raw area instead of re-parsing
// history.
func (r *Relay) Retire(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, r.bucket, key); err != nil {
		return fmt.Errorf("staging: retiring %s: %w", key, err)
	}
	return nil
}

// ListRaw lists the raw artifacts staged for a family.
func (r *Relay) ListRaw(ctx context.Context, family Family) ([]string, error) {
	return r.store.List(ctx, r.bucket, fmt.Sprintf("%s/%s/", rawPrefix, family))
}

// Stage writes one document's normalized records as a CSV artifact and
// returns its key.
func (r *Relay) Stage(ctx context.Context, family Family, identity string, records []*NormalizedRecord) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("staging: no records for %s document %s", family, identity)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	columns := family.Columns()
	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("staging: writing header: %w", err)
	}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i], _ = rec.Get(col)
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("staging: writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("staging: flushing csv: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s-%s.csv",
		processedPrefix, family, r.now().UTC().Format("20060102T150405"), sanitizeKeyPart(identity))
	if err := r.store.Put(ctx, r.bucket, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("staging: writing %s: %w", key, err)
	}
	return key, nil
}

// ReadStaged reads a staged artifact back into normalized records. Identity
// comes from the family's identity column, so every record of a multi-row
// document carries the parent identity again.
func (r *Relay) ReadStaged(ctx context.Context, family Family, key string) ([]*NormalizedRecord, error) {
	data, err := r.store.Get(ctx, r.bucket, key)
	if err != nil {
		return nil, fmt.Errorf("staging: reading %s: %w", key, err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("staging: parsing %s: %w", key, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("staging: artifact %s has no data rows", key)
	}

	header := rows[0]
	idColumn := family.IdentityColumn()

	records := make([]*NormalizedRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := &NormalizedRecord{Family: family}
		for i, col := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			rec.Fields = append(rec.Fields, Field{Name: col, Value: value})
			if col == idColumn {
				rec.Identity = value
			}
		}
		if rec.Identity == "" {
			return nil, fmt.Errorf("staging: artifact %s row missing identity column %s", key, idColumn)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListStaged lists the processed artifacts staged for a family.
func (r *Relay) ListStaged(ctx context.Context, family Family) ([]string, error) {
	return r.store.List(ctx, r.bucket, fmt.Sprintf("%s/%s/", processedPrefix, family))
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
