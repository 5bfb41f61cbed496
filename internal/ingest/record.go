package ingest

import "time"

// SourceDocument is a raw document as retrieved from its source. It lives
// only between fetch and normalization; the staging relay persists the
// normalized records, not the document itself.
type SourceDocument struct {
	Family      Family
	Payload     []byte
	SourceID    string
	RetrievedAt time.Time
}

// Field is one typed column value, kept as text until load time. Order
// matters: fields are written to staging and rendered into inserts in the
// order the family's table declares them.
type Field struct {
	Name  string
	Value string
}

// NormalizedRecord is one warehouse row with a deterministic identity.
// Multi-row documents (receipts) share the parent identity across all their
// records so the loader can skip the group as a unit.
type NormalizedRecord struct {
	Family   Family
	Identity string
	Fields   []Field
}

// Get returns the named field value.
func (r *NormalizedRecord) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the named field value in place, appending if absent.
func (r *NormalizedRecord) Set(name, value string) {
	for i, f := range r.Fields {
		if f.Name == name {
			r.Fields[i].Value = value
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: value})
}
