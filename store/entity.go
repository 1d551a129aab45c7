package store

// Metadata field names stamped by the store on every record.
const (
	FieldID          = "id"
	FieldRID         = "_rid"
	FieldSelf        = "_self"
	FieldETag        = "_etag"
	FieldAttachments = "_attachments"
	FieldTimestamp   = "_ts"
)

// Entity is a schema-free document owned by the caller.
// It always carries a string "id" once stored.
type Entity map[string]any

// ID returns the entity's id, or "" if absent or not a string.
func (e Entity) ID() string {
	id, _ := e[FieldID].(string)
	return id
}

// Record is a store-native document: an Entity plus store-managed metadata.
type Record map[string]any

// ID returns the record's id, or "" if absent or not a string.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// ETag returns the record's version tag, or "".
func (r Record) ETag() string {
	etag, _ := r[FieldETag].(string)
	return etag
}

// IsMetadataField reports whether name is one of the store-managed fields.
func IsMetadataField(name string) bool {
	switch name {
	case FieldRID, FieldSelf, FieldETag, FieldAttachments, FieldTimestamp:
		return true
	}
	return false
}

// Wash converts a record into an entity by dropping the store-managed
// metadata fields. A nil record yields a nil entity. The result is a new
// map; nested values are shared with the record.
func Wash(r Record) Entity {
	if r == nil {
		return nil
	}
	e := Entity{FieldID: r[FieldID]}
	for k, v := range r {
		if IsMetadataField(k) {
			continue
		}
		e[k] = v
	}
	return e
}

// StripMetadata returns a copy of e without store-managed fields, suitable
// for sending to a connector.
func StripMetadata(e Entity) Record {
	if e == nil {
		return nil
	}
	r := make(Record, len(e))
	for k, v := range e {
		if IsMetadataField(k) {
			continue
		}
		r[k] = v
	}
	return r
}

// normalize applies Wash when normalization is enabled, otherwise it passes
// the record through unchanged.
func (c *Client) normalize(r Record) Entity {
	if r == nil {
		return nil
	}
	if !c.washDocuments.Load() {
		return Entity(r)
	}
	return Wash(r)
}

func (c *Client) normalizeAll(rs []Record) []Entity {
	out := make([]Entity, 0, len(rs))
	for _, r := range rs {
		out = append(out, c.normalize(r))
	}
	return out
}
