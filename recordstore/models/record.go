package models

// Record is a single row of a collection.
type Record struct {
	Collection *Collection
	Data       map[string]any
}

func NewRecord(c *Collection) *Record {
	return &Record{Collection: c, Data: make(map[string]any)}
}

func (r *Record) ID() string {
	id, _ := r.Data[FieldNameID].(string)
	return id
}

func (r *Record) Get(name string) any {
	return r.Data[name]
}

func (r *Record) Set(name string, v any) {
	r.Data[name] = v
}

// PublicExport returns the record without hidden fields, extended with the
// collection identity.
func (r *Record) PublicExport() map[string]any {
	out := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		if f, ok := r.Collection.FieldByName(k); ok && f.Hidden {
			continue
		}
		out[k] = v
	}
	out["collectionId"] = r.Collection.ID
	out["collectionName"] = r.Collection.Name
	return out
}
