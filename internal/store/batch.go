package store

// OpKind distinguishes batch operations.
type OpKind int

const (
	OpPut OpKind = iota + 1
	OpDelete
)

// Op is one write inside a Batch.
type Op struct {
	Kind       OpKind
	Collection Collection
	ID         string
	Data       []byte
	// MustExist makes the whole batch fail with ErrConflict when the
	// document is already gone at commit time.
	MustExist bool
}

// Batch groups writes that commit all-or-nothing.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put upserts a document.
func (b *Batch) Put(coll Collection, id string, data []byte) *Batch {
	b.ops = append(b.ops, Op{Kind: OpPut, Collection: coll, ID: id, Data: data})
	return b
}

// Delete removes a document if present.
func (b *Batch) Delete(coll Collection, id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: coll, ID: id})
	return b
}

// DeleteExisting removes a document and fails the batch if it is missing.
func (b *Batch) DeleteExisting(coll Collection, id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: coll, ID: id, MustExist: true})
	return b
}

// Ops returns the queued operations in insertion order.
func (b *Batch) Ops() []Op {
	if b == nil {
		return nil
	}
	return b.ops
}

// Len reports the number of queued operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Collections lists the distinct collections the batch touches.
func (b *Batch) Collections() []Collection {
	seen := make(map[Collection]struct{})
	var out []Collection
	for _, op := range b.Ops() {
		if _, ok := seen[op.Collection]; ok {
			continue
		}
		seen[op.Collection] = struct{}{}
		out = append(out, op.Collection)
	}
	return out
}
