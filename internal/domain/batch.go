package domain

// Op is the kind of a single conditional store operation within a Batch.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// BatchItem is one conditional operation against the store: a put or delete
// of a single key within a single bucket, guarded by an expected version.
// ExpectVersion is empty for unique-constrained creates (put on a key that
// must not already exist).
type BatchItem struct {
	Op            Op
	Bucket        string
	Key           string
	Value         interface{}
	ExpectVersion string
	// Unique, when true on a put, asks the store to fail with
	// unique_conflict rather than version_conflict if the key already
	// exists, regardless of ExpectVersion.
	Unique bool
}

// Batch is an ordered list of conditional operations committed atomically:
// either every item applies, or none do.
type Batch []BatchItem

// Reset truncates the batch for reuse across retry iterations, per the
// allocation driver's per-iteration reset stage.
func (b *Batch) Reset() { *b = (*b)[:0] }

// Append adds items to the batch in order.
func (b *Batch) Append(items ...BatchItem) { *b = append(*b, items...) }
