package ports

import "context"

// Collections of the denormalized document stores. Each service opens only
// its own collection; cross-service consistency flows through the bus.
const (
	CollectionPredictions = "prediction_records"
	CollectionPatients    = "patients"
	CollectionStaff       = "staff"
)

// Filter selects documents. Eq compares a dotted path against a value;
// Elem matches documents whose array at the given path contains at least one
// element satisfying the nested filter.
type Filter struct {
	Eq   map[string]any
	Elem map[string]Filter
}

// MatchedSet patches every element of an array that satisfies Match,
// setting dotted paths relative to the element. This is the positional
// "$set on a matched array element" pattern.
type MatchedSet struct {
	Array string
	Match Filter
	Set   map[string]any
}

// Update describes a single atomic mutation. The four shapes below cover
// every write the lifecycle handlers and the orchestrator perform.
type Update struct {
	// Set writes dotted paths on the document.
	Set map[string]any
	// Push appends one element to the array at each path.
	Push map[string]any
	// Pull removes every array element satisfying the element filter.
	Pull map[string]Filter
	// SetMatched patches matched array elements in place.
	SetMatched []MatchedSet
}

// DocumentStore is the minimal persistence contract the sync handlers and
// the orchestrator require. Every update method applies its mutation in one
// atomic statement against the matched document(s).
type DocumentStore interface {
	InsertOne(ctx context.Context, collection string, doc any) error
	// FindOne decodes the first matching document into out, or
	// domain.ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter, out any) error
	// FindOneAndUpdate atomically mutates one matching document and decodes
	// its post-update state into out (out may be nil). Returns
	// domain.ErrNotFound when nothing matches.
	FindOneAndUpdate(ctx context.Context, collection string, filter Filter, update Update, out any) error
	UpdateMany(ctx context.Context, collection string, filter Filter, update Update) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
	// ArrayLength reports the length of the array at arrayPath in the first
	// matching document, or domain.ErrNotFound.
	ArrayLength(ctx context.Context, collection string, filter Filter, arrayPath string) (int, error)
	// FindAll decodes every matching document; an empty filter lists the
	// collection.
	FindAll(ctx context.Context, collection string, filter Filter, out any) error
}
