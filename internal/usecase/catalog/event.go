package catalog

import "fmt"

// EventKind identifies a product lifecycle event.
type EventKind string

const (
	// EventSaved is a create or an update that changed indexable text.
	EventSaved EventKind = "saved"
	// EventDeleted is a product removal.
	EventDeleted EventKind = "deleted"
)

// Event is one product lifecycle notification from the host application.
// A saved event may carry the new document inline or by reference;
// without either, the product's stored document reference is used.
type Event struct {
	Kind        EventKind
	ProductID   string
	Document    []byte
	ContentType string
	DocumentRef string
	// Force re-indexes even when the text fingerprint is unchanged.
	Force bool
}

// Validate checks that the event can be dispatched.
func (e Event) Validate() error {
	if e.ProductID == "" {
		return fmt.Errorf("product id is required")
	}
	if e.Kind != EventSaved && e.Kind != EventDeleted {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// Outcome is the result of handling one saved event.
type Outcome string

const (
	// OutcomeIndexed means the record was upserted and the product marked indexed.
	OutcomeIndexed Outcome = "indexed"
	// OutcomeSkipped means the stored fingerprint matched and nothing was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeStale means a stage failed and the product was marked stale.
	OutcomeStale Outcome = "stale"
)
