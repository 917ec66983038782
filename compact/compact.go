// Package compact maps sparse string keys to dense zero-based integer ids
// and back.
//
// A key's id is its rank in the sorted, deduplicated list of all distinct
// keys in its domain, so the id space is exactly [0, distinct_count). Both
// directions work as a lock-step walk of two sorted streams: the label list
// and the stream being translated must share the same sort order.
//
// The walk verifies monotonicity by default and fails fast with
// ErrOrderViolation when an input stream is out of order; the original
// unchecked variant, which silently mis-assigns ids, is available by
// constructing with Strict set to false.
package compact

import (
	"errors"
	"fmt"

	"github.com/hupe1980/minrec/stash"
)

var (
	// ErrKeyNotFound is returned when a key is absent from the label list.
	ErrKeyNotFound = errors.New("compact: key not in label list")

	// ErrIDOutOfRange is returned when an id is past the end of the label
	// list.
	ErrIDOutOfRange = errors.New("compact: id past end of label list")
)

// ErrOrderViolation reports that the stream being translated is not in the
// sort order shared with the label list.
type ErrOrderViolation struct {
	Prev string
	Next string
}

func (e *ErrOrderViolation) Error() string {
	return fmt.Sprintf("compact: input out of order: %q after %q", e.Next, e.Prev)
}

// Options configures a Numberer or Restorer.
type Options struct {
	// Strict verifies that translated keys arrive in nondecreasing order,
	// at the cost of one comparison per row. Without it, an out-of-order
	// stream silently produces wrong ids.
	Strict bool
}

// Numberer translates string keys to their dense ids.
//
// The caller must feed keys in nondecreasing order matching the label
// stash's sort order. The label iterator is owned by the Numberer and
// closed by Close.
type Numberer struct {
	labels  *stash.Iterator[string]
	label   string
	index   uint32
	started bool
	strict  bool
	prev    string
}

// NewNumberer creates a Numberer over a sorted, deduplicated label stash.
func NewNumberer(labels *stash.Stash[string], opts Options) (*Numberer, error) {
	it, err := labels.Iter()
	if err != nil {
		return nil, err
	}
	return &Numberer{labels: it, strict: opts.Strict}, nil
}

// Number returns the dense id of key, advancing the label walk as needed.
func (n *Numberer) Number(key string) (uint32, error) {
	if n.strict && n.started && key < n.prev {
		return 0, &ErrOrderViolation{Prev: n.prev, Next: key}
	}

	if !n.started {
		if !n.labels.Next() {
			if err := n.labels.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w: %q (empty label list)", ErrKeyNotFound, key)
		}
		n.label = n.labels.Row()
		n.started = true
	}

	for n.label != key {
		if n.strict && n.label > key {
			// The label list is sorted, so a greater label means key can
			// never match: either the key is unknown or the stream is out
			// of the shared order.
			return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		if !n.labels.Next() {
			if err := n.labels.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		n.label = n.labels.Row()
		n.index++
	}

	n.prev = key
	return n.index, nil
}

// Close releases the underlying label iterator.
func (n *Numberer) Close() error {
	return n.labels.Close()
}

// Restorer translates dense ids back to their string keys.
//
// Ids must arrive in nondecreasing order; this is inherent to the lock-step
// walk and always verified.
type Restorer struct {
	labels  *stash.Iterator[string]
	label   string
	index   uint32
	started bool
}

// NewRestorer creates a Restorer over the same sorted label stash the ids
// were assigned from.
func NewRestorer(labels *stash.Stash[string]) (*Restorer, error) {
	it, err := labels.Iter()
	if err != nil {
		return nil, err
	}
	return &Restorer{labels: it}, nil
}

// Restore returns the string key for id, advancing the label walk as needed.
func (r *Restorer) Restore(id uint32) (string, error) {
	if r.started && id < r.index {
		return "", fmt.Errorf("compact: ids out of order: %d after %d", id, r.index)
	}

	if !r.started {
		if !r.labels.Next() {
			if err := r.labels.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: %d (empty label list)", ErrIDOutOfRange, id)
		}
		r.label = r.labels.Row()
		r.started = true
	}

	for r.index != id {
		if !r.labels.Next() {
			if err := r.labels.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: %d", ErrIDOutOfRange, id)
		}
		r.label = r.labels.Row()
		r.index++
	}

	return r.label, nil
}

// Close releases the underlying label iterator.
func (r *Restorer) Close() error {
	return r.labels.Close()
}
