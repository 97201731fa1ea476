// Package delivery submits event batches to the destination API and
// reconciles the bulk response back into per-event outcomes.
package delivery

import "fmt"

// StatusTimeout is the synthetic status applied uniformly to a batch
// whose round trip timed out or whose response could not be interpreted.
// The destination may or may not have processed the batch.
const StatusTimeout = 408

// Class partitions outcomes by what is known about the destination's
// side of the exchange.
type Class int

const (
	// ClassDelivered means the destination accepted the record.
	ClassDelivered Class = iota

	// ClassFailed means the destination rejected the record.
	ClassFailed

	// ClassUnknown means the round trip did not complete; the record may
	// or may not have been processed.
	ClassUnknown
)

// String returns the class name for logging.
func (c Class) String() string {
	switch c {
	case ClassDelivered:
		return "delivered"
	case ClassFailed:
		return "failed"
	case ClassUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classify maps an HTTP status to an outcome class. Only 200 and 201
// count as acceptance; a timeout is indeterminate.
func Classify(status int) Class {
	switch {
	case status == 200 || status == 201:
		return ClassDelivered
	case status == StatusTimeout:
		return ClassUnknown
	default:
		return ClassFailed
	}
}

// Outcome is the terminal delivery state of one event in a batch.
type Outcome struct {
	EventID string
	Status  int
	Body    string
	Class   Class
}
