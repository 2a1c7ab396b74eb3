package harness

import (
	"sync"
	"time"
)

// InteractionStatus tracks an Interaction's lifecycle (spec §4.9).
type InteractionStatus string

const (
	StatusPending   InteractionStatus = "pending"
	StatusCompleted InteractionStatus = "completed"
	StatusFailed    InteractionStatus = "failed"
	StatusTimeout   InteractionStatus = "timeout"
)

// Direction of an Interaction relative to the harness.
const (
	DirectionDownstream = "downstream"
	DirectionUpstream   = "upstream"
)

// Interaction is one recorded unit of traffic the harness observed: a
// request/response pair, a published/delivered event, or a dropped message
// (spec §3, §4.9).
type Interaction struct {
	ID         string
	TestCaseID string
	StepID     string
	Component  string
	// ServiceName identifies the component, duplicated from Component for
	// query(filter)'s serviceName key (spec §3's Interaction record shape).
	ServiceName string
	MessageType string
	Protocol    string
	Direction   string // DirectionDownstream | DirectionUpstream
	TraceID     string
	Status      InteractionStatus

	RequestTimestamp  time.Time
	ResponseTimestamp time.Time
	Duration          time.Duration

	RequestPayload  []byte
	ResponsePayload []byte

	Message  *Message
	Response *Message
	Dropped  bool
	Err      error

	Timestamp time.Time
}

// InteractionFilter narrows a Recorder query (spec §4.9's query API): any
// zero-valued field is unconstrained. Predicate, if set, is applied in
// addition to the other fields, not instead of them.
type InteractionFilter struct {
	ServiceName string
	MessageType string
	TraceID     string
	Direction   string
	Status      InteractionStatus
	Protocol    string
	Since       time.Time
	Until       time.Time
	Predicate   func(Interaction) bool
}

func (f InteractionFilter) matches(in Interaction) bool {
	if f.ServiceName != "" && in.ServiceName != f.ServiceName {
		return false
	}
	if f.MessageType != "" && in.MessageType != f.MessageType {
		return false
	}
	if f.TraceID != "" && in.TraceID != f.TraceID {
		return false
	}
	if f.Direction != "" && in.Direction != f.Direction {
		return false
	}
	if f.Status != "" && in.Status != f.Status {
		return false
	}
	if f.Protocol != "" && in.Protocol != f.Protocol {
		return false
	}
	if !f.Since.IsZero() && in.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && in.Timestamp.After(f.Until) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(in) {
		return false
	}
	return true
}

// Recorder accumulates Interaction records for the lifetime of a scenario
// run. Safe for concurrent use by multiple components.
type Recorder struct {
	mu           sync.Mutex
	interactions []Interaction
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one Interaction, stamping ID/Timestamp/ServiceName if
// unset.
func (r *Recorder) Record(in Interaction) Interaction {
	if in.ID == "" {
		in.ID = generateID("interaction")
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	if in.ServiceName == "" {
		in.ServiceName = in.Component
	}
	if in.Status == "" {
		in.Status = StatusCompleted
		if in.Err != nil {
			in.Status = StatusFailed
		}
	}
	r.mu.Lock()
	r.interactions = append(r.interactions, in)
	r.mu.Unlock()
	return in
}

// All returns a snapshot copy of every recorded interaction, in record
// order.
func (r *Recorder) All() []Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Interaction, len(r.interactions))
	copy(out, r.interactions)
	return out
}

// ForComponent returns the subset of interactions attributed to component.
func (r *Recorder) ForComponent(component string) []Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Interaction
	for _, in := range r.interactions {
		if in.Component == component {
			out = append(out, in)
		}
	}
	return out
}

// ForTestCase returns the subset of interactions recorded during testCaseID.
func (r *Recorder) ForTestCase(testCaseID string) []Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Interaction
	for _, in := range r.interactions {
		if in.TestCaseID == testCaseID {
			out = append(out, in)
		}
	}
	return out
}

// Query returns every interaction matching filter, in record order (spec
// §4.9: "query(filter) returns interactions matching any combination of
// serviceName, messageType, traceId, direction, status, protocol, time
// range, or an arbitrary predicate").
func (r *Recorder) Query(filter InteractionFilter) []Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Interaction
	for _, in := range r.interactions {
		if filter.matches(in) {
			out = append(out, in)
		}
	}
	return out
}
