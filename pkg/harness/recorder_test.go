package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordStampsDefaults(t *testing.T) {
	r := NewRecorder()
	in := r.Record(Interaction{Component: "api", MessageType: "GET /orders"})

	assert.NotEmpty(t, in.ID)
	assert.False(t, in.Timestamp.IsZero())
	assert.Equal(t, "api", in.ServiceName)
	assert.Equal(t, StatusCompleted, in.Status)
}

func TestRecorder_RecordMarksFailedWhenErrSet(t *testing.T) {
	r := NewRecorder()
	in := r.Record(Interaction{Component: "api", Err: assertErr("boom")})
	assert.Equal(t, StatusFailed, in.Status)
}

func TestRecorder_QueryMatchesOnAnyCombinationOfFields(t *testing.T) {
	r := NewRecorder()
	r.Record(Interaction{Component: "api", ServiceName: "api", MessageType: "GET /orders", TraceID: "t1", Direction: DirectionDownstream})
	r.Record(Interaction{Component: "api", ServiceName: "api", MessageType: "GET /health", TraceID: "t2", Direction: DirectionDownstream})
	r.Record(Interaction{Component: "worker", ServiceName: "worker", MessageType: "GET /orders", TraceID: "t1", Direction: DirectionUpstream})

	byService := r.Query(InteractionFilter{ServiceName: "worker"})
	require.Len(t, byService, 1)
	assert.Equal(t, "worker", byService[0].ServiceName)

	byTraceAndDirection := r.Query(InteractionFilter{TraceID: "t1", Direction: DirectionDownstream})
	require.Len(t, byTraceAndDirection, 1)
	assert.Equal(t, "GET /orders", byTraceAndDirection[0].MessageType)

	byMessageType := r.Query(InteractionFilter{MessageType: "GET /orders"})
	assert.Len(t, byMessageType, 2)
}

func TestRecorder_QueryPredicateAppliesOnTopOfFieldFilters(t *testing.T) {
	r := NewRecorder()
	r.Record(Interaction{Component: "api", MessageType: "GET /orders", ResponsePayload: []byte(`{"total":1}`)})
	r.Record(Interaction{Component: "api", MessageType: "GET /orders", ResponsePayload: []byte(`{"total":2}`)})

	matches := r.Query(InteractionFilter{
		MessageType: "GET /orders",
		Predicate:   func(in Interaction) bool { return string(in.ResponsePayload) == `{"total":2}` },
	})
	require.Len(t, matches, 1)
	assert.Equal(t, `{"total":2}`, string(matches[0].ResponsePayload))
}

func TestRecorder_QueryTimeRangeExcludesOutsideInteractions(t *testing.T) {
	r := NewRecorder()
	now := time.Now()
	r.Record(Interaction{Component: "api", Timestamp: now.Add(-time.Hour)})
	r.Record(Interaction{Component: "api", Timestamp: now})

	matches := r.Query(InteractionFilter{Since: now.Add(-time.Minute)})
	require.Len(t, matches, 1)
}

func TestRecorder_AllReturnsACopyNotTheLiveSlice(t *testing.T) {
	r := NewRecorder()
	r.Record(Interaction{Component: "api"})

	out := r.All()
	out[0].Component = "mutated"

	assert.Equal(t, "api", r.All()[0].Component)
}
