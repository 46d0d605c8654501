package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seubert/gammalog/internal/pkg/vars"
)

type fakeAdapter struct {
	name     string
	produces []vars.Name
	result   PollResult
}

func (f *fakeAdapter) Name() string                      { return f.name }
func (f *fakeAdapter) Produces() []vars.Name             { return f.produces }
func (f *fakeAdapter) Poll(_ context.Context) PollResult { return f.result }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeAdapter{name: "a"}, true, time.Second))
	require.NoError(t, r.Register(&fakeAdapter{name: "b"}, false, time.Second))

	err := r.Register(&fakeAdapter{name: "a"}, true, time.Second)
	assert.ErrorIs(t, err, ErrDuplicateDevice)
}

func TestActivatedOrderAndFilter(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeAdapter{name: "a"}, true, time.Second))
	require.NoError(t, r.Register(&fakeAdapter{name: "b"}, false, time.Second))
	require.NoError(t, r.Register(&fakeAdapter{name: "c"}, true, 2*time.Second))

	active := r.Activated()
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].Adapter.Name())
	assert.Equal(t, "c", active[1].Adapter.Name())
	assert.Equal(t, 2*time.Second, active[1].Timeout)
}

func TestStatesSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeAdapter{name: "a", produces: []vars.Name{vars.CPM}}, true, time.Second))

	states := r.States()
	require.Len(t, states, 1)
	assert.Equal(t, "a", states[0].Name)
	assert.True(t, states[0].Activated)
	assert.False(t, states[0].Connected)
	assert.Equal(t, []vars.Name{vars.CPM}, states[0].Produces)
}

func TestRecordOutcome(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeAdapter{name: "a"}, true, time.Second))

	r.RecordOutcome("a", Ok(nil))
	assert.True(t, r.States()[0].Connected)
	assert.NoError(t, r.States()[0].LastError)

	transportErr := errors.New("checksum mismatch")
	r.RecordOutcome("a", Failed(transportErr))
	assert.False(t, r.States()[0].Connected)
	assert.ErrorIs(t, r.States()[0].LastError, transportErr)

	r.RecordOutcome("a", TimedOut())
	assert.ErrorIs(t, r.States()[0].LastError, context.DeadlineExceeded)
}

func TestCheckVariableClaims(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeAdapter{name: "a", produces: []vars.Name{vars.CPM, vars.Temp}}, true, time.Second))
	require.NoError(t, r.Register(&fakeAdapter{name: "b", produces: []vars.Name{vars.Temp}}, true, time.Second))
	require.NoError(t, r.Register(&fakeAdapter{name: "c", produces: []vars.Name{vars.CPM}}, false, time.Second))

	warnings := r.CheckVariableClaims()
	require.Len(t, warnings, 1, "deactivated adapters do not claim variables")
	assert.Contains(t, warnings[0], "Temp")
	assert.Contains(t, warnings[0], "b wins")
}

func TestPollResultConstructors(t *testing.T) {
	ok := Ok(map[vars.Name]float64{vars.CPM: 42})
	assert.Equal(t, Success, ok.Kind)
	assert.Equal(t, 42.0, ok.Values[vars.CPM])

	to := TimedOut()
	assert.Equal(t, Timeout, to.Kind)
	assert.Equal(t, "timeout", to.Kind.String())

	fa := Failed(errors.New("boom"))
	assert.Equal(t, Failure, fa.Kind)
	assert.EqualError(t, fa.Err, "boom")
}
