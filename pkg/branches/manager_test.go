package branches

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/go-go-golems/forkchat/pkg/inference/engine/enginetest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, e *enginetest.Engine, options ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(e, options...)
	require.NoError(t, err)
	return m
}

type turn struct {
	Role     conversation.Role
	Content  string
	Sequence int
}

func turns(c conversation.Conversation) []turn {
	ret := make([]turn, 0, len(c))
	for _, m := range c {
		ret = append(ret, turn{m.Role, m.Content, m.Sequence})
	}
	return ret
}

func waitStarted(t *testing.T, e *enginetest.Engine) {
	t.Helper()
	select {
	case <-e.Started:
	case <-time.After(5 * time.Second):
		t.Fatal("engine was not called")
	}
}

func TestNewManagerRequiresEngine(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)
}

func TestCreateBranchStartsEmpty(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	res, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	assert.Equal(t, "a", res.BranchID)

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, history)
	assert.Empty(t, history)
}

func TestCreateBranchDuplicateLeavesOriginalUntouched(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "a", "hello")
	require.NoError(t, err)
	before, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)

	_, err = m.CreateBranch(ctx, "a", "")
	assert.ErrorIs(t, err, ErrDuplicateBranch)

	after, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreateBranchFromMissingParent(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "child", "ghost")
	assert.ErrorIs(t, err, ErrBranchNotFound)

	_, err = m.GetHistory(ctx, "child")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestCreateBranchCopiesAndIsIndependent(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "parent", "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "parent", "m1")
	require.NoError(t, err)
	parentHistory, err := m.GetHistory(ctx, "parent")
	require.NoError(t, err)
	require.Len(t, parentHistory, 2)

	_, err = m.CreateBranch(ctx, "child", "parent")
	require.NoError(t, err)
	childHistory, err := m.GetHistory(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, turns(parentHistory), turns(childHistory))

	_, err = m.SendMessage(ctx, "parent", "only in parent")
	require.NoError(t, err)
	childHistory, err = m.GetHistory(ctx, "child")
	require.NoError(t, err)
	assert.Len(t, childHistory, 2)

	_, err = m.SendMessage(ctx, "child", "only in child")
	require.NoError(t, err)
	parentHistory, err = m.GetHistory(ctx, "parent")
	require.NoError(t, err)
	require.Len(t, parentHistory, 4)
	assert.Equal(t, "only in parent", parentHistory[2].Content)

	childHistory, err = m.GetHistory(ctx, "child")
	require.NoError(t, err)
	require.Len(t, childHistory, 4)
	assert.Equal(t, "only in child", childHistory[2].Content)
	// the child continues numbering after the inherited turns
	assert.Equal(t, 3, childHistory[2].Sequence)
}

func TestGetHistoryIsACopy(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "a", "hello")
	require.NoError(t, err)

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	history[0].Content = "tampered"

	history, err = m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", history[0].Content)
}

func TestSendMessageAppendsHumanThenAssistant(t *testing.T) {
	e := enginetest.New()
	m := newTestManager(t, e)
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	reply, err := m.SendMessage(ctx, "a", "hello")
	require.NoError(t, err)
	assert.Equal(t, "reply 1 to: hello", reply)

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []turn{
		{conversation.RoleHuman, "hello", 1},
		{conversation.RoleAssistant, "reply 1 to: hello", 2},
	}, turns(history))

	// the engine saw the full history ending with the new human turn
	calls := e.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []turn{{conversation.RoleHuman, "hello", 1}}, turns(calls[0]))
}

func TestSendMessageReplaysFullHistory(t *testing.T) {
	e := enginetest.New()
	m := newTestManager(t, e)
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = m.SendMessage(ctx, "a", fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}

	calls := e.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 1)
	assert.Len(t, calls[1], 3)
	assert.Len(t, calls[2], 5)
}

func TestSendMessageValidation(t *testing.T) {
	e := enginetest.New()
	m := newTestManager(t, e)
	ctx := context.Background()

	_, err := m.SendMessage(ctx, "missing", "hello")
	assert.ErrorIs(t, err, ErrBranchNotFound)

	_, err = m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "a", "  \n ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// an unknown branch is reported before the message is looked at
	_, err = m.SendMessage(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrBranchNotFound)
	assert.NotErrorIs(t, err, ErrInvalidInput)

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, 0, e.CallCount())
}

func TestSendMessageModelFailureKeepsHumanTurn(t *testing.T) {
	cause := errors.New("connection refused")
	m := newTestManager(t, enginetest.New(enginetest.FailWith(cause)))
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	_, err = m.SendMessage(ctx, "a", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelInvocation)
	assert.ErrorIs(t, err, cause)

	var mie *ModelInvocationError
	require.True(t, errors.As(err, &mie))
	assert.Equal(t, "a", mie.BranchID)

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []turn{{conversation.RoleHuman, "hello", 1}}, turns(history))

	d, err := m.GetBranch("a")
	require.NoError(t, err)
	assert.Equal(t, StateActive, d.State)
}

func TestConcurrentSendsOnOneBranchHaveGapFreeSequences(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.SendMessage(ctx, "a", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 2*n)
	for i, msg := range history {
		assert.Equal(t, i+1, msg.Sequence)
		if i%2 == 0 {
			assert.Equal(t, conversation.RoleHuman, msg.Role)
		} else {
			// every reply directly follows the turn it answers
			assert.Equal(t, conversation.RoleAssistant, msg.Role)
			assert.Contains(t, msg.Content, history[i-1].Content)
		}
	}
}

func TestSendsAreServedInArrivalOrder(t *testing.T) {
	e := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, e)
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	send := func(content string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.SendMessage(ctx, "a", content)
			assert.NoError(t, err)
		}()
	}

	send("first")
	waitStarted(t, e)
	for _, content := range []string{"second", "third", "fourth"} {
		send(content)
		// give the sender time to queue on the branch lock
		time.Sleep(30 * time.Millisecond)
	}

	for i := 0; i < 4; i++ {
		if i > 0 {
			waitStarted(t, e)
		}
		e.Release()
	}
	wg.Wait()

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	var humans []string
	for _, msg := range history {
		if msg.Role == conversation.RoleHuman {
			humans = append(humans, msg.Content)
		}
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, humans)
}

func TestDifferentBranchesDoNotBlockEachOther(t *testing.T) {
	gated := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, gated)
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "slow", "")
	require.NoError(t, err)
	_, err = m.CreateBranch(ctx, "other", "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.SendMessage(ctx, "slow", "take your time")
		assert.NoError(t, err)
	}()
	waitStarted(t, gated)

	// reads and creations stay available while "slow" is waiting on the model
	_, err = m.GetHistory(ctx, "other")
	require.NoError(t, err)
	_, err = m.CreateBranch(ctx, "third", "other")
	require.NoError(t, err)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		_, err := m.SendMessage(ctx, "other", "quick")
		assert.NoError(t, err)
	}()
	waitStarted(t, gated)
	assert.Equal(t, 2, gated.CallCount())

	gated.Release()
	gated.Release()
	<-sent
	<-done
}

func TestForkWaitsForInFlightSend(t *testing.T) {
	e := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, e)
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		_, err := m.SendMessage(ctx, "a", "hello")
		assert.NoError(t, err)
	}()
	waitStarted(t, e)

	forked := make(chan error, 1)
	go func() {
		_, err := m.CreateBranch(ctx, "b", "a")
		forked <- err
	}()

	select {
	case <-forked:
		t.Fatal("fork completed while a send was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	e.Release()
	<-sent
	require.NoError(t, <-forked)

	history, err := m.GetHistory(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSendGivingUpBeforeLockAppendsNothing(t *testing.T) {
	e := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, e)
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		_, err := m.SendMessage(ctx, "a", "first")
		assert.NoError(t, err)
	}()
	waitStarted(t, e)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.SendMessage(waitCtx, "a", "impatient")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), `waiting for branch "a"`)

	e.Release()
	<-sent

	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
}

func TestSendCompletesAfterCallerCancels(t *testing.T) {
	e := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, e)
	_, err := m.CreateBranch(context.Background(), "a", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		reply string
		err   error
	}
	results := make(chan result, 1)
	go func() {
		reply, err := m.SendMessage(ctx, "a", "hello")
		results <- result{reply, err}
	}()
	waitStarted(t, e)
	cancel()
	e.Release()

	r := <-results
	require.NoError(t, r.err)
	assert.Equal(t, "reply 1 to: hello", r.reply)

	history, err := m.GetHistory(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestListBranches(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()
	for _, id := range []string{"branch-b", "branch-a", "other"} {
		_, err := m.CreateBranch(ctx, id, "")
		require.NoError(t, err)
	}

	all, err := m.ListBranches("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "branch-a", all[0].ID)

	matching, err := m.ListBranches("branch-*")
	require.NoError(t, err)
	require.Len(t, matching, 2)
	assert.Equal(t, "branch-a", matching[0].ID)
	assert.Equal(t, "branch-b", matching[1].ID)

	none, err := m.ListBranches("nothing*")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetBranch(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	_, err := m.GetBranch("a")
	assert.ErrorIs(t, err, ErrBranchNotFound)

	_, err = m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	d, err := m.GetBranch("a")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, d.State)

	_, err = m.SendMessage(ctx, "a", "hello")
	require.NoError(t, err)
	d, err = m.GetBranch("a")
	require.NoError(t, err)
	assert.Equal(t, StateActive, d.State)
	assert.Equal(t, 2, d.MessageCount)
}

func TestManagerPublishesEvents(t *testing.T) {
	sink := events.NewRecordingSink()
	m := newTestManager(t, enginetest.New(), WithEventSink(sink))
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.CreateBranch(ctx, "b", "a")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "a", "hello")
	require.NoError(t, err)

	var types []events.EventType
	for _, e := range sink.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventTypeBranchCreated,
		events.EventTypeBranchCreated,
		events.EventTypeMessageAppended,
		events.EventTypeInferenceCompleted,
		events.EventTypeMessageAppended,
	}, types)

	created := sink.OfType(events.EventTypeBranchCreated)
	assert.Equal(t, "a", created[1].ParentID)

	appended := sink.OfType(events.EventTypeMessageAppended)
	assert.Equal(t, conversation.RoleHuman, appended[0].Role)
	assert.Equal(t, 1, appended[0].Sequence)
	assert.Equal(t, conversation.RoleAssistant, appended[1].Role)
	assert.Equal(t, 2, appended[1].Sequence)
}

func TestManagerPublishesInferenceFailure(t *testing.T) {
	sink := events.NewRecordingSink()
	m := newTestManager(t, enginetest.New(enginetest.FailWith(errors.New("boom"))), WithEventSink(sink))
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "a", "hello")
	require.Error(t, err)

	failed := sink.OfType(events.EventTypeInferenceFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].BranchID)
	assert.Equal(t, "boom", failed[0].Error)
	assert.Len(t, sink.OfType(events.EventTypeMessageAppended), 1)
}

func TestSpaceVenusScenario(t *testing.T) {
	m := newTestManager(t, enginetest.New())
	ctx := context.Background()

	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.SendMessage(ctx, "a", "Let's talk about space.")
	require.NoError(t, err)

	_, err = m.CreateBranch(ctx, "b", "a")
	require.NoError(t, err)
	historyB, err := m.GetHistory(ctx, "b")
	require.NoError(t, err)
	require.Len(t, historyB, 2)
	assert.Equal(t, "Let's talk about space.", historyB[0].Content)

	_, err = m.SendMessage(ctx, "b", "What about Venus?")
	require.NoError(t, err)

	historyA, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, historyA, 2)

	historyB, err = m.GetHistory(ctx, "b")
	require.NoError(t, err)
	require.Len(t, historyB, 4)
	assert.Equal(t, "What about Venus?", historyB[2].Content)
	assert.Equal(t, "reply 2 to: What about Venus?", historyB[3].Content)
}

func TestGetSettledHistoryWaitsForInFlightSend(t *testing.T) {
	e := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, e)
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		_, err := m.SendMessage(ctx, "a", "hello")
		assert.NoError(t, err)
	}()
	waitStarted(t, e)

	// the plain read sees the pending human turn
	history, err := m.GetHistory(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	settled := make(chan conversation.Conversation, 1)
	go func() {
		h, err := m.GetSettledHistory(ctx, "a")
		assert.NoError(t, err)
		settled <- h
	}()

	select {
	case <-settled:
		t.Fatal("settled read returned while a send was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	e.Release()
	<-sent
	select {
	case h := <-settled:
		require.Len(t, h, 2)
		assert.Equal(t, conversation.RoleAssistant, h[1].Role)
	case <-time.After(5 * time.Second):
		t.Fatal("settled read did not return")
	}

	_, err = m.GetSettledHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestGetSettledHistoryGivesUp(t *testing.T) {
	e := enginetest.New(enginetest.WithGate())
	m := newTestManager(t, e)
	ctx := context.Background()
	_, err := m.CreateBranch(ctx, "a", "")
	require.NoError(t, err)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		_, _ = m.SendMessage(ctx, "a", "hello")
	}()
	waitStarted(t, e)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.GetSettledHistory(waitCtx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	e.Release()
	<-sent
}
