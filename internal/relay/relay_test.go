package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"portal-relay/internal/portal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Prepare() {
	m.Called()
}

func (m *MockSink) SetHeaders(subject, from string) error {
	return m.Called(subject, from).Error(0)
}

func (m *MockSink) SetBody(html string) error {
	return m.Called(html).Error(0)
}

func (m *MockSink) Send(ctx context.Context, to ...string) error {
	return m.Called(ctx, to).Error(0)
}

func (m *MockSink) Close() error {
	return m.Called().Error(0)
}

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) HasUnread(ctx context.Context, listing *goquery.Selection) (bool, error) {
	args := m.Called(ctx, listing)
	return args.Bool(0), args.Error(1)
}

func (m *MockFetcher) FetchUnread(ctx context.Context, max int) ([]portal.Message, error) {
	args := m.Called(ctx, max)
	msgs, _ := args.Get(0).([]portal.Message)
	return msgs, args.Error(1)
}

func (m *MockFetcher) FetchAll(ctx context.Context, max int) ([]portal.Message, error) {
	args := m.Called(ctx, max)
	msgs, _ := args.Get(0).([]portal.Message)
	return msgs, args.Error(1)
}

// fakePortal runs fn with the fetcher, like a gateway whose login
// succeeded or failed with loginErr
type fakePortal struct {
	mu       sync.Mutex
	fetcher  portal.Fetcher
	loginErr error
	sessions int
	released int
}

func (p *fakePortal) WithSession(_ context.Context, fn func(portal.Fetcher) error) error {
	p.mu.Lock()
	p.sessions++
	p.mu.Unlock()

	if p.loginErr != nil {
		return p.loginErr
	}
	defer func() {
		p.mu.Lock()
		p.released++
		p.mu.Unlock()
	}()
	return fn(p.fetcher)
}

func messages(n int) []portal.Message {
	out := make([]portal.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, portal.Message{
			Sender:  "Sender " + string(rune('A'+i)),
			Subject: "Subject " + string(rune('A'+i)),
			Body:    "<div>Body " + string(rune('A'+i)) + "</div>",
		})
	}
	return out
}

func newTestRelay(cfg Config, source *fakePortal, sink Sink) *Relay {
	r := New(cfg,
		func() (Portal, error) { return source, nil },
		func(context.Context) (Sink, error) { return sink, nil },
		testLogger())
	return r
}

func TestRunCycle_RelaysInOrder(t *testing.T) {
	fetcher := &MockFetcher{}
	fetcher.On("FetchUnread", mock.Anything, 3).Return(messages(2), nil).Once()

	sink := &MockSink{}
	var calls []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { calls = append(calls, name) }
	}
	sink.On("Prepare").Run(record("prepare")).Return()
	sink.On("SetHeaders", "Subject A", "Sender A").Run(record("headers A")).Return(nil).Once()
	sink.On("SetHeaders", "Subject B", "Sender B").Run(record("headers B")).Return(nil).Once()
	sink.On("SetBody", "<div>Body A</div>").Run(record("body A")).Return(nil).Once()
	sink.On("SetBody", "<div>Body B</div>").Run(record("body B")).Return(nil).Once()
	sink.On("Send", mock.Anything, []string(nil)).Run(record("send")).Return(nil).Twice()
	sink.On("Close").Run(record("close")).Return(nil).Once()

	source := &fakePortal{fetcher: fetcher}
	r := newTestRelay(Config{MaxMessages: 3, OnlyUnread: true}, source, sink)

	sent, err := r.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{
		"prepare", "headers A", "body A", "send",
		"prepare", "headers B", "body B", "send",
		"close",
	}, calls)
	assert.Equal(t, 1, source.released)
	fetcher.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestRunCycle_FetchAllWhenNotOnlyUnread(t *testing.T) {
	fetcher := &MockFetcher{}
	fetcher.On("FetchAll", mock.Anything, 5).Return([]portal.Message{}, nil).Once()

	sink := &MockSink{}
	r := newTestRelay(Config{MaxMessages: 5}, &fakePortal{fetcher: fetcher}, sink)

	sent, err := r.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Zero(t, sent)
	fetcher.AssertExpectations(t)
	sink.AssertNotCalled(t, "Close")
}

func TestRunCycle_ExplicitRecipient(t *testing.T) {
	fetcher := &MockFetcher{}
	fetcher.On("FetchUnread", mock.Anything, 3).Return(messages(1), nil).Once()

	sink := &MockSink{}
	sink.On("Prepare").Return()
	sink.On("SetHeaders", mock.Anything, mock.Anything).Return(nil)
	sink.On("SetBody", mock.Anything).Return(nil)
	sink.On("Send", mock.Anything, []string{"forward@example.com"}).Return(nil).Once()
	sink.On("Close").Return(nil)

	r := newTestRelay(Config{MaxMessages: 3, OnlyUnread: true, Recipient: "forward@example.com"}, &fakePortal{fetcher: fetcher}, sink)

	_, err := r.RunCycle(context.Background())

	require.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestRunCycle_LoginFailure(t *testing.T) {
	loginErr := &portal.AuthError{Op: "authenticate", Message: "login not successful after 10 tries"}
	sink := &MockSink{}
	r := newTestRelay(Config{MaxMessages: 3, OnlyUnread: true}, &fakePortal{loginErr: loginErr}, sink)

	sent, err := r.RunCycle(context.Background())

	assert.Zero(t, sent)
	assert.True(t, portal.IsAuthError(err))
	sink.AssertNotCalled(t, "Prepare")

	snap := r.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Cycles)
	assert.Equal(t, int64(1), snap.FailedCycles)
	assert.Contains(t, snap.LastError, "login not successful")
}

func TestRunCycle_SendFailureContinuesWithNextMessage(t *testing.T) {
	fetcher := &MockFetcher{}
	fetcher.On("FetchUnread", mock.Anything, 3).Return(messages(3), nil).Once()

	sink := &MockSink{}
	sink.On("Prepare").Return()
	sink.On("SetHeaders", mock.Anything, mock.Anything).Return(nil)
	sink.On("SetBody", mock.Anything).Return(nil)
	sink.On("Send", mock.Anything, mock.Anything).Return(errors.New("452 mailbox full")).Once()
	sink.On("Send", mock.Anything, mock.Anything).Return(nil).Twice()
	sink.On("Close").Return(nil).Once()

	source := &fakePortal{fetcher: fetcher}
	r := newTestRelay(Config{MaxMessages: 3, OnlyUnread: true}, source, sink)

	sent, err := r.RunCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 messages not relayed")
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, source.released)

	snap := r.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.RelayedMessages)
	assert.Equal(t, int64(1), snap.FailedMessages)
	sink.AssertExpectations(t)
}

func TestRunCycle_SinkOpenFailure(t *testing.T) {
	fetcher := &MockFetcher{}
	fetcher.On("FetchUnread", mock.Anything, 3).Return(messages(1), nil).Once()
	source := &fakePortal{fetcher: fetcher}

	r := New(Config{MaxMessages: 3, OnlyUnread: true},
		func() (Portal, error) { return source, nil },
		func(context.Context) (Sink, error) { return nil, errors.New("dial tcp: refused") },
		testLogger())

	_, err := r.RunCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open mailer")
	assert.Equal(t, 1, source.released)
}

func TestRun_OnceReturnsCycleResult(t *testing.T) {
	loginErr := errors.New("portal down")
	r := newTestRelay(Config{Once: true, WaitTime: time.Hour}, &fakePortal{loginErr: loginErr}, &MockSink{})
	r.sleep = func(context.Context, time.Duration) error {
		t.Fatal("once mode must not sleep")
		return nil
	}

	err := r.Run(context.Background())

	assert.ErrorIs(t, err, loginErr)
}

func TestRun_ContinuesAfterFailedCycleUntilInterrupted(t *testing.T) {
	source := &fakePortal{loginErr: errors.New("portal down")}
	r := newTestRelay(Config{WaitTime: 240 * time.Second}, source, &MockSink{})

	ctx, cancel := context.WithCancel(context.Background())
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
		}
		return ctx.Err()
	}

	err := r.Run(ctx)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 3, source.sessions)
	assert.Equal(t, []time.Duration{240 * time.Second, 240 * time.Second, 240 * time.Second}, waits)
	assert.Equal(t, int64(3), r.Metrics().Snapshot().FailedCycles)
}

func TestRun_CycleIgnoresCancellation(t *testing.T) {
	var cycleCtxErr error
	source := &fakePortal{fetcher: &MockFetcher{}}
	r := New(Config{WaitTime: time.Second},
		func() (Portal, error) { return source, nil },
		func(context.Context) (Sink, error) { return &MockSink{}, nil },
		testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &MockFetcher{}
	fetcher.On("FetchAll", mock.Anything, 0).Run(func(args mock.Arguments) {
		cycleCtxErr = args.Get(0).(context.Context).Err()
	}).Return([]portal.Message{}, nil)
	source.fetcher = fetcher

	err := r.Run(ctx)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.NoError(t, cycleCtxErr, "a cycle must not see the cancellation")
	assert.Equal(t, 1, source.sessions)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
