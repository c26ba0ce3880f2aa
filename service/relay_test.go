package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"streamrelay/model"
)

type mockStore struct {
	calls *[]string

	tail          []model.Message
	tailLimit     int64
	failUser      bool
	failAssistant bool
	appended      []*model.Message
}

func (m *mockStore) Append(ctx context.Context, conversationId, role, content, authorId string) (*model.Message, error) {
	*m.calls = append(*m.calls, "append:"+role)
	if role == model.RoleUser && m.failUser {
		return nil, errors.New("connection refused")
	}
	if role == model.RoleAssistant && m.failAssistant {
		return nil, errors.New("connection refused")
	}
	msg := &model.Message{
		ID:             fmt.Sprintf("m%d", len(m.appended)+1),
		ConversationId: conversationId,
		Role:           role,
		Type:           model.MessageTypeText,
		Content:        content,
		Ts:             int64(len(m.appended) + 1),
		AuthorId:       authorId,
	}
	m.appended = append(m.appended, msg)
	return msg, nil
}

func (m *mockStore) Tail(ctx context.Context, conversationId string, limit int64) []model.Message {
	*m.calls = append(*m.calls, "tail")
	m.tailLimit = limit
	if limit > 0 && int64(len(m.tail)) > limit {
		return m.tail[int64(len(m.tail))-limit:]
	}
	return m.tail
}

type mockPublisher struct {
	calls     *[]string
	published []*model.Message
}

func (m *mockPublisher) Publish(ctx context.Context, conversationId string, msg *model.Message) {
	*m.calls = append(*m.calls, "publish:"+msg.Role)
	m.published = append(m.published, msg)
}

type scriptedStream struct {
	fragments []string
	finalErr  error

	pos     int
	current string
	closed  bool
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.fragments) {
		return false
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Current() string { return s.current }

func (s *scriptedStream) Err() error {
	if s.pos >= len(s.fragments) {
		return s.finalErr
	}
	return nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type mockStreamer struct {
	calls  *[]string
	stream *scriptedStream
	prompt []PromptMessage
}

func (m *mockStreamer) Stream(ctx context.Context, prompt []PromptMessage) TokenStream {
	*m.calls = append(*m.calls, "stream")
	m.prompt = prompt
	return m.stream
}

type recordingSink struct {
	messages  []string
	errors    []string
	failAfter int // sink write fails once this many messages were accepted; -1 disables
}

func (s *recordingSink) Message(fragment string) error {
	if s.failAfter >= 0 && len(s.messages) >= s.failAfter {
		return errors.New("broken pipe")
	}
	s.messages = append(s.messages, fragment)
	return nil
}

func (s *recordingSink) Error(description string) error {
	s.errors = append(s.errors, description)
	return nil
}

type relayFixture struct {
	calls    []string
	store    *mockStore
	events   *mockPublisher
	streamer *mockStreamer
	sink     *recordingSink
	relay    *RelayService
}

func newRelayFixture(history []model.Message, stream *scriptedStream) *relayFixture {
	f := &relayFixture{}
	f.store = &mockStore{calls: &f.calls, tail: history}
	f.events = &mockPublisher{calls: &f.calls}
	f.streamer = &mockStreamer{calls: &f.calls, stream: stream}
	f.sink = &recordingSink{failAfter: -1}
	f.relay = NewRelayService(f.store, f.events, f.streamer, Config{
		SystemPrompt:  "be helpful",
		HistoryWindow: 10,
	})
	return f
}

func TestRelay_HappyPath(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"Hel", "lo"}})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", UserId: "u1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	require.Equal(t, []string{"Hel", "lo"}, f.sink.messages)
	require.Empty(t, f.sink.errors)

	require.Len(t, f.store.appended, 2)
	require.Equal(t, model.RoleUser, f.store.appended[0].Role)
	require.Equal(t, "hi", f.store.appended[0].Content)
	require.Equal(t, "u1", f.store.appended[0].AuthorId)
	require.Equal(t, model.RoleAssistant, f.store.appended[1].Role)
	require.Equal(t, "Hello", f.store.appended[1].Content)

	// Assistant content matches exactly what the client was sent.
	require.Equal(t, strings.Join(f.sink.messages, ""), f.store.appended[1].Content)

	// Both turns were fanned out.
	require.Equal(t, []string{"tail", "append:user", "publish:user", "stream", "append:assistant", "publish:assistant"}, f.calls)
}

func TestRelay_UserTurnPersistedBeforeBackendCall(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"ok"}})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	appendIdx := -1
	streamIdx := -1
	for i, call := range f.calls {
		switch call {
		case "append:user":
			appendIdx = i
		case "stream":
			streamIdx = i
		}
	}
	require.GreaterOrEqual(t, appendIdx, 0)
	require.GreaterOrEqual(t, streamIdx, 0)
	require.Less(t, appendIdx, streamIdx, "user turn must be persisted before the backend is contacted")
}

func TestRelay_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing conversation id", req: Request{Message: "hi"}},
		{name: "missing message", req: Request{ConversationId: "c1"}},
		{name: "blank message", req: Request{ConversationId: "c1", Message: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRelayFixture(nil, &scriptedStream{})

			err := f.relay.Relay(context.Background(), tt.req, f.sink)
			require.ErrorIs(t, err, ErrInvalidRequest)

			require.Empty(t, f.calls, "rejected requests must have no side effects")
			require.Len(t, f.sink.errors, 1)
			require.Empty(t, f.sink.messages)
		})
	}
}

func TestRelay_StoreUnavailableOnUserTurn(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"never"}})
	f.store.failUser = true

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	require.NotContains(t, f.calls, "stream", "backend must not be contacted if the user turn was lost")
	require.Len(t, f.sink.errors, 1)
	require.Empty(t, f.sink.messages)
}

func TestRelay_BackendFailsBeforeFirstFragment(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{finalErr: errors.New("connect: refused")})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.ErrorIs(t, err, ErrBackendUnavailable)

	require.Len(t, f.sink.errors, 1)
	require.Empty(t, f.sink.messages)

	// Only the user turn made it to the store.
	require.Len(t, f.store.appended, 1)
	require.Equal(t, model.RoleUser, f.store.appended[0].Role)
}

func TestRelay_MidStreamFailureKeepsPrefix(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"par"}, finalErr: errors.New("unexpected EOF")})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	require.Equal(t, []string{"par"}, f.sink.messages)
	require.Empty(t, f.sink.errors, "no error event once output was delivered")

	require.Len(t, f.store.appended, 2)
	require.Equal(t, "par", f.store.appended[1].Content)
}

func TestRelay_ClientDisconnectPersistsPartial(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"a", "b", "c"}})
	f.sink.failAfter = 2

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b"}, f.sink.messages)
	require.Len(t, f.store.appended, 2)
	require.Equal(t, "ab", f.store.appended[1].Content, "partial content delivered so far is still persisted")
	require.True(t, f.streamer.stream.closed, "backend stream must be closed on disconnect")
}

func TestRelay_EmptyStreamPersistsNoAssistantTurn(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	require.Empty(t, f.sink.errors)
	require.Len(t, f.store.appended, 1)
	require.Equal(t, model.RoleUser, f.store.appended[0].Role)
}

func TestRelay_AssistantAppendFailureIsAbsorbed(t *testing.T) {
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"done"}})
	f.store.failAssistant = true

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err, "the client already has its answer")

	require.Equal(t, []string{"done"}, f.sink.messages)
	require.NotContains(t, f.calls, "publish:assistant")
}

func TestRelay_DegradedHistoryStillAnswers(t *testing.T) {
	// Tail yields nothing when the store is down; the relay proceeds
	// with an empty context window.
	f := newRelayFixture(nil, &scriptedStream{fragments: []string{"ok"}})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	require.Len(t, f.streamer.prompt, 2) // system + user only
	require.Equal(t, []string{"ok"}, f.sink.messages)
}

func TestRelay_HistoryWindowBoundsPrompt(t *testing.T) {
	backlog := make([]model.Message, 15)
	for i := range backlog {
		backlog[i] = model.Message{Role: model.RoleUser, Content: fmt.Sprintf("turn %d", i)}
	}
	f := newRelayFixture(backlog, &scriptedStream{fragments: []string{"ok"}})

	err := f.relay.Relay(context.Background(), Request{ConversationId: "c1", Message: "hi"}, f.sink)
	require.NoError(t, err)

	require.Equal(t, int64(10), f.store.tailLimit)
	// system + 10 most recent + new user turn.
	require.Len(t, f.streamer.prompt, 12)
	require.Equal(t, model.RoleSystem, f.streamer.prompt[0].Role)
	require.Equal(t, "turn 5", f.streamer.prompt[1].Content, "window keeps the most recent entries, oldest first")
	require.Equal(t, "turn 14", f.streamer.prompt[10].Content)
	require.Equal(t, "hi", f.streamer.prompt[11].Content)
}
