package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"

	"streamrelay/model"
	"streamrelay/platform"
)

var logger = platform.Logger

// MessageStore is the durable per-conversation message log the relay
// appends to and reads from.
type MessageStore interface {
	Append(ctx context.Context, conversationId, role, content, authorId string) (*model.Message, error)
	Tail(ctx context.Context, conversationId string, limit int64) []model.Message
}

// EventPublisher fans appended messages out to downstream consumers.
// Implementations absorb their own failures.
type EventPublisher interface {
	Publish(ctx context.Context, conversationId string, msg *model.Message)
}

// EventSink is the transport boundary. Message forwards one fragment to
// the client and returns an error once the client is gone; Error
// delivers the single terminal error event of a failed request.
type EventSink interface {
	Message(fragment string) error
	Error(description string) error
}

// Request is one inbound conversational turn.
type Request struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Message        string `json:"message"`
}

// Relay states. Each request walks Received -> HistoryLoaded ->
// UserPersisted -> Streaming -> Completed, or bails out to Failed.
var (
	stateReceived      stateless.State = "Received"
	stateHistoryLoaded stateless.State = "HistoryLoaded"
	stateUserPersisted stateless.State = "UserPersisted"
	stateStreaming     stateless.State = "Streaming"
	stateCompleted     stateless.State = "Completed"
	stateFailed        stateless.State = "Failed"
)

var (
	triggerValidated      stateless.Trigger = "Validated"
	triggerHistoryLoaded  stateless.Trigger = "HistoryLoaded"
	triggerUserPersisted  stateless.Trigger = "UserPersisted"
	triggerStreamFinished stateless.Trigger = "StreamFinished"
	triggerFailed         stateless.Trigger = "Failed"
)

// RelayService ties the store, the publisher and the model backend
// together for one streaming exchange per call. It holds no per-request
// state; concurrent calls are independent.
type RelayService struct {
	store  MessageStore
	events EventPublisher
	llm    Streamer
	cfg    Config
}

func NewRelayService(store MessageStore, events EventPublisher, llm Streamer, cfg Config) *RelayService {
	return &RelayService{store: store, events: events, llm: llm, cfg: cfg}
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.ConversationId) == "" {
		return fmt.Errorf("%w: conversation_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	return nil
}

// Relay handles one inbound message end to end: it records the user
// turn, streams the model's answer to sink fragment by fragment and
// records the assembled assistant turn once the stream ends.
//
// The ordering contract: the user turn is durably appended (or the
// request fails) before the backend is contacted, and the assistant
// turn is appended only after streaming finishes. Failures after the
// first forwarded fragment never retract delivered output; the
// accumulated prefix is still persisted. Publishing is best-effort
// throughout.
func (r *RelayService) Relay(ctx context.Context, req Request, sink EventSink) error {
	rc := struct {
		history   []model.Message
		acc       strings.Builder
		forwarded int
		lastErr   error
	}{}

	fsm := stateless.NewStateMachine(stateReceived)

	fsm.Configure(stateReceived).
		Permit(triggerValidated, stateHistoryLoaded).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateHistoryLoaded).
		Permit(triggerHistoryLoaded, stateUserPersisted).
		Permit(triggerFailed, stateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			// Store outages degrade to an empty history rather than
			// failing the request.
			rc.history = r.store.Tail(ctx, req.ConversationId, r.cfg.HistoryWindow)
			return fsm.FireCtx(ctx, triggerHistoryLoaded)
		})

	fsm.Configure(stateUserPersisted).
		Permit(triggerUserPersisted, stateStreaming).
		Permit(triggerFailed, stateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			msg, err := r.store.Append(ctx, req.ConversationId, model.RoleUser, req.Message, req.UserId)
			if err != nil {
				logger.Warnf("[%s] user turn append failed: %s", req.ConversationId, err)
				rc.lastErr = fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
				return fsm.FireCtx(ctx, triggerFailed)
			}
			r.events.Publish(ctx, req.ConversationId, msg)
			return fsm.FireCtx(ctx, triggerUserPersisted)
		})

	fsm.Configure(stateStreaming).
		Permit(triggerStreamFinished, stateCompleted).
		Permit(triggerFailed, stateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			prompt := BuildPrompt(req.Message, rc.history, r.cfg.SystemPrompt)
			stream := r.llm.Stream(ctx, prompt)
			defer stream.Close()

			for stream.Next() {
				fragment := stream.Current()
				if err := sink.Message(fragment); err != nil {
					logger.Warnf("[%s] client went away after %d fragments: %s", req.ConversationId, rc.forwarded, err)
					break
				}
				rc.acc.WriteString(fragment)
				rc.forwarded++
			}

			if err := stream.Err(); err != nil {
				if rc.forwarded == 0 {
					rc.lastErr = fmt.Errorf("%w: %s", ErrBackendUnavailable, err)
					return fsm.FireCtx(ctx, triggerFailed)
				}
				logger.Warnf("[%s] stream ended early after %d fragments, keeping partial output: %s", req.ConversationId, rc.forwarded, err)
			}
			return fsm.FireCtx(ctx, triggerStreamFinished)
		})

	fsm.Configure(stateCompleted).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if rc.acc.Len() == 0 {
				logger.Infof("[%s] stream produced no content, skipping assistant turn", req.ConversationId)
				return nil
			}
			// The client may already be gone; persistence must not die
			// with the request context.
			persistCtx := context.WithoutCancel(ctx)
			msg, err := r.store.Append(persistCtx, req.ConversationId, model.RoleAssistant, rc.acc.String(), "")
			if err != nil {
				// The client has its answer; this is operational
				// visibility only.
				logger.Warnf("[%s] assistant turn append failed: %s", req.ConversationId, err)
				return nil
			}
			r.events.Publish(persistCtx, req.ConversationId, msg)
			return nil
		})

	fsm.Configure(stateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			// Only surface an explicit error if nothing was delivered;
			// after that the client keeps what it already received.
			if rc.forwarded == 0 {
				if err := sink.Error(rc.lastErr.Error()); err != nil {
					logger.Warnf("[%s] error event delivery failed: %s", req.ConversationId, err)
				}
			}
			return nil
		})

	if err := validateRequest(req); err != nil {
		rc.lastErr = err
		if fireErr := fsm.FireCtx(ctx, triggerFailed); fireErr != nil {
			return fireErr
		}
	} else if fireErr := fsm.FireCtx(ctx, triggerValidated); fireErr != nil {
		return fireErr
	}

	switch fsm.MustState() {
	case stateCompleted:
		return nil
	case stateFailed:
		return rc.lastErr
	default:
		return fmt.Errorf("relay ended in unexpected state %v", fsm.MustState())
	}
}
