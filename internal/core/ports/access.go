package ports

import "context"

// AccessManager is the chat/group layer the engine drives. Calls are
// fire-and-observe: failures are logged by the caller, never retried here.
type AccessManager interface {
	GrantAccess(ctx context.Context, externalID, groupID string) error
	RevokeAccess(ctx context.Context, externalID, groupID string) error
	Notify(ctx context.Context, externalID, text string) error
}

// AccessActionType enumerates the side effects routed through the dispatcher.
type AccessActionType string

const (
	ActionGrant  AccessActionType = "grant"
	ActionRevoke AccessActionType = "revoke"
	ActionNotify AccessActionType = "notify"
)

// AccessAction is one queued side effect against the chat layer. Actions for
// the same ExternalID are executed in order.
type AccessAction struct {
	Type       AccessActionType
	ExternalID string
	GroupID    string // grant/revoke
	Text       string // notify
}

// AccessDispatcher enqueues access actions for asynchronous, per-member
// ordered delivery.
type AccessDispatcher interface {
	Enqueue(action AccessAction)
	EnqueueBatch(actions []AccessAction)
}
