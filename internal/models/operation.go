package models

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// OpKind identifies the variant of a queued operation
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// FailureKind classifies the last failure recorded against an operation
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureTransport     FailureKind = "transport"
	FailureAuthorization FailureKind = "authorization"
)

// Operation is a queued mutation awaiting delivery to the remote service.
// It is one of CreateOp, UpdateOp or DeleteOp.
type Operation interface {
	Kind() OpKind
	EntityID() string
	isOperation()
}

// CreateOp creates a record remotely.
type CreateOp struct {
	Split Split
}

// UpdateOp replaces the remote record with the carried snapshot.
type UpdateOp struct {
	Split Split
}

// DeleteOp logically deletes the remote record.
type DeleteOp struct {
	SplitID string
}

func (CreateOp) Kind() OpKind { return OpCreate }
func (UpdateOp) Kind() OpKind { return OpUpdate }
func (DeleteOp) Kind() OpKind { return OpDelete }

func (o CreateOp) EntityID() string { return o.Split.SplitID }
func (o UpdateOp) EntityID() string { return o.Split.SplitID }
func (o DeleteOp) EntityID() string { return o.SplitID }

func (CreateOp) isOperation() {}
func (UpdateOp) isOperation() {}
func (DeleteOp) isOperation() {}

// OperationEntry is a row of the operation log
type OperationEntry struct {
	ID          int64
	Op          Operation
	OwnerID     string
	Timestamp   time.Time
	RetryCount  int
	LastError   string
	FailureKind FailureKind
	Completed   bool
	CompletedAt *time.Time
}

// EntityID returns the split the entry targets.
func (e OperationEntry) EntityID() string {
	if e.Op == nil {
		return ""
	}
	return e.Op.EntityID()
}

// Parked reports whether automatic delivery of the entry is suspended.
// Authorization failures are never retried; other failures are retried
// until the retry count exceeds maxRetries.
func (e OperationEntry) Parked(maxRetries int) bool {
	if e.Completed {
		return false
	}
	return e.FailureKind == FailureAuthorization || e.RetryCount > maxRetries
}

type deletePayload struct {
	SplitID string `json:"splitId"`
}

// ErrUnknownOpKind is returned when decoding an operation of an unknown kind.
var ErrUnknownOpKind = errors.New("unknown operation kind")

// EncodeOperation serializes the variant-specific payload of op.
func EncodeOperation(op Operation) (OpKind, []byte, error) {
	var (
		payload []byte
		err     error
	)
	switch o := op.(type) {
	case CreateOp:
		payload, err = json.Marshal(o.Split.UTC())
	case UpdateOp:
		payload, err = json.Marshal(o.Split.UTC())
	case DeleteOp:
		payload, err = json.Marshal(deletePayload{SplitID: o.SplitID})
	default:
		return "", nil, fmt.Errorf("encode operation %T: %w", op, ErrUnknownOpKind)
	}
	if err != nil {
		return "", nil, fmt.Errorf("encode %s payload: %w", op.Kind(), err)
	}
	return op.Kind(), payload, nil
}

// DecodeOperation rebuilds an operation from its kind and payload.
func DecodeOperation(kind OpKind, payload []byte) (Operation, error) {
	switch kind {
	case OpCreate, OpUpdate:
		var s Split
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
		if kind == OpCreate {
			return CreateOp{Split: s}, nil
		}
		return UpdateOp{Split: s}, nil
	case OpDelete:
		var d deletePayload
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("decode delete payload: %w", err)
		}
		return DeleteOp{SplitID: d.SplitID}, nil
	default:
		return nil, fmt.Errorf("decode operation %q: %w", kind, ErrUnknownOpKind)
	}
}

type operationEntryJSON struct {
	ID          int64           `json:"id"`
	Kind        OpKind          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	OwnerID     string          `json:"ownerId"`
	Timestamp   time.Time       `json:"timestamp"`
	RetryCount  int             `json:"retryCount"`
	LastError   string          `json:"lastError,omitempty"`
	FailureKind FailureKind     `json:"failureKind,omitempty"`
	Completed   bool            `json:"completed"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// MarshalJSON writes the entry with its operation as a kind/payload pair.
func (e OperationEntry) MarshalJSON() ([]byte, error) {
	kind, payload, err := EncodeOperation(e.Op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(operationEntryJSON{
		ID:          e.ID,
		Kind:        kind,
		Payload:     payload,
		OwnerID:     e.OwnerID,
		Timestamp:   e.Timestamp,
		RetryCount:  e.RetryCount,
		LastError:   e.LastError,
		FailureKind: e.FailureKind,
		Completed:   e.Completed,
		CompletedAt: e.CompletedAt,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *OperationEntry) UnmarshalJSON(data []byte) error {
	var raw operationEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	op, err := DecodeOperation(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	*e = OperationEntry{
		ID:          raw.ID,
		Op:          op,
		OwnerID:     raw.OwnerID,
		Timestamp:   raw.Timestamp,
		RetryCount:  raw.RetryCount,
		LastError:   raw.LastError,
		FailureKind: raw.FailureKind,
		Completed:   raw.Completed,
		CompletedAt: raw.CompletedAt,
	}
	return nil
}
