// Package conflict decides which version of a split survives when a pull
// meets a local copy.
package conflict

import (
	"fmt"
	"strings"
	"time"

	"github.com/azula9713/yae-their-share/internal/models"
)

// Policy selects the winner of a genuine conflict.
type Policy int

const (
	// ServerWins overwrites local changes with the remote record.
	ServerWins Policy = iota
	// ClientWins keeps the local record and queues it to be pushed again.
	ClientWins
	// Manual keeps both and stores the remote snapshot for the user.
	Manual
)

// DefaultPolicy is used when none is configured.
const DefaultPolicy = ServerWins

var policyNames = map[Policy]string{
	ServerWins: "server-wins",
	ClientWins: "client-wins",
	Manual:     "manual",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePolicy parses a policy name. The empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPolicy, nil
	}
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown conflict policy %q (want server-wins, client-wins or manual)", s)
}

// Action describes what a merge did to the local store.
type Action int

const (
	// Insert stores a split that had no local copy.
	Insert Action = iota
	// Overwrite replaces an unmodified local copy.
	Overwrite
	// TakeRemote replaces a modified local copy under ServerWins.
	TakeRemote
	// KeepLocal keeps a modified local copy under ClientWins.
	KeepLocal
	// Defer keeps a modified local copy and attaches the remote snapshot.
	Defer
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Overwrite:
		return "overwrite"
	case TakeRemote:
		return "take-remote"
	case KeepLocal:
		return "keep-local"
	case Defer:
		return "defer"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Decision is the outcome of Merge. Result is the envelope to store.
type Decision struct {
	Action Action
	Result models.Envelope
	// Requeue is set when the local version must be pushed again.
	Requeue bool
	// Conflict is set when the local copy carried unconfirmed changes.
	Conflict bool
}

// Resolver merges remote records into local envelopes.
type Resolver struct {
	Policy Policy
}

// New returns a resolver using p.
func New(p Policy) *Resolver {
	return &Resolver{Policy: p}
}

// Merge decides the surviving version of remote against local, which is nil
// when the split has no local copy. now stamps LastSyncedAt on every path
// that reconciles the record. Merge never mutates its inputs.
func (r *Resolver) Merge(local *models.Envelope, remote models.Split, now time.Time) Decision {
	remote = remote.Clone()

	if local == nil {
		return Decision{Action: Insert, Result: synced(remote, 1, now)}
	}

	if !local.LocallyModified {
		return Decision{Action: Overwrite, Result: synced(remote, local.SyncVersion+1, now)}
	}

	switch r.Policy {
	case ClientWins:
		out := cloneEnvelope(local)
		out.PendingSync = true
		out.ConflictData = nil
		return Decision{Action: KeepLocal, Result: out, Requeue: true, Conflict: true}
	case Manual:
		out := cloneEnvelope(local)
		out.ConflictData = &remote
		return Decision{Action: Defer, Result: out, Conflict: true}
	default:
		return Decision{Action: TakeRemote, Result: synced(remote, local.SyncVersion+1, now), Conflict: true}
	}
}

func synced(s models.Split, version int64, now time.Time) models.Envelope {
	return models.Envelope{
		Split:        s,
		LastSyncedAt: &now,
		SyncVersion:  version,
	}
}

func cloneEnvelope(e *models.Envelope) models.Envelope {
	out := *e
	out.Split = e.Split.Clone()
	if e.LastSyncedAt != nil {
		t := *e.LastSyncedAt
		out.LastSyncedAt = &t
	}
	if e.ConflictData != nil {
		c := e.ConflictData.Clone()
		out.ConflictData = &c
	}
	return out
}
