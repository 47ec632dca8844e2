package workflow

import (
	"fmt"
	"time"

	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/model"
)

type Action uint8

const (
	ActionUnknown Action = iota
	ActionSubmit
	ActionApprove
	ActionReject
	ActionRevise
	ActionObsolete
)

// Actions lists every known action in declaration order.
var Actions = []Action{ActionSubmit, ActionApprove, ActionReject, ActionRevise, ActionObsolete}

var actionNames = [...]string{
	ActionUnknown:  "unknown",
	ActionSubmit:   "submit",
	ActionApprove:  "approve",
	ActionReject:   "reject",
	ActionRevise:   "revise",
	ActionObsolete: "obsolete",
}

var actionAuditCodes = [...]string{
	ActionSubmit:   audit.ActionDocumentSubmit,
	ActionApprove:  audit.ActionDocumentApprove,
	ActionReject:   audit.ActionDocumentReject,
	ActionRevise:   audit.ActionDocumentRevise,
	ActionObsolete: audit.ActionDocumentObsolete,
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return actionNames[ActionUnknown]
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Action) auditCode() string {
	return actionAuditCodes[a]
}

func ParseAction(s string) (Action, error) {
	for _, action := range Actions {
		if actionNames[action] == s {
			return action, nil
		}
	}
	return ActionUnknown, fmt.Errorf("unknown action %q", s)
}

// Transition is one edge of the document state machine.
type Transition struct {
	From       model.DocumentStatus
	Action     Action
	To         model.DocumentStatus
	Permission model.PermissionID
}

type transitionKey struct {
	from   model.DocumentStatus
	action Action
}

// transitions is the complete state machine. Any (status, action) pair not listed
// here is rejected.
var transitions = []Transition{
	{From: model.StatusDraft, Action: ActionSubmit, To: model.StatusSubmitted, Permission: model.PermDocumentEdit},
	{From: model.StatusSubmitted, Action: ActionApprove, To: model.StatusApproved, Permission: model.PermDocumentApprove},
	{From: model.StatusSubmitted, Action: ActionReject, To: model.StatusRejected, Permission: model.PermDocumentApprove},
	{From: model.StatusSubmitted, Action: ActionRevise, To: model.StatusDraft, Permission: model.PermDocumentEdit},
	{From: model.StatusRejected, Action: ActionRevise, To: model.StatusDraft, Permission: model.PermDocumentEdit},
	{From: model.StatusApproved, Action: ActionObsolete, To: model.StatusObsolete, Permission: model.PermDocumentManage},
	{From: model.StatusExpired, Action: ActionObsolete, To: model.StatusObsolete, Permission: model.PermDocumentManage},
}

var transitionTable = buildTransitionTable(transitions)

func buildTransitionTable(list []Transition) map[transitionKey]Transition {
	table := make(map[transitionKey]Transition, len(list))
	for _, tr := range list {
		key := transitionKey{tr.From, tr.Action}
		if _, dup := table[key]; dup {
			panic(fmt.Sprintf("duplicate transition %s/%s", tr.From, tr.Action))
		}
		if !tr.To.Persistent() {
			panic(fmt.Sprintf("transition %s/%s targets non persistent status %s", tr.From, tr.Action, tr.To))
		}
		table[key] = tr
	}
	return table
}

// Lookup returns the transition for an effective status and action.
func Lookup(from model.DocumentStatus, action Action) (Transition, bool) {
	tr, ok := transitionTable[transitionKey{from, action}]
	return tr, ok
}

// EffectiveStatus is the status every reader sees: an approved document whose expiry
// has passed is EXPIRED. The result is never written back.
func EffectiveStatus(status model.DocumentStatus, expiresAt *time.Time, now time.Time) model.DocumentStatus {
	if status == model.StatusApproved && expiresAt != nil && !now.Before(*expiresAt) {
		return model.StatusExpired
	}
	return status
}

// AvailableActions lists the actions perms allows on a document in its effective status.
func AvailableActions(doc *model.Document, perms *rbac.PermissionSet, now time.Time) []Action {
	from := EffectiveStatus(doc.Status, doc.ExpiresAt, now)
	var actions []Action
	for _, action := range Actions {
		if tr, ok := Lookup(from, action); ok && perms.Has(tr.Permission) {
			actions = append(actions, action)
		}
	}
	return actions
}
