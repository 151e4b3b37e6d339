package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerAction is what happened to the tag or product.
type LedgerAction string

const (
	ActionArrived     LedgerAction = "arrived"
	ActionDispatched  LedgerAction = "dispatched"
	ActionDataEntered LedgerAction = "data_entered"
)

// Entry is one immutable custody ledger record. TagCode and ProductCode are
// both optional but at least one is always set. StampCode is the tag's stamp
// at the time of the event, kept for search.
type Entry struct {
	ID          uuid.UUID
	UserID      string
	Role        Role
	Action      LedgerAction
	At          time.Time
	Location    string
	TagCode     string
	ProductCode string
	StampCode   string
}

// TransactionFilter narrows a ledger listing. Role filters by the acting
// role; Search matches tag code, stamp code or action case-insensitively.
type TransactionFilter struct {
	Scope  Scope
	Role   Role
	Search string
}

// Summary counts the ledger entries visible to a caller, by action.
// HideSources counts every tag by recorded hide source; tags are public, so
// it is not scoped.
type Summary struct {
	Arrived     int64
	Dispatched  int64
	DataEntered int64
	HideSources map[HideSource]int64
}
