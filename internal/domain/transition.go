package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a custody stage a tag passes through after the slaughterhouse.
type Stage int

const (
	StageTrader Stage = iota
	StageTannery
	StageGarment
	stageCount
)

// Stages lists every stage in supply-chain order.
var Stages = [stageCount]Stage{StageTrader, StageTannery, StageGarment}

func (s Stage) String() string {
	switch s {
	case StageTrader:
		return "trader"
	case StageTannery:
		return "tannery"
	case StageGarment:
		return "garment"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Role is the caller role that owns the stage.
func (s Stage) Role() Role {
	switch s {
	case StageTrader:
		return RoleTrader
	case StageTannery:
		return RoleTannery
	case StageGarment:
		return RoleGarment
	}
	return RoleVisitor
}

// ParseStage maps a stage name onto a Stage.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trader":
		return StageTrader, nil
	case "tannery":
		return StageTannery, nil
	case "garment":
		return StageGarment, nil
	}
	return 0, Reject(ErrInvalidInput, ReasonInvalidValue, "unknown stage %q", s)
}

// StageForRole returns the stage a role acts in, if it has one.
func StageForRole(r Role) (Stage, bool) {
	for _, s := range Stages {
		if s.Role() == r {
			return s, true
		}
	}
	return 0, false
}

// Direction is whether a tag is entering or leaving a stage.
type Direction int

const (
	Arrived Direction = iota
	Dispatched
	directionCount
)

func (d Direction) String() string {
	if d == Dispatched {
		return "dispatched"
	}
	return "arrived"
}

// LedgerAction is the ledger verb recorded for d.
func (d Direction) LedgerAction() LedgerAction {
	if d == Dispatched {
		return ActionDispatched
	}
	return ActionArrived
}

// Action is one cell of the closed Stage × Direction variant.
type Action struct {
	Stage     Stage
	Direction Direction
}

var (
	TraderArrived     = Action{StageTrader, Arrived}
	TraderDispatched  = Action{StageTrader, Dispatched}
	TanneryArrived    = Action{StageTannery, Arrived}
	TanneryDispatched = Action{StageTannery, Dispatched}
	GarmentArrived    = Action{StageGarment, Arrived}
	GarmentDispatched = Action{StageGarment, Dispatched}
)

func (a Action) String() string {
	return a.Stage.String() + "." + a.Direction.String()
}

// StageFields are the action-specific values a caller may supply. Each
// action reads only the fields its rule names.
type StageFields struct {
	StampCode     string
	HideSource    string
	VehicleNumber string
	LotNumber     string
	Destination   string
	Article       string
	TannageType   string

	// ProductCode names the existing product a garment dispatch joins.
	// The aggregation engine reads it; the transition table does not.
	ProductCode string
}

// TransitionInput is everything the validator needs besides the tag.
// StampHolder is the code of the tag that currently holds Fields.StampCode,
// or "" when the stamp is unused; the caller looks it up in the same
// transaction.
type TransitionInput struct {
	Fields      StageFields
	StampHolder string
}

// rule describes one transition. slot selects the timestamp the action sets;
// prior selects the timestamp that must already be set, or is nil when the
// action starts from the slaughterhouse.
type rule struct {
	slot         func(*StageTimes) **time.Time
	prior        func(*StageTimes) **time.Time
	doneReason   Reason
	priorReason  Reason
	check        func(t Tag, in TransitionInput) error
	apply        func(t *Tag, in TransitionInput)
	requireFresh bool
}

var rules = [stageCount][directionCount]rule{
	StageTrader: {
		Arrived: {
			slot:       func(s *StageTimes) **time.Time { return &s.TraderArrived },
			doneReason: ReasonAlreadyArrived,
		},
		Dispatched: {
			slot:        func(s *StageTimes) **time.Time { return &s.TraderDispatched },
			prior:       func(s *StageTimes) **time.Time { return &s.TraderArrived },
			doneReason:  ReasonAlreadyDispatched,
			priorReason: ReasonNotYetArrived,
		},
	},
	StageTannery: {
		Arrived: {
			slot:        func(s *StageTimes) **time.Time { return &s.TanneryArrived },
			prior:       func(s *StageTimes) **time.Time { return &s.TraderDispatched },
			doneReason:  ReasonAlreadyArrived,
			priorReason: ReasonNotYetDispatched,
			check:       checkTanneryArrival,
			apply:       applyTanneryArrival,
		},
		Dispatched: {
			slot:        func(s *StageTimes) **time.Time { return &s.TanneryDispatched },
			prior:       func(s *StageTimes) **time.Time { return &s.TanneryArrived },
			doneReason:  ReasonAlreadyDispatched,
			priorReason: ReasonNotYetArrived,
			check:       checkTanneryDispatch,
			apply:       applyTanneryDispatch,
		},
	},
	StageGarment: {
		Arrived: {
			slot:        func(s *StageTimes) **time.Time { return &s.GarmentArrived },
			prior:       func(s *StageTimes) **time.Time { return &s.TanneryDispatched },
			doneReason:  ReasonAlreadyArrived,
			priorReason: ReasonNotYetDispatched,
		},
		Dispatched: {
			slot:         func(s *StageTimes) **time.Time { return &s.GarmentDispatched },
			prior:        func(s *StageTimes) **time.Time { return &s.GarmentArrived },
			doneReason:   ReasonAlreadyDispatched,
			priorReason:  ReasonNotYetArrived,
			requireFresh: true,
		},
	},
}

// Transition decides whether action a is legal for tag t and, if so, returns
// the updated tag with the action's timestamp set to at. t is not modified.
// Rejections carry the kind and reason callers surface: Conflict when the
// step was already taken, PreconditionFailed when an earlier step is
// missing, InvalidInput for bad fields.
func Transition(t Tag, a Action, in TransitionInput, at time.Time) (Tag, error) {
	if a.Stage < 0 || a.Stage >= stageCount || a.Direction < 0 || a.Direction >= directionCount {
		return Tag{}, Reject(ErrInvalidInput, ReasonInvalidValue, "unknown action %v", a)
	}
	r := rules[a.Stage][a.Direction]

	if r.requireFresh && t.Linked() {
		return Tag{}, Reject(ErrConflict, ReasonAlreadyLinked,
			"tag %s is already linked to product %s", t.Code, t.Garment.ProductCode)
	}
	stages := t.Stages
	if *r.slot(&stages) != nil {
		return Tag{}, Reject(ErrConflict, r.doneReason,
			"tag %s already %s at %s", t.Code, a.Direction, a.Stage)
	}
	if r.prior != nil {
		prev := *r.prior(&stages)
		if prev == nil {
			return Tag{}, Reject(ErrPreconditionFailed, r.priorReason,
				"tag %s cannot be %s at %s: %s", t.Code, a.Direction, a.Stage, priorMessage(a))
		}
		if at.Before(*prev) {
			return Tag{}, Reject(ErrPreconditionFailed, ReasonClockSkew,
				"tag %s: %s at %s precedes previous stage at %s",
				t.Code, a, at.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	if r.check != nil {
		if err := r.check(t, in); err != nil {
			return Tag{}, err
		}
	}

	out := t
	ts := at
	*r.slot(&stages) = &ts
	out.Stages = stages
	if r.apply != nil {
		r.apply(&out, in)
	}
	return out, nil
}

func priorMessage(a Action) string {
	switch a {
	case TraderDispatched:
		return "it has not arrived at trader"
	case TanneryArrived:
		return "it has not been dispatched from trader"
	case TanneryDispatched:
		return "it has not arrived at tannery"
	case GarmentArrived:
		return "it has not been dispatched from tannery"
	case GarmentDispatched:
		return "it has not arrived at garment"
	}
	return "an earlier stage is missing"
}

func checkTanneryArrival(t Tag, in TransitionInput) error {
	stamp := NormalizeKey(in.Fields.StampCode)
	if stamp == "" {
		return Reject(ErrInvalidInput, ReasonMissingField, "tag %s: stamp code is required at tannery arrival", t.Code)
	}
	hide := strings.TrimSpace(in.Fields.HideSource)
	if hide == "" {
		return Reject(ErrInvalidInput, ReasonMissingField, "tag %s: hide source is required at tannery arrival", t.Code)
	}
	if _, ok := parseHideSource(hide); !ok {
		return Reject(ErrInvalidInput, ReasonInvalidValue, "tag %s: unknown hide source %q", t.Code, hide)
	}
	if in.StampHolder != "" && in.StampHolder != t.Code {
		return Reject(ErrConflict, ReasonStampCodeConflict, "stamp code %s is already used by tag %s", stamp, in.StampHolder)
	}
	return nil
}

func applyTanneryArrival(t *Tag, in TransitionInput) {
	hide, _ := parseHideSource(in.Fields.HideSource)
	t.Tannery.StampCode = NormalizeKey(in.Fields.StampCode)
	t.Tannery.HideSource = hide
	t.Tannery.VehicleNumber = strings.TrimSpace(in.Fields.VehicleNumber)
}

func checkTanneryDispatch(t Tag, in TransitionInput) error {
	stamp := NormalizeKey(in.Fields.StampCode)
	var missing []string
	if stamp == "" {
		missing = append(missing, "stamp code")
	}
	if strings.TrimSpace(in.Fields.LotNumber) == "" {
		missing = append(missing, "lot number")
	}
	if strings.TrimSpace(in.Fields.Destination) == "" {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return Reject(ErrInvalidInput, ReasonMissingField, "tag %s: %s required at tannery dispatch", t.Code, strings.Join(missing, ", "))
	}
	if stamp != t.Tannery.StampCode {
		return Reject(ErrPreconditionFailed, ReasonStampMismatch,
			"tag %s: stamp code %s does not match recorded stamp %s", t.Code, stamp, t.Tannery.StampCode)
	}
	if tt := TannageType(strings.TrimSpace(in.Fields.TannageType)); !tt.Valid() {
		return Reject(ErrInvalidInput, ReasonInvalidValue, "tag %s: unknown tannage type %q", t.Code, tt)
	}
	return nil
}

func applyTanneryDispatch(t *Tag, in TransitionInput) {
	t.Tannery.LotNumber = strings.TrimSpace(in.Fields.LotNumber)
	t.Tannery.Destination = strings.TrimSpace(in.Fields.Destination)
	t.Tannery.Article = strings.TrimSpace(in.Fields.Article)
	t.Tannery.TannageType = TannageType(strings.TrimSpace(in.Fields.TannageType))
}

func parseHideSource(s string) (HideSource, bool) {
	s = strings.TrimSpace(s)
	for _, h := range KnownHideSources {
		if strings.EqualFold(string(h), s) {
			return h, true
		}
	}
	return "", false
}
