package domain

import (
	"strings"
	"time"
)

// TagCodeLength is the length of a tag's primary code.
const TagCodeLength = 8

// Tag is the traceable identity of one physical hide or skin.
// Code is generated once at registration and never changes. Origin is
// copied from the confirmation feed and never mutated afterwards. Stages and
// Tannery are written only by accepted stage transitions; Garment is written
// only by the aggregation engine. PrintCount counts label reprints and only
// ever grows.
type Tag struct {
	Code       string
	Origin     Origin
	Stages     StageTimes
	Tannery    TanneryDetails
	Garment    GarmentDetails
	PrintCount int
	CreatedBy  string
	CreatedAt  time.Time
}

// Origin holds the slaughterhouse data entered when the tag was created.
// Price and Amount are decimal strings with two fractional digits.
type Origin struct {
	ConfirmationID int64
	LegacyTag      string
	BatchNo        string
	TotalAnimals   int
	Command        string
	Price          string
	Amount         string
	OwnerName      string
	ExpiryDays     int
	AccountType    string
	OffalCollector string
	ConfirmedAt    time.Time
	TotalTags      int
	TotalPrints    int
}

// StageTimes records when a tag reached each stage. A nil field means the
// stage has not been reached yet.
type StageTimes struct {
	TraderArrived     *time.Time
	TraderDispatched  *time.Time
	TanneryArrived    *time.Time
	TanneryDispatched *time.Time
	GarmentArrived    *time.Time
	GarmentDispatched *time.Time
}

// TanneryDetails are the fields the tannery stage writes.
type TanneryDetails struct {
	StampCode     string
	HideSource    HideSource
	VehicleNumber string
	LotNumber     string
	Destination   string
	Article       string
	TannageType   TannageType
}

// GarmentDetails mirror the linked product's attributes. They are copied from
// the product whenever the tag is linked.
type GarmentDetails struct {
	ProductCode      string
	ProductTypes     ProductTypes
	OtherProductType string
	Brand            string
	ProcessDate      *time.Time
}

// Linked reports whether the tag belongs to an aggregated product.
func (t Tag) Linked() bool {
	return t.Garment.ProductCode != ""
}

// Status derives the tag's current state from its timestamps and linkage.
func (t Tag) Status() Status {
	return StatusOf(t.Stages, t.Linked())
}

// LeatherType derives the material class from the hide source.
func (t Tag) LeatherType() string {
	return t.Tannery.HideSource.LeatherType()
}

// NormalizeKey trims and upper-cases a lookup key (tag code, stamp code or
// product code) the way all codes are stored.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// HideSource is the animal a hide came from.
type HideSource string

const (
	HideBuffalo HideSource = "Buffalo"
	HideCow     HideSource = "Cow"
	HideSheep   HideSource = "Sheep"
	HideGoat    HideSource = "Goat"
)

// KnownHideSources lists every valid hide source in reporting order.
var KnownHideSources = []HideSource{HideCow, HideBuffalo, HideSheep, HideGoat}

// Valid reports whether h is one of the known hide sources.
func (h HideSource) Valid() bool {
	switch h {
	case HideBuffalo, HideCow, HideSheep, HideGoat:
		return true
	}
	return false
}

// LeatherType is "Hide" for large animals, "Skin" for small ones and "" when
// the source is unknown.
func (h HideSource) LeatherType() string {
	switch h {
	case HideBuffalo, HideCow:
		return "Hide"
	case HideSheep, HideGoat:
		return "Skin"
	}
	return ""
}

// TannageType is the tanning process applied at the tannery.
type TannageType string

const (
	TannageChrome     TannageType = "Chrome"
	TannageChromeFree TannageType = "Chrome-free"
	TannageVegetable  TannageType = "Vegetable"
)

// Valid reports whether t is empty or one of the known tannage types.
func (t TannageType) Valid() bool {
	switch t {
	case "", TannageChrome, TannageChromeFree, TannageVegetable:
		return true
	}
	return false
}
