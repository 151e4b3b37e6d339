package handler

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/hidetrace/backend/internal/domain"
	"github.com/pkordes/hidetrace/backend/internal/service"
)

// Tag is the wire form of a tag. Status is derived on every read.
type Tag struct {
	Code        string    `json:"code"`
	Status      string    `json:"status"`
	StatusText  string    `json:"status_text"`
	LeatherType string    `json:"leather_type,omitempty"`
	Origin      Origin    `json:"origin"`
	Stages      Stages    `json:"stages"`
	Tannery     *Tannery  `json:"tannery,omitempty"`
	Garment     *Garment  `json:"garment,omitempty"`
	PrintCount  int       `json:"print_count"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Origin is the slaughterhouse data copied onto a tag at registration.
type Origin struct {
	ConfirmationID int64     `json:"confirmation_id"`
	LegacyTag      string    `json:"legacy_tag,omitempty"`
	BatchNo        string    `json:"batch_no"`
	TotalAnimals   int       `json:"total_animals"`
	Command        string    `json:"command"`
	Price          string    `json:"price"`
	Amount         string    `json:"amount"`
	OwnerName      string    `json:"owner_name"`
	ExpiryDays     int       `json:"expiry_days"`
	AccountType    string    `json:"account_type"`
	OffalCollector string    `json:"offal_collector"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
	TotalTags      int       `json:"total_tags"`
	TotalPrints    int       `json:"total_prints"`
}

// Stages holds the stage timestamps; an unset stage is omitted.
type Stages struct {
	TraderArrived     *time.Time `json:"trader_arrived,omitempty"`
	TraderDispatched  *time.Time `json:"trader_dispatched,omitempty"`
	TanneryArrived    *time.Time `json:"tannery_arrived,omitempty"`
	TanneryDispatched *time.Time `json:"tannery_dispatched,omitempty"`
	GarmentArrived    *time.Time `json:"garment_arrived,omitempty"`
	GarmentDispatched *time.Time `json:"garment_dispatched,omitempty"`
}

// Tannery is present once a tannery has stamped the tag.
type Tannery struct {
	StampCode     string `json:"stamp_code"`
	HideSource    string `json:"hide_source"`
	VehicleNumber string `json:"vehicle_number,omitempty"`
	LotNumber     string `json:"lot_number,omitempty"`
	Destination   string `json:"destination,omitempty"`
	Article       string `json:"article,omitempty"`
	TannageType   string `json:"tannage_type,omitempty"`
}

// Garment is present once the tag is linked to a product.
type Garment struct {
	ProductCode      string     `json:"product_code"`
	ProductTypes     []string   `json:"product_types"`
	OtherProductType string     `json:"other_product_type,omitempty"`
	Brand            string     `json:"brand,omitempty"`
	ProcessDate      *time.Time `json:"process_date,omitempty"`
}

// Product is the wire form of a garment product.
type Product struct {
	Code             string    `json:"code"`
	PieceCount       int       `json:"piece_count"`
	ProductTypes     []string  `json:"product_types"`
	OtherProductType string    `json:"other_product_type,omitempty"`
	Brand            string    `json:"brand,omitempty"`
	ProcessDate      time.Time `json:"process_date"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// Entry is the wire form of a ledger entry.
type Entry struct {
	ID          openapi_types.UUID `json:"id"`
	UserID      string             `json:"user_id"`
	Role        string             `json:"role"`
	Action      string             `json:"action"`
	At          time.Time          `json:"at"`
	Location    string             `json:"location,omitempty"`
	TagCode     string             `json:"tag_code,omitempty"`
	ProductCode string             `json:"product_code,omitempty"`
	StampCode   string             `json:"stamp_code,omitempty"`
}

// Aggregate is a product with the tags one call linked to it.
type Aggregate struct {
	Product Product `json:"product"`
	Tags    []Tag   `json:"tags"`
}

// Trace is the provenance of a tag or product. Tag is set for a tag or stamp
// key; Product and Tags are set once the tag is linked.
type Trace struct {
	Tag     *Tag     `json:"tag,omitempty"`
	Product *Product `json:"product,omitempty"`
	Tags    []Tag    `json:"tags,omitempty"`
	History []Entry  `json:"history"`
}

// Pagination describes the page a listing returned.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// TransactionList is one page of ledger entries.
type TransactionList struct {
	Data       []Entry    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ProductList is one page of garment products.
type ProductList struct {
	Data       []Product  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Summary counts the caller's ledger entries by action. HideSources counts
// every tag by hide source.
type Summary struct {
	Arrived     int64            `json:"arrived"`
	Dispatched  int64            `json:"dispatched"`
	DataEntered int64            `json:"data_entered"`
	HideSources map[string]int64 `json:"hide_sources,omitempty"`
}

// StampCheck says whether a tag can be dispatched into a product now.
// MatchedBy is "tag" or "stamp", whichever the key matched.
type StampCheck struct {
	TagCode   string `json:"tag_code"`
	StampCode string `json:"stamp_code,omitempty"`
	MatchedBy string `json:"matched_by"`
	Eligible  bool   `json:"eligible"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
}

// PrintCount is the label print counter of one tag.
type PrintCount struct {
	Code       string `json:"code"`
	PrintCount int    `json:"print_count"`
}

// ---- requests ----------------------------------------------------------------

// RegisterTagRequest is the body of POST /tags.
type RegisterTagRequest struct {
	ConfirmationID int64 `json:"confirmation_id"`
}

// StageEventRequest is the body of arrivals and dispatches. Stage defaults to
// the caller's own stage. Each action reads only the fields it needs.
type StageEventRequest struct {
	Stage         string `json:"stage"`
	StampCode     string `json:"stamp_code"`
	HideSource    string `json:"hide_source"`
	VehicleNumber string `json:"vehicle_number"`
	LotNumber     string `json:"lot_number"`
	Destination   string `json:"destination"`
	Article       string `json:"article"`
	TannageType   string `json:"tannage_type"`
	ProductCode   string `json:"product_code"`
}

func (r StageEventRequest) fields() domain.StageFields {
	return domain.StageFields{
		StampCode:     r.StampCode,
		HideSource:    r.HideSource,
		VehicleNumber: r.VehicleNumber,
		LotNumber:     r.LotNumber,
		Destination:   r.Destination,
		Article:       r.Article,
		TannageType:   r.TannageType,
		ProductCode:   r.ProductCode,
	}
}

// CreateProductRequest is the body of POST /products. ProcessDate defaults
// to now.
type CreateProductRequest struct {
	TagCodes         []string   `json:"tag_codes"`
	PieceCount       int        `json:"piece_count"`
	ProductTypes     []string   `json:"product_types"`
	OtherProductType string     `json:"other_product_type"`
	Brand            string     `json:"brand"`
	ProcessDate      *time.Time `json:"process_date"`
}

func (r CreateProductRequest) spec() domain.ProductSpec {
	return domain.ProductSpec{
		PieceCount:       r.PieceCount,
		ProductTypes:     r.ProductTypes,
		OtherProductType: r.OtherProductType,
		Brand:            r.Brand,
		ProcessDate:      r.ProcessDate,
	}
}

// ExtendProductRequest is the body of POST /products/{code}/tags.
type ExtendProductRequest struct {
	TagCodes []string `json:"tag_codes"`
}

// ---- conversions -------------------------------------------------------------

func tagToResponse(t domain.Tag) Tag {
	status := t.Status()
	out := Tag{
		Code:        t.Code,
		Status:      status.String(),
		StatusText:  status.Describe(t.Tannery.Destination),
		LeatherType: t.LeatherType(),
		Origin: Origin{
			ConfirmationID: t.Origin.ConfirmationID,
			LegacyTag:      t.Origin.LegacyTag,
			BatchNo:        t.Origin.BatchNo,
			TotalAnimals:   t.Origin.TotalAnimals,
			Command:        t.Origin.Command,
			Price:          t.Origin.Price,
			Amount:         t.Origin.Amount,
			OwnerName:      t.Origin.OwnerName,
			ExpiryDays:     t.Origin.ExpiryDays,
			AccountType:    t.Origin.AccountType,
			OffalCollector: t.Origin.OffalCollector,
			ConfirmedAt:    t.Origin.ConfirmedAt,
			TotalTags:      t.Origin.TotalTags,
			TotalPrints:    t.Origin.TotalPrints,
		},
		Stages: Stages{
			TraderArrived:     t.Stages.TraderArrived,
			TraderDispatched:  t.Stages.TraderDispatched,
			TanneryArrived:    t.Stages.TanneryArrived,
			TanneryDispatched: t.Stages.TanneryDispatched,
			GarmentArrived:    t.Stages.GarmentArrived,
			GarmentDispatched: t.Stages.GarmentDispatched,
		},
		PrintCount: t.PrintCount,
		CreatedBy:  t.CreatedBy,
		CreatedAt:  t.CreatedAt,
	}
	if td := t.Tannery; td.StampCode != "" {
		out.Tannery = &Tannery{
			StampCode:     td.StampCode,
			HideSource:    string(td.HideSource),
			VehicleNumber: td.VehicleNumber,
			LotNumber:     td.LotNumber,
			Destination:   td.Destination,
			Article:       td.Article,
			TannageType:   string(td.TannageType),
		}
	}
	if g := t.Garment; g.ProductCode != "" {
		out.Garment = &Garment{
			ProductCode:      g.ProductCode,
			ProductTypes:     g.ProductTypes.Strings(),
			OtherProductType: g.OtherProductType,
			Brand:            g.Brand,
			ProcessDate:      g.ProcessDate,
		}
	}
	return out
}

func tagsToResponse(tags []domain.Tag) []Tag {
	out := make([]Tag, len(tags))
	for i, t := range tags {
		out[i] = tagToResponse(t)
	}
	return out
}

func productToResponse(p domain.Product) Product {
	return Product{
		Code:             p.Code,
		PieceCount:       p.PieceCount,
		ProductTypes:     p.ProductTypes.Strings(),
		OtherProductType: p.OtherProductType,
		Brand:            p.Brand,
		ProcessDate:      p.ProcessDate,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
	}
}

func productsToResponse(products []domain.Product) []Product {
	out := make([]Product, len(products))
	for i, p := range products {
		out[i] = productToResponse(p)
	}
	return out
}

func entryToResponse(e domain.Entry) Entry {
	return Entry{
		ID:          openapi_types.UUID(e.ID),
		UserID:      e.UserID,
		Role:        string(e.Role),
		Action:      string(e.Action),
		At:          e.At,
		Location:    e.Location,
		TagCode:     e.TagCode,
		ProductCode: e.ProductCode,
		StampCode:   e.StampCode,
	}
}

func entriesToResponse(entries []domain.Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = entryToResponse(e)
	}
	return out
}

func aggregateToResponse(a service.Aggregate) Aggregate {
	return Aggregate{Product: productToResponse(a.Product), Tags: tagsToResponse(a.Tags)}
}

func traceToResponse(tr service.Trace) Trace {
	out := Trace{History: entriesToResponse(tr.History)}
	if tr.Tag != nil {
		t := tagToResponse(*tr.Tag)
		out.Tag = &t
	}
	if tr.Product != nil {
		p := productToResponse(*tr.Product)
		out.Product = &p
	}
	if tr.Tags != nil {
		out.Tags = tagsToResponse(tr.Tags)
	}
	return out
}

func paginationOf(p domain.PaginationParams, total int64, pages int) Pagination {
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

func summaryToResponse(sum domain.Summary) Summary {
	out := Summary{Arrived: sum.Arrived, Dispatched: sum.Dispatched, DataEntered: sum.DataEntered}
	if sum.HideSources != nil {
		out.HideSources = make(map[string]int64, len(sum.HideSources))
		for h, n := range sum.HideSources {
			out.HideSources[string(h)] = n
		}
	}
	return out
}

func stampCheckToResponse(c service.StampCheck) StampCheck {
	out := StampCheck{
		TagCode:   c.Tag.Code,
		StampCode: c.Tag.Tannery.StampCode,
		MatchedBy: "tag",
		Eligible:  c.Eligible,
		Reason:    string(c.Reason),
		Message:   c.Message,
	}
	if c.ByStamp {
		out.MatchedBy = "stamp"
	}
	return out
}
