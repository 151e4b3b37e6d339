package domain

import (
	"strings"
	"time"
)

// Confirmation is a slaughter confirmation read from the legacy point-of-sale
// database. It is the only input to tag registration.
type Confirmation struct {
	ID             int64
	ConfirmedAt    time.Time
	PrintsCounter  int
	BatchNo        string
	OwnerName      string
	ExpiryDays     int
	AccountType    string
	OffalCollector string
	Command        string
	TotalAnimals   int
	Price          string
	Amount         string
	LegacyTags     []string
}

// TotalTags is the number of physical tags the confirmation pays for: four
// per animal for "B" commands, one per animal for "M" commands.
func (c Confirmation) TotalTags() int {
	switch {
	case strings.HasPrefix(c.Command, "B"):
		return c.TotalAnimals * 4
	case strings.HasPrefix(c.Command, "M"):
		return c.TotalAnimals
	}
	return 0
}

// Origin builds the origin block for a tag minted from this confirmation.
// legacyTag is the label of the legacy tag row the new tag replaces, or "".
func (c Confirmation) Origin(legacyTag string) Origin {
	command := c.Command
	if command == "" {
		command = "N/A"
	}
	offal := c.OffalCollector
	if offal == "" {
		offal = "N/A"
	}
	account := c.AccountType
	if account == "" {
		account = "N/A"
	}
	return Origin{
		ConfirmationID: c.ID,
		LegacyTag:      legacyTag,
		BatchNo:        c.BatchNo,
		TotalAnimals:   c.TotalAnimals,
		Command:        command,
		Price:          c.Price,
		Amount:         c.Amount,
		OwnerName:      c.OwnerName,
		ExpiryDays:     c.ExpiryDays,
		AccountType:    account,
		OffalCollector: offal,
		ConfirmedAt:    c.ConfirmedAt,
		TotalTags:      c.TotalTags(),
		TotalPrints:    c.PrintsCounter,
	}
}
