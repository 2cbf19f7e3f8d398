package model

import (
	"fmt"
	"strings"
)

// BrandCount is the fixed length of every delivery table.
const BrandCount = 6

// Brand labels, in delivery table order.
const (
	BrandSanstha    = "Sanstha"
	BrandMarinePlus = "Marine Plus"
	BrandMahamera   = "Mahamera"
	BrandRedFlow    = "Red Flow"
	BrandBulk       = "Bulk"
	BrandScamale    = "Scamale"
)

// Brands is the ordered brand sequence shared by WaitIn and WaitOut tables.
var Brands = [BrandCount]string{
	BrandSanstha,
	BrandMarinePlus,
	BrandMahamera,
	BrandRedFlow,
	BrandBulk,
	BrandScamale,
}

// DeliveryLine is one brand's requested versus delivered bag count.
type DeliveryLine struct {
	Brand        string `json:"brand"`
	RequestedBag int    `json:"requestedBag"`
	DeliveryBag  int    `json:"deliveryBag"`
}

// DeliveryTable is index-aligned with Brands.
type DeliveryTable [BrandCount]DeliveryLine

// NewDeliveryTable returns a table with every brand at zero bags.
func NewDeliveryTable() DeliveryTable {
	var t DeliveryTable
	for i, brand := range Brands {
		t[i] = DeliveryLine{Brand: brand}
	}
	return t
}

// BrandIndex returns the table index of a brand label, matched case-insensitively.
func BrandIndex(brand string) (int, bool) {
	for i, b := range Brands {
		if strings.EqualFold(b, strings.TrimSpace(brand)) {
			return i, true
		}
	}
	return -1, false
}

// MergeDelivered copies the delivered counts of src into t by index.
// Brand and requested counts in t are left alone.
func (t *DeliveryTable) MergeDelivered(src DeliveryTable) {
	for i := range t {
		t[i].DeliveryBag = src[i].DeliveryBag
	}
}

// TotalRequested sums the requested bags.
func (t DeliveryTable) TotalRequested() int {
	total := 0
	for _, line := range t {
		total += line.RequestedBag
	}
	return total
}

// TotalDelivered sums the delivered bags.
func (t DeliveryTable) TotalDelivered() int {
	total := 0
	for _, line := range t {
		total += line.DeliveryBag
	}
	return total
}

// Validate checks that bag counts are non-negative.
func (t DeliveryTable) Validate() error {
	for i, line := range t {
		if line.RequestedBag < 0 || line.DeliveryBag < 0 {
			return fmt.Errorf("delivery line %d (%s): bag counts cannot be negative", i, line.Brand)
		}
	}
	return nil
}
