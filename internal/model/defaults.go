package model

import "time"

// NewWaitInForm returns a fresh WaitIn template stamped with now.
// Every call builds a new value, so callers never share a default instance.
func NewWaitInForm(now time.Time) WaitInForm {
	return WaitInForm{
		Category:          DefaultCategory,
		ArrivalDate:       now.Format(FormDateLayout),
		ArrivalTime:       now.Format(ArrivalTimeLayout),
		DriverAlcoholTest: AlcoholLow,
		HelperAlcoholTest: AlcoholLow,
		DeliveryTable:     NewDeliveryTable(),
	}
}

// NewWaitOutForm returns an empty WaitOut form with the fixed brand list.
func NewWaitOutForm() WaitOutForm {
	return WaitOutForm{DeliveryTable: NewDeliveryTable()}
}
