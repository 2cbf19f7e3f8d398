// Package export flattens process records into report rows and writes them
// to spreadsheet files.
package export

import (
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

var leadingColumns = []string{
	"Token Number",
	"Vehicle Number",
	"Date",
	"Arrival Time",
	"Status",
	"Driver Name",
	"Driver Phone",
	"Driver Town",
	"Driver License",
	"Driver Alcohol Test",
	"Helper Name",
	"Helper Identity",
	"Helper Phone",
	"Helper Town",
	"Helper Alcohol Test",
	"Vehicle Insurance",
	"Driver PPE Number",
	"Helper PPE Number",
}

var trailingColumns = []string{
	"Departure Time",
	"Total Issue",
	"Notes",
}

// Columns returns the report header in column order.
func Columns() []string {
	cols := make([]string, 0, len(leadingColumns)+2*model.BrandCount+len(trailingColumns))
	cols = append(cols, leadingColumns...)
	for _, brand := range model.Brands {
		cols = append(cols, brand+" Requested", brand+" Delivered")
	}
	return append(cols, trailingColumns...)
}

// Row flattens one record. Wait-out cells are empty while the record is pending.
func Row(r model.ProcessRecord) []any {
	in := r.WaitIn
	row := make([]any, 0, len(Columns()))
	row = append(row,
		r.TicketNumber,
		r.VehicleNumber,
		r.CreationDate,
		r.ArrivalTime,
		string(r.Status),
		in.DriverName,
		in.DriverPhone,
		in.DriverTown,
		in.DriverLicense,
		string(in.DriverAlcoholTest),
		in.HelperName,
		in.HelperIdentity,
		in.HelperPhone,
		in.HelperTown,
		string(in.HelperAlcoholTest),
		in.VehicleInsurance,
		in.DriverPPENumber,
		in.HelperPPENumber,
	)
	for _, line := range in.DeliveryTable {
		row = append(row, line.RequestedBag, line.DeliveryBag)
	}
	if r.WaitOut != nil {
		row = append(row, r.WaitOut.DepartureTime, r.WaitOut.TotalIssue, r.WaitOut.Notes)
	} else {
		row = append(row, "", "", "")
	}
	return row
}

// Summarize counts statuses and bags across records.
func Summarize(records []model.ProcessRecord) (pending, finished, requested, delivered int) {
	for _, r := range records {
		if r.IsFinished() {
			finished++
		} else {
			pending++
		}
		requested += r.WaitIn.DeliveryTable.TotalRequested()
		delivered += r.WaitIn.DeliveryTable.TotalDelivered()
	}
	return pending, finished, requested, delivered
}
