// Package testutil builds process record fixtures for tests.
//
// Example:
//
//	rec := testutil.NewRecord("B-01").
//		Vehicle("WP LK-9876").
//		ArrivedAt(at).
//		Requested(model.BrandBulk, 40).
//		Finished(at.Add(time.Hour), "15:10").
//		Delivered(model.BrandBulk, 38).
//		Build()
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

// DefaultArrival is the arrival time used when a builder is not given one.
var DefaultArrival = time.Date(2024, 7, 15, 9, 30, 0, 0, time.UTC)

// RecordBuilder assembles a model.ProcessRecord. Records start pending.
type RecordBuilder struct {
	rec     model.ProcessRecord
	waitOut *model.WaitOutForm
	done    *time.Time
}

// NewRecord starts a pending record with the given ticket number.
func NewRecord(ticket string) *RecordBuilder {
	b := &RecordBuilder{
		rec: model.ProcessRecord{
			ID:            uuid.New(),
			TicketNumber:  ticket,
			VehicleNumber: "WP-" + ticket,
			Status:        model.StatusPending,
		},
	}
	return b.ArrivedAt(DefaultArrival)
}

// Vehicle sets the vehicle number on the record and its form.
func (b *RecordBuilder) Vehicle(number string) *RecordBuilder {
	b.rec.VehicleNumber = number
	b.rec.WaitIn.VehicleNumber = number
	return b
}

// ArrivedAt sets the creation time and the fields derived from it. The
// WaitIn form is reset, so call it before other form setters.
func (b *RecordBuilder) ArrivedAt(at time.Time) *RecordBuilder {
	b.rec.CreatedAt = at
	b.rec.CreationDate = at.Format(model.CreationDateLayout)
	b.rec.ArrivalTime = at.Format(model.ArrivalTimeLayout)
	b.rec.WaitIn = model.NewWaitInForm(at)
	b.rec.WaitIn.VehicleNumber = b.rec.VehicleNumber
	return b
}

// Category sets the WaitIn category.
func (b *RecordBuilder) Category(label string) *RecordBuilder {
	b.rec.WaitIn.Category = label
	return b
}

// Driver sets the driver name.
func (b *RecordBuilder) Driver(name string) *RecordBuilder {
	b.rec.WaitIn.DriverName = name
	return b
}

// Insured marks the vehicle insurance as checked.
func (b *RecordBuilder) Insured() *RecordBuilder {
	b.rec.WaitIn.VehicleInsurance = true
	return b
}

// Requested sets the requested bag count for brand.
func (b *RecordBuilder) Requested(brand string, n int) *RecordBuilder {
	if idx, ok := model.BrandIndex(brand); ok {
		b.rec.WaitIn.DeliveryTable[idx].RequestedBag = n
	}
	return b
}

// Finished records a WaitOut at the given time.
func (b *RecordBuilder) Finished(at time.Time, departure string) *RecordBuilder {
	wo := model.NewWaitOutForm()
	wo.DepartureTime = departure
	b.waitOut = &wo
	b.done = &at
	return b
}

// Delivered sets the delivered bag count for brand. It implies Finished
// when no WaitOut has been recorded yet.
func (b *RecordBuilder) Delivered(brand string, n int) *RecordBuilder {
	if b.waitOut == nil {
		b.Finished(b.rec.CreatedAt.Add(time.Hour), b.rec.CreatedAt.Add(time.Hour).Format(model.ArrivalTimeLayout))
	}
	if idx, ok := model.BrandIndex(brand); ok {
		b.waitOut.DeliveryTable[idx].DeliveryBag = n
	}
	return b
}

// Notes sets the WaitOut issue and notes fields.
func (b *RecordBuilder) Notes(totalIssue, notes string) *RecordBuilder {
	if b.waitOut == nil {
		b.Finished(b.rec.CreatedAt.Add(time.Hour), b.rec.CreatedAt.Add(time.Hour).Format(model.ArrivalTimeLayout))
	}
	b.waitOut.TotalIssue = totalIssue
	b.waitOut.Notes = notes
	return b
}

// Build returns the record. Delivered counts are merged into the WaitIn
// table the same way a WaitOut update does.
func (b *RecordBuilder) Build() model.ProcessRecord {
	rec := b.rec.Clone()
	if b.waitOut != nil {
		wo := *b.waitOut
		rec.WaitIn.DeliveryTable.MergeDelivered(wo.DeliveryTable)
		rec.WaitOut = &wo
		rec.Status = model.StatusFinished
		finished := *b.done
		rec.FinishedAt = &finished
	}
	return rec
}

// Queue builds several records newest first, one minute apart, ending at
// DefaultArrival.
func Queue(tickets ...string) []model.ProcessRecord {
	out := make([]model.ProcessRecord, 0, len(tickets))
	for i, ticket := range tickets {
		at := DefaultArrival.Add(-time.Duration(i) * time.Minute)
		out = append(out, NewRecord(ticket).ArrivedAt(at).Build())
	}
	return out
}
