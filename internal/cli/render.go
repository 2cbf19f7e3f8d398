package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/storage"
)

// StatusText renders a process status in its color.
func StatusText(status model.ProcessStatus) string {
	if status == model.StatusFinished {
		return SuccessStyle.Render(string(status))
	}
	return WarningStyle.Render(string(status))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})
}

// RenderQueue renders records newest first, as stored.
func RenderQueue(records []model.ProcessRecord) string {
	if len(records) == 0 {
		return SubtleStyle.Render("No vehicles in the queue.")
	}

	t := newTable("Ticket", "Vehicle", "Category", "Date", "Arrival", "Requested", "Delivered", "Status")
	for _, r := range records {
		t.Row(
			r.TicketNumber,
			r.VehicleNumber,
			r.WaitIn.Category,
			r.CreationDate,
			r.ArrivalTime,
			strconv.Itoa(r.WaitIn.DeliveryTable.TotalRequested()),
			strconv.Itoa(r.WaitIn.DeliveryTable.TotalDelivered()),
			string(r.Status),
		)
	}
	return t.Render()
}

// RenderRecord renders one record with its delivery table.
func RenderRecord(r model.ProcessRecord) string {
	in := r.WaitIn
	var b strings.Builder

	fmt.Fprintf(&b, "Vehicle:   %s\n", BoldStyle.Render(r.VehicleNumber))
	fmt.Fprintf(&b, "Category:  %s\n", in.Category)
	fmt.Fprintf(&b, "Arrived:   %s %s\n", r.CreationDate, r.ArrivalTime)
	fmt.Fprintf(&b, "Status:    %s\n", StatusText(r.Status))
	fmt.Fprintf(&b, "Driver:    %s (%s, %s) licence %s, alcohol %s\n",
		in.DriverName, in.DriverPhone, in.DriverTown, in.DriverLicense, in.DriverAlcoholTest)
	fmt.Fprintf(&b, "Helper:    %s (%s, %s) id %s, alcohol %s\n",
		in.HelperName, in.HelperPhone, in.HelperTown, in.HelperIdentity, in.HelperAlcoholTest)
	fmt.Fprintf(&b, "PPE:       driver %s, helper %s\n", in.DriverPPENumber, in.HelperPPENumber)
	fmt.Fprintf(&b, "Insurance: %t\n", in.VehicleInsurance)
	if r.WaitOut != nil {
		fmt.Fprintf(&b, "Departed:  %s, total issue %s\n", r.WaitOut.DepartureTime, r.WaitOut.TotalIssue)
		if r.WaitOut.Notes != "" {
			fmt.Fprintf(&b, "Notes:     %s\n", r.WaitOut.Notes)
		}
	}

	t := newTable("Brand", "Requested", "Delivered")
	for _, line := range in.DeliveryTable {
		t.Row(line.Brand, strconv.Itoa(line.RequestedBag), strconv.Itoa(line.DeliveryBag))
	}
	t.Row("Total", strconv.Itoa(in.DeliveryTable.TotalRequested()), strconv.Itoa(in.DeliveryTable.TotalDelivered()))
	b.WriteString(t.Render())

	return RenderBox("Ticket "+r.TicketNumber, b.String())
}

// RenderCounters renders today's per-prefix counters in prefix order.
func RenderCounters(state model.DailyCounterState) string {
	if len(state.Counts) == 0 {
		return SubtleStyle.Render(fmt.Sprintf("No tickets issued on %s.", state.Date))
	}

	prefixes := make([]string, 0, len(state.Counts))
	for prefix := range state.Counts {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)

	t := newTable("Prefix", "Issued", "Last ticket")
	for _, prefix := range prefixes {
		n := state.Counts[prefix]
		t.Row(prefix, strconv.Itoa(n), model.FormatTicketNumber(prefix, n))
	}
	return FormatTitle("Tickets for "+state.Date) + "\n" + t.Render()
}

// RenderDetection renders plate detection results, best first.
func RenderDetection(result *model.DetectionResult) string {
	if result == nil || len(result.Detections) == 0 {
		return SubtleStyle.Render("No plates detected.")
	}

	detections := append([]model.PlateDetection(nil), result.Detections...)
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	t := newTable("Plate", "Raw", "Confidence")
	for _, d := range detections {
		t.Row(d.PlateText(), d.RawText, fmt.Sprintf("%.0f%%", d.Confidence*100))
	}
	return t.Render()
}

// RenderCheckpoints renders checkpoint metadata.
func RenderCheckpoints(checkpoints []storage.CheckpointInfo) string {
	if len(checkpoints) == 0 {
		return SubtleStyle.Render("No checkpoints found.")
	}

	t := newTable("ID", "Created", "Processes", "Pending", "Size", "Auto", "Description")
	for _, cp := range checkpoints {
		auto := ""
		if cp.IsAuto {
			auto = "yes"
		}
		t.Row(
			cp.ID,
			cp.CreatedAt.Format("2006-01-02 15:04"),
			strconv.Itoa(cp.Processes),
			strconv.Itoa(cp.Pending),
			FormatBytes(cp.FileSize),
			auto,
			cp.Description,
		)
	}
	return t.Render()
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
