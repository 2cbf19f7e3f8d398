package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// ErrInputClosed is returned when input ends before the form is complete.
var ErrInputClosed = errors.New("input terminated")

// Prompter fills WaitIn and WaitOut forms interactively. An empty answer
// keeps the value shown in brackets.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewPrompter creates a prompter on reader and writer, defaulting to stdio.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

// PromptWaitIn asks for every WaitIn field, starting from base.
func (p *Prompter) PromptWaitIn(ctx context.Context, base model.WaitInForm) (model.WaitInForm, error) {
	form := base
	if _, err := fmt.Fprintln(p.writer, FormatTitle("Vehicle arrival")); err != nil {
		return form, fmt.Errorf("failed to write title: %w", err)
	}

	var err error
	if form.VehicleNumber, err = p.promptRequired(ctx, "Vehicle number", form.VehicleNumber); err != nil {
		return form, err
	}
	if form.Category, err = p.promptChoice(ctx, "Category", form.Category, model.Categories()); err != nil {
		return form, err
	}

	text := []struct {
		field *string
		label string
	}{
		{&form.DriverName, "Driver name"},
		{&form.DriverPhone, "Driver phone"},
		{&form.DriverTown, "Driver town"},
		{&form.DriverLicense, "Driver licence"},
		{&form.HelperName, "Helper name"},
		{&form.HelperIdentity, "Helper identity"},
		{&form.HelperPhone, "Helper phone"},
		{&form.HelperTown, "Helper town"},
		{&form.DriverPPENumber, "Driver PPE number"},
		{&form.HelperPPENumber, "Helper PPE number"},
	}
	for _, q := range text {
		if *q.field, err = p.promptString(ctx, q.label, *q.field); err != nil {
			return form, err
		}
	}

	levels := []string{string(model.AlcoholLow), string(model.AlcoholHigh)}
	driver, err := p.promptChoice(ctx, "Driver alcohol test", string(form.DriverAlcoholTest), levels)
	if err != nil {
		return form, err
	}
	form.DriverAlcoholTest = model.AlcoholLevel(driver)

	helper, err := p.promptChoice(ctx, "Helper alcohol test", string(form.HelperAlcoholTest), levels)
	if err != nil {
		return form, err
	}
	form.HelperAlcoholTest = model.AlcoholLevel(helper)

	if form.VehicleInsurance, err = p.promptBool(ctx, "Vehicle insured", form.VehicleInsurance); err != nil {
		return form, err
	}

	for i := range form.DeliveryTable {
		line := &form.DeliveryTable[i]
		if line.RequestedBag, err = p.promptCount(ctx, line.Brand+" bags requested", line.RequestedBag); err != nil {
			return form, err
		}
	}

	return form, nil
}

// PromptWaitOut asks for the departure details of rec.
func (p *Prompter) PromptWaitOut(ctx context.Context, rec model.ProcessRecord, base model.WaitOutForm) (model.WaitOutForm, error) {
	form := base
	if _, err := fmt.Fprintln(p.writer, FormatTitle("Departure of "+FormatTicket(rec.TicketNumber)+" "+rec.VehicleNumber)); err != nil {
		return form, fmt.Errorf("failed to write title: %w", err)
	}

	var err error
	if form.DepartureTime, err = p.promptString(ctx, "Departure time", form.DepartureTime); err != nil {
		return form, err
	}
	for i := range form.DeliveryTable {
		requested := rec.WaitIn.DeliveryTable[i].RequestedBag
		label := fmt.Sprintf("%s bags delivered (requested %d)", rec.WaitIn.DeliveryTable[i].Brand, requested)
		if form.DeliveryTable[i].DeliveryBag, err = p.promptCount(ctx, label, form.DeliveryTable[i].DeliveryBag); err != nil {
			return form, err
		}
	}
	if form.TotalIssue, err = p.promptString(ctx, "Total issue", form.TotalIssue); err != nil {
		return form, err
	}
	if form.Notes, err = p.promptString(ctx, "Notes", form.Notes); err != nil {
		return form, err
	}
	return form, nil
}

func (p *Prompter) ask(ctx context.Context, label, current string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	default:
	}

	prompt := FormatPrompt(label)
	if current != "" {
		prompt += SubtleStyle.Render(" [" + current + "]")
	}
	if _, err := fmt.Fprint(p.writer, prompt+": "); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	input, err := p.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || input == "") {
		if errors.Is(err, io.EOF) {
			return "", ErrInputClosed
		}
		return "", err
	}

	answer := strings.TrimSpace(input)
	if answer == "" {
		return current, nil
	}
	return answer, nil
}

func (p *Prompter) promptString(ctx context.Context, label, current string) (string, error) {
	return p.ask(ctx, label, current)
}

func (p *Prompter) promptRequired(ctx context.Context, label, current string) (string, error) {
	for {
		answer, err := p.ask(ctx, label, current)
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		p.complain(label + " cannot be empty.")
	}
}

func (p *Prompter) promptChoice(ctx context.Context, label, current string, choices []string) (string, error) {
	for {
		answer, err := p.ask(ctx, label+" ("+strings.Join(choices, "/")+")", current)
		if err != nil {
			return "", err
		}
		for _, c := range choices {
			if strings.EqualFold(c, answer) {
				return c, nil
			}
		}
		p.complain("Invalid choice. Please try again.")
	}
}

func (p *Prompter) promptBool(ctx context.Context, label string, current bool) (bool, error) {
	def := "n"
	if current {
		def = "y"
	}
	for {
		answer, err := p.ask(ctx, label+" (y/n)", def)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		p.complain("Please answer y or n.")
	}
}

func (p *Prompter) promptCount(ctx context.Context, label string, current int) (int, error) {
	for {
		answer, err := p.ask(ctx, label, strconv.Itoa(current))
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.Atoi(answer)
		if convErr == nil && n >= 0 {
			return n, nil
		}
		p.complain("Enter a whole number of bags.")
	}
}

func (p *Prompter) complain(msg string) {
	if _, err := fmt.Fprintln(p.writer, FormatError(msg)); err != nil {
		slog.Warn("Failed to write error message", "error", err)
	}
}
