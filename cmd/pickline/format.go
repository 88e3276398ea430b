package main

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pickline/internal/picking"
)

var titleCaser = cases.Title(language.English)

// humanize turns wire values such as "pending_audit" into "Pending Audit".
func humanize(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return "-"
	}
	return titleCaser.String(value)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func formatProgress(done, required int) string {
	return strconv.Itoa(done) + "/" + strconv.Itoa(required)
}

func renderSessionView(view picking.SessionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%s) picker %s\n", view.Session.ID, humanize(string(view.Session.Status)), view.Session.PickerID)

	itemRows := make([][]string, 0, len(view.Items))
	for _, item := range view.Items {
		status := humanize(string(item.Status))
		if item.Removed {
			status = "Removed"
		}
		substitute := ""
		if item.Substitute != nil {
			substitute = fmt.Sprintf("%s (%s)", item.Substitute.Name, formatCents(item.Substitute.PriceCents))
		}
		itemRows = append(itemRows, []string{
			item.ProductID,
			item.Name,
			item.SKU,
			formatProgress(item.Counts.Done(), item.Required),
			strconv.Itoa(item.Counts.Picked),
			strconv.Itoa(item.Counts.Substituted),
			strconv.Itoa(item.Counts.Short),
			status,
			substitute,
		})
	}
	b.WriteString(renderTable(
		[]string{"Product", "Name", "SKU", "Done", "Picked", "Subst", "Short", "Status", "Substitute"},
		itemRows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	b.WriteString("\n")

	orderRows := make([][]string, 0, len(view.Orders))
	for _, order := range view.Orders {
		orderRows = append(orderRows, []string{
			order.OrderID,
			order.CustomerLabel,
			strconv.Itoa(order.LineCount),
			formatProgress(order.UnitsDone, order.UnitsRequired),
			humanize(string(order.Status)),
		})
	}
	b.WriteString(renderTable(
		[]string{"Order", "Customer", "Lines", "Units", "Status"},
		orderRows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
	b.WriteString("\n")
	return b.String()
}
