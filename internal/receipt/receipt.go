// Package receipt renders a completed order for the counter printer and for
// sharing with the customer.
package receipt

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"dukaan/backend/internal/domain"
)

const width = 32

var (
	escposInit = []byte{0x1b, 0x40}
	escposCut  = []byte{0x1d, 0x56, 0x41, 0x10}
)

// Build renders order as plain text, as raw ESC/POS bytes and as a wa.me
// share link. The share link is empty when the customer phone has no digits.
func Build(order domain.Order, shopName string) domain.Receipt {
	lines := Lines(order, shopName)

	escpos := append([]byte{}, escposInit...)
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, escposCut...)

	return domain.Receipt{
		OrderID:      order.ID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("receipt-%s.bin", order.ID),
		ShareURL:     ShareURL(order, shopName),
	}
}

func Lines(order domain.Order, shopName string) []string {
	rule := strings.Repeat("=", width)
	thin := strings.Repeat("-", width)

	lines := []string{
		shopName,
		rule,
		"Order: " + order.ID,
		"Date: " + order.CreatedAt.Format("2006-01-02 15:04"),
		"Customer: " + order.Customer.Name,
		"Phone: " + order.Customer.Phone,
		thin,
	}
	for _, p := range order.Products {
		lines = append(lines, fmt.Sprintf("%s x%d", itemName(p), p.Quantity))
		lines = append(lines, column("", money(p.Price.Mul(decimal.NewFromInt(int64(p.Quantity))))))
		for _, serial := range p.Serials {
			lines = append(lines, "  S/N "+serial)
		}
	}
	lines = append(lines,
		thin,
		column("Total", money(order.TotalAmount)),
		column("Paid ("+order.Mode+")", money(order.Paid)),
	)
	if due := order.Due(); due.IsPositive() {
		lines = append(lines, column("Due", money(due)))
	}
	lines = append(lines, rule, "Thank you, visit again", "")
	return lines
}

// ShareURL builds a WhatsApp click-to-chat link carrying a short summary.
// Ten digit numbers are assumed to be Indian mobiles and get the 91 prefix.
func ShareURL(order domain.Order, shopName string) string {
	phone := digits(order.Customer.Phone)
	if phone == "" {
		return ""
	}
	if len(phone) == 10 {
		phone = "91" + phone
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nOrder %s\n", shopName, order.ID)
	for _, p := range order.Products {
		fmt.Fprintf(&b, "%s x%d\n", itemName(p), p.Quantity)
	}
	fmt.Fprintf(&b, "Total Rs.%s, paid Rs.%s", money(order.TotalAmount), money(order.Paid))
	if due := order.Due(); due.IsPositive() {
		fmt.Fprintf(&b, ", due Rs.%s", money(due))
	}

	return "https://wa.me/" + phone + "?text=" + url.QueryEscape(b.String())
}

func itemName(p domain.OrderProduct) string {
	parts := []string{p.Name}
	for _, opt := range []string{p.Color, p.Storage} {
		if opt != "" {
			parts = append(parts, opt)
		}
	}
	return strings.Join(parts, " ")
}

func column(label string, value string) string {
	pad := width - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
