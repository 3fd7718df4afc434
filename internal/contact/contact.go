// Package contact builds pre-filled chat links for suppliers. It never
// sends anything.
package contact

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/parcabul/broker/internal/model"
	"github.com/parcabul/broker/internal/normalize"
)

const baseURL = "https://wa.me/"

// Message is the request summary placed in a link's text.
type Message struct {
	RequestID string
	Criteria  model.Criteria
	City      string
	Condition string
	MinPrice  *float64
	PartName  string
}

// Lines renders the message one field per line, skipping empty optional
// fields.
func (m Message) Lines() []string {
	lines := []string{
		"Talep ID: " + m.RequestID,
		"Marka: " + m.Criteria.Brand,
		"Model: " + m.Criteria.Model,
		"Yıl: " + strconv.Itoa(m.Criteria.Year),
		"Parça: " + m.Criteria.PartCode,
	}
	if m.City != "" {
		lines = append(lines, "Şehir: "+m.City)
	}
	if m.Condition != "" {
		lines = append(lines, "Durum: "+m.Condition)
	}
	if m.MinPrice != nil {
		lines = append(lines, fmt.Sprintf("Bütçe: %s- %s", strconv.FormatFloat(*m.MinPrice, 'f', -1, 64), model.DefaultCurrency))
	}
	if m.PartName != "" {
		lines = append(lines, "Parça Adı: "+m.PartName)
	}
	return lines
}

// Link returns the chat link for phone, or "" when phone has no digits.
func Link(phone string, m Message) string {
	digits := normalize.Phone(phone)
	if digits == "" {
		return ""
	}
	return baseURL + digits + "?text=" + escape(strings.Join(m.Lines(), "\n"))
}

// escape percent-encodes like encodeURIComponent: spaces become %20 and the
// unreserved marks stay literal.
func escape(s string) string {
	q := url.QueryEscape(s)
	q = strings.ReplaceAll(q, "+", "%20")
	for _, r := range []struct{ from, to string }{
		{"%21", "!"}, {"%27", "'"}, {"%28", "("}, {"%29", ")"}, {"%2A", "*"},
	} {
		q = strings.ReplaceAll(q, r.from, r.to)
	}
	return q
}
