// Package notify delivers kitchen notifications for paid orders.
package notify

import (
	"bytes"
	"html"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/memohai/orderbot/internal/records"
)

// Payload is one kitchen notification.
type Payload struct {
	RecordID    string
	Number      string
	Items       []string
	Total       int64
	Address     string
	Phone       string
	At          time.Time
	ReceiptURL  string
	ReceiptRef  string
	ReceiptKind string
	Text        string
}

// FromRecord builds the payload for rec and renders its text.
func FromRecord(rec records.Record, at time.Time) (Payload, error) {
	p := Payload{
		RecordID:   rec.ID,
		Number:     rec.DisplayNumber(),
		Items:      rec.Items(),
		Total:      rec.TotalPrice,
		Address:    rec.DeliveryAddress,
		Phone:      rec.Phone(),
		At:         at,
		ReceiptURL: rec.ReceiptURL,
		ReceiptRef: rec.ReceiptReference,
	}
	if ref, ok := rec.Receipt(); ok {
		p.ReceiptKind = ref.Kind
	}
	text, err := Render(p)
	if err != nil {
		return Payload{}, err
	}
	p.Text = text
	return p, nil
}

var kitchenTemplate = template.Must(template.New("kitchen").Funcs(template.FuncMap{
	"money": formatMoney,
	"clock": func(t time.Time) string { return t.Format("15:04") },
	"orDash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "-"
		}
		return s
	},
}).Parse(`<b>НОВЫЙ ЗАКАЗ</b>
<b>Заказ №{{html .Number}}</b>

<b>СОСТАВ ЗАКАЗА:</b>
{{range .Items}}• {{html .}}
{{end}}
<b>Сумма:</b> {{money .Total}}₸
<b>Оплата:</b> Подтверждена

<b>АДРЕС ДОСТАВКИ:</b>
{{orDash .Address | html}}

<b>Телефон:</b> {{orDash .Phone | html}}
<b>Время:</b> {{clock .At}}`))

// Render produces the HTML kitchen message for p. Only the characters
// Telegram HTML mode reserves are escaped.
func Render(p Payload) (string, error) {
	var buf bytes.Buffer
	if err := kitchenTemplate.Execute(&buf, p); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var boldTags = strings.NewReplacer("<b>", "*", "</b>", "*")

// PlainText strips the markup Render adds and decodes every entity the
// template escaped, for channels without HTML.
func PlainText(s string) string {
	return html.UnescapeString(boldTags.Replace(s))
}

// formatMoney groups thousands with commas.
func formatMoney(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
