package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	fencedPayload = regexp.MustCompile("(?is)```[ \\t]*(?:json)?[ \\t]*\\r?\\n?\\s*(\\{.*?\\})\\s*```")
	emptyFence    = regexp.MustCompile("(?i)```[ \\t]*(?:json)?\\s*```")
	emphasis      = regexp.MustCompile("\\*\\*|__|\\*|_|`")
	headings      = regexp.MustCompile(`(?m)^#+\s*`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Extraction is the outcome of scanning model text for an order payload.
type Extraction struct {
	// Order is set only when the payload parsed and is actionable.
	Order *Order
	// Display is the model text with the payload removed and markup stripped.
	Display string
	// Matched reports whether a payload candidate was found at all.
	Matched bool
	// Err explains why a matched payload was rejected.
	Err error
}

// Extract locates an order payload in text. A fenced block wins over a bare
// object carrying the confirmation key. The matched substring is removed from
// the display text whether or not it parses.
func Extract(text string) Extraction {
	payload, span, ok := locate(text)
	if !ok {
		return Extraction{Display: CleanMarkup(text)}
	}
	display := text[:span[0]] + text[span[1]:]
	display = emptyFence.ReplaceAllString(display, "")
	res := Extraction{
		Matched: true,
		Display: CleanMarkup(display),
	}
	o, err := parse(payload)
	if err != nil {
		res.Err = err
		return res
	}
	if err := o.Validate(); err != nil {
		res.Err = err
		return res
	}
	res.Order = o
	return res
}

// CleanMarkup strips emphasis characters and heading markers.
func CleanMarkup(text string) string {
	text = emphasis.ReplaceAllString(text, "")
	text = headings.ReplaceAllString(text, "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func locate(text string) (string, [2]int, bool) {
	if loc := fencedPayload.FindStringSubmatchIndex(text); loc != nil {
		return text[loc[2]:loc[3]], [2]int{loc[0], loc[1]}, true
	}
	start, end, ok := bareObject(text)
	if !ok {
		return "", [2]int{}, false
	}
	return text[start:end], [2]int{start, end}, true
}

// bareObject finds the innermost balanced {...} that encloses the first
// occurrence of the quoted confirmation key.
func bareObject(text string) (int, int, bool) {
	key := strings.Index(text, `"`+ConfirmationKey+`"`)
	if key < 0 {
		return 0, 0, false
	}
	for open := strings.LastIndexByte(text[:key], '{'); open >= 0; open = strings.LastIndexByte(text[:open], '{') {
		end, ok := matchBrace(text, open)
		if ok && end > key {
			return open, end, true
		}
		if open == 0 {
			break
		}
	}
	return 0, 0, false
}

// matchBrace returns the index just past the brace closing the one at open.
func matchBrace(text string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

type rawOrder struct {
	Confirmed       json.RawMessage   `json:"order_confirmed"`
	CustomerName    string            `json:"customer_name"`
	Phone           json.RawMessage   `json:"phone"`
	DeliveryAddress string            `json:"delivery_address"`
	Items           []json.RawMessage `json:"order_items"`
	TotalPrice      json.RawMessage   `json:"total_price"`
}

func parse(payload string) (*Order, error) {
	var raw rawOrder
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("decode order payload: %w", err)
	}
	total, err := parseTotal(raw.TotalPrice)
	if err != nil {
		return nil, err
	}
	return &Order{
		Confirmed:       bytes.Equal(bytes.TrimSpace(raw.Confirmed), []byte("true")),
		CustomerName:    strings.TrimSpace(raw.CustomerName),
		Phone:           scalarText(raw.Phone),
		DeliveryAddress: strings.TrimSpace(raw.DeliveryAddress),
		Items:           parseItems(raw.Items),
		TotalPrice:      total,
	}, nil
}

// parseTotal accepts a JSON number or a numeric string; a missing total is zero.
func parseTotal(raw json.RawMessage) (int64, error) {
	text := scalarText(raw)
	if text == "" || text == "null" {
		return 0, nil
	}
	text = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, text)
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid total_price %q", text)
	}
	return int64(math.Round(f)), nil
}

// parseItems keeps string items verbatim and renders object items as
// "<name> x<quantity>" when those fields exist.
func parseItems(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Name     string          `json:"name"`
			Quantity json.RawMessage `json:"quantity"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && strings.TrimSpace(obj.Name) != "" {
			label := strings.TrimSpace(obj.Name)
			if q := scalarText(obj.Quantity); q != "" && q != "null" {
				label += " x" + q
			}
			out = append(out, label)
			continue
		}
		if text := strings.TrimSpace(string(item)); text != "" && text != "null" {
			out = append(out, text)
		}
	}
	return out
}

func scalarText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
