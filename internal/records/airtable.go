package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AirtableOptions configures an Airtable store.
type AirtableOptions struct {
	BaseURL string
	APIKey  string
	BaseID  string
	Table   string
	Timeout time.Duration
}

// Airtable stores records in an Airtable table.
type Airtable struct {
	endpoint string
	apiKey   string
	logger   *slog.Logger
	http     *http.Client
}

// NewAirtable validates opts and builds a store.
func NewAirtable(log *slog.Logger, opts AirtableOptions) (*Airtable, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("airtable: api key is required")
	}
	if strings.TrimSpace(opts.BaseID) == "" {
		return nil, errors.New("airtable: base id is required")
	}
	if strings.TrimSpace(opts.Table) == "" {
		opts.Table = "Orders"
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "https://api.airtable.com/v0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Airtable{
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/" + url.PathEscape(opts.BaseID) + "/" + url.PathEscape(opts.Table),
		apiKey:   opts.APIKey,
		logger:   log.With(slog.String("client", "airtable")),
		http:     &http.Client{Timeout: opts.Timeout},
	}, nil
}

type airtableAttachment struct {
	URL string `json:"url"`
}

type airtableRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type airtableList struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

// Create inserts rec and returns the Airtable record id.
func (a *Airtable) Create(ctx context.Context, rec Record) (string, error) {
	fields := map[string]any{
		FieldCustomerInfo:    rec.CustomerInfo,
		FieldOrderDetails:    rec.OrderDetails,
		FieldTotalPrice:      rec.TotalPrice,
		FieldDeliveryAddress: rec.DeliveryAddress,
		FieldIsPaid:          rec.Paid,
		FieldKitchenStatus:   rec.KitchenStatus,
	}
	if rec.ReceiptURL != "" {
		fields[FieldPaymentReceipt] = []airtableAttachment{{URL: rec.ReceiptURL}}
	}
	if rec.ReceiptReference != "" {
		fields[FieldReceiptReference] = rec.ReceiptReference
	}
	var created airtableRecord
	if err := a.do(ctx, http.MethodPost, a.endpoint, map[string]any{"fields": fields, "typecast": true}, &created); err != nil {
		return "", fmt.Errorf("airtable create: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("airtable create: response has no record id")
	}
	return created.ID, nil
}

// UpdateStatus patches one field of record id.
func (a *Airtable) UpdateStatus(ctx context.Context, id, field string, value any) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyRecordID
	}
	normalized, err := normalizeStatus(field, value)
	if err != nil {
		return err
	}
	if field == FieldPaymentReceipt {
		normalized = []airtableAttachment{{URL: normalized.(string)}}
	}
	body := map[string]any{"fields": map[string]any{field: normalized}}
	if err := a.do(ctx, http.MethodPatch, a.endpoint+"/"+url.PathEscape(id), body, nil); err != nil {
		return fmt.Errorf("airtable update %s: %w", id, err)
	}
	return nil
}

// Query lists records matching f, following pagination.
func (a *Airtable) Query(ctx context.Context, f Filter) ([]Record, error) {
	params := url.Values{}
	if formula := airtableFormula(f); formula != "" {
		params.Set("filterByFormula", formula)
	}
	var out []Record
	for {
		target := a.endpoint
		if encoded := params.Encode(); encoded != "" {
			target += "?" + encoded
		}
		var page airtableList
		if err := a.do(ctx, http.MethodGet, target, nil, &page); err != nil {
			return nil, fmt.Errorf("airtable query: %w", err)
		}
		for _, item := range page.Records {
			out = append(out, decodeAirtable(item))
		}
		if page.Offset == "" {
			return out, nil
		}
		params.Set("offset", page.Offset)
	}
}

// Get fetches one record.
func (a *Airtable) Get(ctx context.Context, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrEmptyRecordID
	}
	var item airtableRecord
	if err := a.do(ctx, http.MethodGet, a.endpoint+"/"+url.PathEscape(id), nil, &item); err != nil {
		return Record{}, fmt.Errorf("airtable get %s: %w", id, err)
	}
	return decodeAirtable(item), nil
}

func (a *Airtable) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func airtableFormula(f Filter) string {
	var parts []string
	if f.Paid != nil {
		if *f.Paid {
			parts = append(parts, "{"+FieldIsPaid+"}=TRUE()")
		} else {
			parts = append(parts, "NOT({"+FieldIsPaid+"})")
		}
	}
	if f.KitchenStatus != "" {
		parts = append(parts, "{"+FieldKitchenStatus+"}='"+strings.ReplaceAll(f.KitchenStatus, "'", "\\'")+"'")
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "AND(" + strings.Join(parts, ", ") + ")"
	}
}

func decodeAirtable(item airtableRecord) Record {
	rec := Record{
		ID:               item.ID,
		Number:           fieldString(item.Fields[FieldNumber]),
		CustomerInfo:     fieldString(item.Fields[FieldCustomerInfo]),
		OrderDetails:     fieldString(item.Fields[FieldOrderDetails]),
		DeliveryAddress:  fieldString(item.Fields[FieldDeliveryAddress]),
		KitchenStatus:    fieldString(item.Fields[FieldKitchenStatus]),
		ReceiptReference: fieldString(item.Fields[FieldReceiptReference]),
	}
	if paid, ok := item.Fields[FieldIsPaid].(bool); ok {
		rec.Paid = paid
	}
	switch total := item.Fields[FieldTotalPrice].(type) {
	case float64:
		rec.TotalPrice = int64(total)
	case string:
		rec.TotalPrice, _ = strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	}
	if attachments, ok := item.Fields[FieldPaymentReceipt].([]any); ok && len(attachments) > 0 {
		if first, ok := attachments[0].(map[string]any); ok {
			rec.ReceiptURL = fieldString(first["url"])
		}
	}
	return rec
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
