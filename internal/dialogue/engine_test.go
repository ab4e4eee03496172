package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/memohai/orderbot/internal/catalog"
	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/llm"
	"github.com/memohai/orderbot/internal/logger"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   [][]llm.Message
	systems []string
}

func (m *scriptedModel) Complete(_ context.Context, system string, turns []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]llm.Message(nil), turns...))
	m.systems = append(m.systems, system)
	i := len(m.calls) - 1
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "ok", nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingScheduler) Schedule(customerID, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, customerID+"/"+orderID)
}

func newTestEngine(t *testing.T, model Completer, sched ReminderScheduler) (*Engine, *conversation.Store) {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	prompts, err := NewPrompts(c)
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	store := conversation.NewStore(logger.Nop(), nil)
	e, err := NewEngine(logger.Nop(), store, model, prompts, sched)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e, store
}

const confirmedReply = "Отлично! **Ваш заказ** принят.\n" +
	`{"order_confirmed": true, "customer_name": "Асем", "phone": "+77010000000", "order_items": ["Чизбургер", "Кола"], "total_price": 2300, "delivery_address": "Абая 10"}` +
	"\nОплатите по Kaspi."

func TestRespondAppendsHistory(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{replies: []string{"## Привет! Что *закажете*?"}}
	e, store := newTestEngine(t, model, nil)
	cust := Customer{ID: "telegram:1", Channel: "telegram", ReplyTarget: "1", DisplayName: "Асем"}
	reply, err := e.Respond(context.Background(), cust, "Здравствуйте")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "Привет! Что закажете?" {
		t.Fatalf("unexpected reply %q", reply)
	}
	c, ok := store.Get("telegram:1")
	if !ok {
		t.Fatal("conversation not created")
	}
	if c.Language != LangRussian || c.Phase != conversation.PhaseIdle || c.ReplyTarget != "1" || c.DisplayName != "Асем" {
		t.Fatalf("unexpected conversation: %+v", c)
	}
	if len(c.History) != 2 || c.History[0].Text != "Здравствуйте" || c.History[1].Text != reply {
		t.Fatalf("unexpected history: %+v", c.History)
	}
	if !strings.Contains(model.systems[0], "Чизбургер") {
		t.Fatal("system prompt should embed the menu")
	}
}

func TestRespondModelFailureKeepsState(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{errs: []error{errors.New("timeout")}}
	e, store := newTestEngine(t, model, nil)
	reply, err := e.Respond(context.Background(), Customer{ID: "whapi:7701"}, "Hello there")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != Text(LangEnglish, TextApology) {
		t.Fatalf("expected apology, got %q", reply)
	}
	c, _ := store.Get("whapi:7701")
	if len(c.History) != 0 || c.Phase != conversation.PhaseIdle {
		t.Fatalf("state changed on failure: %+v", c)
	}
	if c.Language != LangEnglish || c.LastInteraction.IsZero() {
		t.Fatalf("language and interaction time should be kept: %+v", c)
	}
}

func TestRespondExtractsOrderAndSchedulesReminder(t *testing.T) {
	t.Parallel()

	refined := strings.Replace(confirmedReply, "Абая 10", "Абая 12", 1)
	model := &scriptedModel{replies: []string{confirmedReply, refined}}
	sched := &recordingScheduler{}
	e, store := newTestEngine(t, model, sched)
	cust := Customer{ID: "telegram:2"}

	reply, err := e.Respond(context.Background(), cust, "Чизбургер и колу на Абая 10")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if strings.Contains(reply, "order_confirmed") || strings.Contains(reply, "**") {
		t.Fatalf("payload or markup leaked: %q", reply)
	}
	if !strings.Contains(reply, "Ваш заказ принят.") || !strings.Contains(reply, "Оплатите по Kaspi.") {
		t.Fatalf("unexpected reply %q", reply)
	}
	c, _ := store.Get("telegram:2")
	if c.Phase != conversation.PhaseAwaitingReceipt || c.PendingOrder == nil {
		t.Fatalf("expected awaiting receipt, got %+v", c)
	}
	firstID := c.PendingOrder.ID
	if c.PendingOrder.TotalPrice != 2300 || len(c.PendingOrder.Items) != 2 {
		t.Fatalf("unexpected order: %+v", c.PendingOrder)
	}

	if _, err := e.Respond(context.Background(), cust, "Адрес Абая 12"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	c, _ = store.Get("telegram:2")
	if c.Phase != conversation.PhaseAwaitingReceipt || c.PendingOrder.DeliveryAddress != "Абая 12" {
		t.Fatalf("refinement not applied: %+v", c.PendingOrder)
	}
	if c.PendingOrder.ID != firstID {
		t.Fatal("refinement should keep the order id")
	}
	if len(sched.calls) != 2 || sched.calls[0] != "telegram:2/"+firstID {
		t.Fatalf("unexpected reminder calls: %v", sched.calls)
	}
}

func TestRespondPayloadOnlyReplyFallsBack(t *testing.T) {
	t.Parallel()

	payload := "```json\n" + `{"order_confirmed": true, "phone": "1", "order_items": ["A"], "total_price": 1, "delivery_address": "B"}` + "\n```"
	model := &scriptedModel{replies: []string{payload}}
	e, _ := newTestEngine(t, model, nil)
	reply, err := e.Respond(context.Background(), Customer{ID: "c"}, "ok")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != Text(LangEnglish, TextOrderReady) {
		t.Fatalf("expected order-ready fallback, got %q", reply)
	}
}

func TestRespondModelInputAlternates(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{}
	e, store := newTestEngine(t, model, nil)
	ctx := context.Background()
	// Seed a history with a run of customer turns left by failed calls.
	if _, err := store.Update(ctx, "c", func(c *conversation.Conversation) error {
		c.Language = LangEnglish
		c.Append(conversation.RoleCustomer, "a")
		c.Append(conversation.RoleAssistant, "b")
		c.Append(conversation.RoleCustomer, "c")
		c.Append(conversation.RoleCustomer, "d")
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for i := 0; i < 15; i++ {
		if _, err := e.Respond(ctx, Customer{ID: "c"}, "more"); err != nil {
			t.Fatalf("respond: %v", err)
		}
	}
	for n, turns := range model.calls {
		if len(turns) > conversation.WindowSize+1 {
			t.Fatalf("call %d: too many turns %d", n, len(turns))
		}
		for i := 1; i < len(turns); i++ {
			if turns[i].Role == turns[i-1].Role {
				t.Fatalf("call %d: consecutive %s turns", n, turns[i].Role)
			}
		}
		if turns[len(turns)-1].Role != llm.RoleUser || turns[len(turns)-1].Content != "more" {
			t.Fatalf("call %d: last turn should be the new message", n)
		}
	}
	c, _ := store.Get("c")
	if len(c.History) != conversation.MaxHistory {
		t.Fatalf("expected capped history, got %d", len(c.History))
	}
}

func TestStartResetsLanguage(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{}
	e, store := newTestEngine(t, model, nil)
	ctx := context.Background()
	if _, err := e.Respond(ctx, Customer{ID: "c"}, "Привет"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	reply, err := e.Start(ctx, Customer{ID: "c", DisplayName: "Dana", LanguageHint: "en-US"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if reply != "Hello, Dana! I'll help you place an order. What would you like?" {
		t.Fatalf("unexpected greeting %q", reply)
	}
	c, _ := store.Get("c")
	if c.Language != LangEnglish || len(c.History) != 2 {
		t.Fatalf("unexpected state: %+v", c)
	}
}
