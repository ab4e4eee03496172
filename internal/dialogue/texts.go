package dialogue

import "fmt"

// Key names a fixed customer-facing message.
type Key string

const (
	TextApology         Key = "apology"
	TextWelcome         Key = "welcome"
	TextPlaceOrderFirst Key = "place_order_first"
	TextNoPendingOrder  Key = "no_pending_order"
	TextRecordFailed    Key = "record_failed"
	TextSavingReceipt   Key = "saving_receipt"
	TextReceiptSaved    Key = "receipt_saved"
	TextOrderReady      Key = "order_ready"
	TextReminder        Key = "reminder"
	TextStatusNone      Key = "status_none"
	TextStatusAwaiting  Key = "status_awaiting"
	TextStatusChecking  Key = "status_checking"
	TextStatusPaid      Key = "status_paid"
	TextStatusCooking   Key = "status_cooking"
	TextStatusReady     Key = "status_ready"
	TextStatusFailed    Key = "status_failed"
	TextUnsupported     Key = "unsupported"
)

var texts = map[string]map[Key]string{
	LangRussian: {
		TextApology:         "Извините, ошибка связи. Повторите пожалуйста.",
		TextWelcome:         "Привет%s! Я помогу оформить заказ. Что хотите заказать?",
		TextPlaceOrderFirst: "Сначала оформите заказ, затем пришлите чек.",
		TextNoPendingOrder:  "Заказ для этого чека не найден. Оформите заказ заново.",
		TextRecordFailed:    "Ошибка сохранения. Пришлите чек еще раз чуть позже.",
		TextSavingReceipt:   "Сохраняю чек...",
		TextReceiptSaved:    "Чек получен и сохранен!\nМенеджер проверит оплату в течение 5-10 минут, после подтверждения заказ уйдет на кухню.\nПроверить статус: /status",
		TextOrderReady:      "Заказ принят! Оплатите и пришлите фото или PDF чека.",
		TextReminder:        "Напоминаем: мы ждем чек об оплате, чтобы начать готовить ваш заказ.",
		TextStatusNone:      "У вас пока нет активных заказов.",
		TextStatusAwaiting:  "Ожидаем чек оплаты. Пришлите фото или PDF чека, чтобы мы начали готовить заказ.",
		TextStatusChecking:  "Чек на проверке у менеджера. Обычно проверка занимает 5-10 минут.",
		TextStatusPaid:      "Оплата принята! Заказ в обработке.",
		TextStatusCooking:   "Оплата принята! Ваш заказ готовится на кухне.",
		TextStatusReady:     "Заказ готов! Курьер уже в пути.",
		TextStatusFailed:    "Не удалось проверить статус заказа.",
		TextUnsupported:     "Пришлите текст, фото или PDF чека.",
	},
	LangKazakh: {
		TextApology:         "Кешіріңіз, байланыс қатесі. Қайталап жіберіңізші.",
		TextWelcome:         "Сәлем%s! Мен тапсырысты ресімдеуге көмектесемін. Не тапсырыс бергіңіз келеді?",
		TextPlaceOrderFirst: "Алдымен тапсырысты ресімдеңіз, содан кейін чекті жіберіңіз.",
		TextNoPendingOrder:  "Бұл чекке тапсырыс табылмады. Тапсырысты қайта ресімдеңіз.",
		TextRecordFailed:    "Сақтау қатесі. Чекті сәл кейінірек қайта жіберіңіз.",
		TextSavingReceipt:   "Чекті сақтап жатырмын...",
		TextReceiptSaved:    "Чек алынды және сақталды!\nМенеджер 5-10 минут ішінде төлемді тексереді, растаудан кейін тапсырыс асханаға кетеді.\nСтатусты тексеру: /status",
		TextOrderReady:      "Тапсырыс қабылданды! Төлеп, чектің фотосын немесе PDF жіберіңіз.",
		TextReminder:        "Еске саламыз: тапсырысты дайындауды бастау үшін төлем чегін күтеміз.",
		TextStatusNone:      "Сізде әзірге белсенді тапсырыс жоқ.",
		TextStatusAwaiting:  "Төлем чегін күтеміз. Чектің фотосын немесе PDF жіберіңіз.",
		TextStatusChecking:  "Чек менеджерде тексерілуде. Әдетте 5-10 минут алады.",
		TextStatusPaid:      "Төлем қабылданды! Тапсырыс өңделуде.",
		TextStatusCooking:   "Төлем қабылданды! Тапсырысыңыз асханада дайындалуда.",
		TextStatusReady:     "Тапсырыс дайын! Курьер жолда.",
		TextStatusFailed:    "Тапсырыс статусын тексеру мүмкін болмады.",
		TextUnsupported:     "Мәтін, чектің фотосын немесе PDF жіберіңіз.",
	},
	LangEnglish: {
		TextApology:         "Sorry, connection error. Please repeat.",
		TextWelcome:         "Hello%s! I'll help you place an order. What would you like?",
		TextPlaceOrderFirst: "Please place your order first, then send the receipt.",
		TextNoPendingOrder:  "No order found for this receipt. Please place your order again.",
		TextRecordFailed:    "Save error. Please send the receipt again a bit later.",
		TextSavingReceipt:   "Saving your receipt...",
		TextReceiptSaved:    "Receipt received and saved!\nA manager will check the payment in 5-10 minutes, then the order goes to the kitchen.\nCheck status: /status",
		TextOrderReady:      "Order accepted! Please pay and send a photo or PDF of the receipt.",
		TextReminder:        "Reminder: we are waiting for your payment receipt to start preparing the order.",
		TextStatusNone:      "You have no active orders yet.",
		TextStatusAwaiting:  "Waiting for your payment receipt. Send a photo or PDF so we can start.",
		TextStatusChecking:  "A manager is checking your receipt. This usually takes 5-10 minutes.",
		TextStatusPaid:      "Payment accepted! Your order is being processed.",
		TextStatusCooking:   "Payment accepted! Your order is being prepared.",
		TextStatusReady:     "Your order is ready! The courier is on the way.",
		TextStatusFailed:    "Could not check the order status.",
		TextUnsupported:     "Please send text, or a photo or PDF of the receipt.",
	},
}

// Text returns the message for key in lang, falling back to DefaultLanguage.
func Text(lang string, key Key) string {
	return texts[normalizeLanguage(lang)][key]
}

// Welcome greets the customer, by name when known.
func Welcome(lang, name string) string {
	if name != "" {
		name = ", " + name
	}
	return fmt.Sprintf(Text(lang, TextWelcome), name)
}
