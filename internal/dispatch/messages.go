package dispatch

import (
	"fmt"
	"html"
	"strings"
	"time"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/notify"
)

// queueTexts are the operator-facing strings of one queue
type queueTexts struct {
	menuTitle    string
	menuButton   string
	profileTitle string
	noWork       string
	workTitle    string
	forbidden    string
	failure      string
	completed    string
	stopped      string
	resume       string
	announced    string
	announceBtn  string
}

var texts = map[domain.QueueKind]queueTexts{
	domain.KindExtradition: {
		menuTitle:    "📦 <b>Упаковка заказов</b>",
		menuButton:   "📦 ЗАКАЗЫ",
		profileTitle: "<b>Выберите профиль пользователя для сборки заказов:</b>",
		noWork:       "<b>Заказы для сборки отсутствуют</b>",
		workTitle:    "📦 <b>Упаковка заказа:</b>",
		forbidden:    "⛔️ Недостаточно прав для упаковки заказа",
		failure:      "%s: Возникла ошибка при упаковке заказа",
		completed:    "<b>Заказ укомплектован:</b>",
		stopped:      "🛑 Процесс сборки <b>заказов</b> остановлен",
		resume:       "📦 Продолжить упаковку",
		announced:    "📦 <b>Поступил заказ на упаковку</b>",
		announceBtn:  "📦 Начать упаковку",
	},
	domain.KindMove: {
		menuTitle:    "🔀 <b>Сборка перемещений</b>",
		menuButton:   "🔀 ПЕРЕМЕЩЕНИЯ",
		profileTitle: "<b>Выберите профиль пользователя для сборки перемещений:</b>",
		noWork:       "<b>Перeмещения для сборки отсутствуют</b>",
		workTitle:    "🔀 <b>Перемещение:</b>",
		forbidden:    "⛔️ Недостаточно прав для выполнения заявки перемещения продукции между складами",
		failure:      "%s: Возникла ошибка при сборке перемещения",
		completed:    "<b>Заявка на перемещение укомплектована:</b>",
		stopped:      "🛑 Процесс сборки <b>перемещений</b> остановлен",
		resume:       "🔀 Продолжить сборку",
		announced:    "🔀 <b>Поступила заявка на перемещение</b>",
		announceBtn:  "🔀 Начать сборку",
	},
}

const (
	startGreeting   = "Вам будет предложено собрать актуальные заявки на <b>%s</b> по одной в порядке поступления."
	requestNotFound = "<b>Заявка не найдена</b>"
	unknownOperator = "⛔️ Аккаунт не привязан к профилю пользователя"
	claimedByOther  = "На сборке пользователем: <b>%s</b>"
	incomingTitle   = "⤵️ <b>Поступила заявка на поступление</b>"
)

// action keys per queue
type queueKeys struct {
	profiles, next, done, cancel string
}

var keys = map[domain.QueueKind]queueKeys{
	domain.KindExtradition: {notify.KeyExtraditionStart, notify.KeyExtraditionNext, notify.KeyExtraditionDone, notify.KeyExtraditionCancel},
	domain.KindMove:        {notify.KeyMoveStart, notify.KeyMoveNext, notify.KeyMoveDone, notify.KeyMoveCancel},
}

func deleteAction() notify.Action {
	return notify.Action{Label: "❌", Key: notify.KeyDeleteMessage}
}

func menuAction() notify.Action {
	return notify.Action{Label: "Меню", Key: notify.KeyMenu}
}

// terminalActions close a flow: delete the message or go back to the menu
func terminalActions() []notify.Action {
	return []notify.Action{deleteAction(), menuAction()}
}

func workActions(kind domain.QueueKind, requestID string) []notify.Action {
	return []notify.Action{
		{Label: "🛑 Отмена", Key: keys[kind].cancel, Payload: requestID},
		{Label: "✅ Укомплектована", Key: keys[kind].done, Payload: requestID},
	}
}

// formatWorkItem renders the request header and its product lines.
// Messages go out with parse_mode=HTML, so every stored value is escaped.
func formatWorkItem(kind domain.QueueKind, item *domain.WorkItem) string {
	var b strings.Builder
	r := item.Request

	b.WriteString(texts[kind].workTitle + "\n\n")
	fmt.Fprintf(&b, "Номер: <b>%s</b>\n", html.EscapeString(r.Number))
	if kind == domain.KindMove {
		fmt.Fprintf(&b, "Склад отгрузки: <b>%s</b>\n", html.EscapeString(r.ProfileName))
		fmt.Fprintf(&b, "Склад назначения: <b>%s</b>\n", html.EscapeString(r.DestinationName))
	} else {
		fmt.Fprintf(&b, "Склад: <b>%s</b>\n", html.EscapeString(r.ProfileName))
		fmt.Fprintf(&b, "Доставка: <b>%s</b>\n", html.EscapeString(r.DeliveryName))
	}

	b.WriteString("\n<b>Продукция:</b>\n")
	for _, line := range item.LineItems {
		b.WriteString("\n" + formatLine(line))
	}
	return b.String()
}

func formatLine(l domain.LineItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(l.ProductName))
	for _, attr := range [][2]string{
		{l.VariationName, l.VariationValue},
		{l.ModificationName, l.ModificationValue},
		{l.OfferName, l.OfferValue},
	} {
		if attr[0] == "" && attr[1] == "" {
			continue
		}
		fmt.Fprintf(&b, " %s: <b>%s</b>", html.EscapeString(attr[0]), html.EscapeString(attr[1]))
	}
	if postfix := l.Postfix(); postfix != "" {
		b.WriteString(" " + html.EscapeString(postfix))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Количество: <b>%d шт.</b>\n", l.Quantity)
	if l.Storage != "" {
		fmt.Fprintf(&b, "Место хранения: <b>%d шт.</b> %s\n", l.StockTotal, html.EscapeString(l.Storage))
	}
	return b.String()
}

func formatCompleted(kind domain.QueueKind, number string, at time.Time) string {
	return fmt.Sprintf("%s\nНомер: <b>%s</b>\nДата: <b>%s</b>",
		texts[kind].completed, html.EscapeString(number), at.Format("02.01.2006 15:04"))
}

func formatAnnouncement(kind domain.QueueKind, number string) string {
	return fmt.Sprintf("%s\nНомер: <b>%s</b>\n", texts[kind].announced, html.EscapeString(number))
}

func formatIncoming(number string) string {
	return fmt.Sprintf("%s\nНомер: <b>%s</b>\n", incomingTitle, html.EscapeString(number))
}

func formatClaimedBy(c *domain.Claimant) string {
	name := c.Username
	if name == "" {
		name = c.ProfileID.String()
	}
	return fmt.Sprintf(claimedByOther, html.EscapeString(name))
}
