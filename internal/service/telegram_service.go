package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback actions carried by the inline keyboard on a pending request.
const (
	CallbackConfirm = "confirm"
	CallbackDecline = "decline"
)

// ReservationCard is what a professional sees about one reservation.
type ReservationCard struct {
	Reservation *models.Reservation
	ServiceName string
	Location    *time.Location
}

// TelegramService formats salon messages for professionals and sends them
// through the bot API.
type TelegramService struct {
	bot domain.TelegramSender
}

func NewTelegramService(bot domain.TelegramSender) *TelegramService {
	return &TelegramService{
		bot: bot,
	}
}

func escape(text string) string {
	return tgbotapi.EscapeText(models.ParseModeMarkdown, text)
}

// FormatReservation renders a card as Markdown.
func FormatReservation(card ReservationCard, title string) string {
	r := card.Reservation
	loc := card.Location
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* #%d\n", escape(title), r.ID)
	client := escape(r.ClientName)
	if r.Guest {
		client += " (guest)"
	}
	fmt.Fprintf(&b, "Client: %s\n", client)
	fmt.Fprintf(&b, "Time: %s\n", r.ScheduledAt.In(loc).Format("Mon 02.01.2006 15:04"))
	if card.ServiceName != "" {
		fmt.Fprintf(&b, "Service: %s\n", escape(card.ServiceName))
	}
	fmt.Fprintf(&b, "Email: %s\n", escape(r.ClientEmail))
	if r.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", escape(r.ClientPhone))
	}
	if r.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", escape(r.Notes))
	}
	fmt.Fprintf(&b, "Status: %s", r.Status)
	return b.String()
}

// DecisionKeyboard offers Confirm/Decline for a pending reservation. The
// version is embedded so a stale button fails instead of overwriting.
func DecisionKeyboard(r *models.Reservation) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", decisionData(CallbackConfirm, r)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Decline", decisionData(CallbackDecline, r)),
		),
	)
}

func decisionData(action string, r *models.Reservation) string {
	return fmt.Sprintf("%s:%d:%d", action, r.ID, r.Version)
}

// ParseDecisionCallback reverses DecisionKeyboard's callback data.
func ParseDecisionCallback(data string) (action string, id, version int64, err error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: callback %q", domain.ErrInvalidInput, data)
	}
	action = parts[0]
	if action != CallbackConfirm && action != CallbackDecline {
		return "", 0, 0, fmt.Errorf("%w: callback action %q", domain.ErrInvalidInput, action)
	}
	id, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: reservation id %q", domain.ErrInvalidInput, parts[1])
	}
	version, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: version %q", domain.ErrInvalidInput, parts[2])
	}
	return action, id, version, nil
}

// SendReservationRequest posts a new request with decision buttons.
func (s *TelegramService) SendReservationRequest(chatID int64, card ReservationCard) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, FormatReservation(card, "New booking request"))
	msg.ParseMode = models.ParseModeMarkdown
	if card.Reservation.Status == models.StatusPending {
		msg.ReplyMarkup = DecisionKeyboard(card.Reservation)
	}
	return s.bot.Send(msg)
}

// SendReservationUpdate tells the professional about a change they did not make
// in the chat (client cancel, expiry, web decision).
func (s *TelegramService) SendReservationUpdate(chatID int64, card ReservationCard, event string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, FormatReservation(card, "Reservation "+event))
	msg.ParseMode = models.ParseModeMarkdown
	return s.bot.Send(msg)
}

// MarkDecided rewrites the request message with the new status and drops the buttons.
func (s *TelegramService) MarkDecided(chatID int64, messageID int, card ReservationCard) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, FormatReservation(card, "Booking request"))
	edit.ParseMode = models.ParseModeMarkdown
	_, err := s.bot.Send(edit)
	return err
}

// FormatSchedule renders one day of resolved slots.
func FormatSchedule(date time.Time, slots []models.TimeSlot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Schedule for %s*\n", date.Format("Mon 02.01.2006"))
	if len(slots) == 0 {
		b.WriteString("No slots.")
		return b.String()
	}
	for _, slot := range slots {
		fmt.Fprintf(&b, "%s %s %s\n", slotIcon(slot.Status), slot.Time, slot.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func slotIcon(status models.SlotStatus) string {
	switch status {
	case models.SlotAvailable:
		return "🟢"
	case models.SlotBooked:
		return "📌"
	case models.SlotBusy:
		return "🟡"
	case models.SlotUnavailable:
		return "⛔"
	default:
		return "•"
	}
}

func (s *TelegramService) SendSchedule(chatID int64, date time.Time, slots []models.TimeSlot) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, FormatSchedule(date, slots))
	msg.ParseMode = models.ParseModeMarkdown
	return s.bot.Send(msg)
}

func (s *TelegramService) SendText(chatID int64, text string) (tgbotapi.Message, error) {
	return s.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (s *TelegramService) AnswerCallback(callbackID, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := s.bot.Request(callback)
	return err
}

// Updates starts long polling with the given timeout in seconds.
func (s *TelegramService) Updates(timeout int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return s.bot.GetUpdatesChan(u)
}

func (s *TelegramService) Username() string {
	return s.bot.GetSelf().UserName
}

func (s *TelegramService) Stop() {
	s.bot.StopReceivingUpdates()
}
