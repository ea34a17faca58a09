package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sashakosti/Go_Bot_Loto/internal/loto"
	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// MessageSender определяет интерфейс для отправки сообщений.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// GameEngine - движок игровой сессии
type GameEngine interface {
	StartGame(ctx context.Context, chatID, leadID int64, leadName string, variant storage.GameVariant) error
	Join(ctx context.Context, chatID, playerID int64, name string) (*loto.JoinResult, error)
	FillBag(ctx context.Context, chatID, actorID int64) error
	Draw(ctx context.Context, chatID, actorID int64, batchSize int) (*loto.DrawResult, error)
	Stop(ctx context.Context, chatID, actorID int64, isAdmin bool) error
}

// AdminChecker - проверка прав администратора чата
type AdminChecker interface {
	IsChatAdmin(chatID, userID int64) bool
}

type Handler struct {
	Bot     MessageSender
	Engine  GameEngine
	Admins  AdminChecker
	Mention string
}

func NewHandler(bot MessageSender, engine GameEngine, admins AdminChecker, mention string) *Handler {
	return &Handler{
		Bot:     bot,
		Engine:  engine,
		Admins:  admins,
		Mention: mention,
	}
}

// HandleMessage - классификация текста и вызов движка. Нераспознанный
// текст игнорируется: бот живет в общем чате и не отвечает на каждую
// реплику.
func (h *Handler) HandleMessage(msg *tgbotapi.Message) {
	cmd := loto.Classify(msg.Text, h.Mention)
	ctx := context.Background()

	switch cmd.Kind {
	case loto.CmdGreeting:
		sendMessage(h.Bot, tgbotapi.NewMessage(msg.Chat.ID, "Привет!"))
	case loto.CmdStartGame:
		h.handleStartGame(ctx, msg, cmd.Variant)
	case loto.CmdJoin:
		h.handleJoin(ctx, msg)
	case loto.CmdFillBag:
		h.handleFillBag(ctx, msg)
	case loto.CmdDraw:
		h.handleDraw(ctx, msg, cmd.BatchSize)
	case loto.CmdStop:
		h.handleStop(ctx, msg)
	}
}

func (h *Handler) handleStartGame(ctx context.Context, msg *tgbotapi.Message, variant storage.GameVariant) {
	chatID := msg.Chat.ID
	err := h.Engine.StartGame(ctx, chatID, msg.From.ID, msg.From.FirstName, variant)
	if err != nil {
		if errors.Is(err, loto.ErrGameInProgress) {
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID,
				"Игра уже была начата. Чтобы начать новую игру, необходимо завершить текущую."))
			return
		}
		log.Printf("[StartGame] chat %d: %v", chatID, err)
		sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Не удалось начать игру 😅"))
		return
	}
	sendMessage(h.Bot, tgbotapi.NewMessage(chatID,
		"Игра начата! Чтобы участвовать, отправьте \"+\". "+
			"Когда все соберутся, ведущий наполняет мешок командой \"мешок\"."))
}

func (h *Handler) handleJoin(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	result, err := h.Engine.Join(ctx, chatID, msg.From.ID, msg.From.FirstName)
	if err != nil {
		switch {
		case errors.Is(err, loto.ErrNoGame), errors.Is(err, loto.ErrWrongPhase):
			// "+" вне набора игроков - обычная реплика, молчим
		case errors.Is(err, loto.ErrNoFreeCards):
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Свободных карт не осталось 😅"))
		default:
			log.Printf("[Join] chat %d: %v", chatID, err)
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Не удалось выдать карту 😅"))
		}
		return
	}

	var text string
	if result.Rejoined {
		text = fmt.Sprintf("%s уже в игре, карта №%d.", msg.From.FirstName, result.CardNumber)
	} else {
		text = fmt.Sprintf("%s получает карту №%d!", msg.From.FirstName, result.CardNumber)
	}
	reply := tgbotapi.NewMessage(chatID, text+"\n```\n"+result.Attachment+"```")
	reply.ParseMode = tgbotapi.ModeMarkdown
	sendMessage(h.Bot, reply)
}

func (h *Handler) handleFillBag(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	err := h.Engine.FillBag(ctx, chatID, msg.From.ID)
	if err != nil {
		switch {
		case errors.Is(err, loto.ErrNoGame), errors.Is(err, loto.ErrWrongPhase):
		case errors.Is(err, loto.ErrNotLead):
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Наполнить мешок может только ведущий."))
		case errors.Is(err, loto.ErrTooFewPlayers):
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID,
				fmt.Sprintf("Нужно хотя бы %d участника, чтобы начать.", loto.MinPlayers)))
		default:
			log.Printf("[FillBag] chat %d: %v", chatID, err)
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Не удалось наполнить мешок 😅"))
		}
		return
	}
	sendMessage(h.Bot, tgbotapi.NewMessage(chatID,
		"Мешок наполнен, в нем 90 бочонков! Ведущий тянет командой \"ход\"."))
}

func (h *Handler) handleDraw(ctx context.Context, msg *tgbotapi.Message, batchSize int) {
	chatID := msg.Chat.ID
	result, err := h.Engine.Draw(ctx, chatID, msg.From.ID, batchSize)
	if err != nil {
		switch {
		case errors.Is(err, loto.ErrNoGame), errors.Is(err, loto.ErrWrongPhase):
		case errors.Is(err, loto.ErrNotLead):
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Тянуть бочонки может только ведущий."))
		default:
			log.Printf("[Draw] chat %d: %v", chatID, err)
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Не удалось сделать ход 😅"))
		}
		return
	}

	sendMessage(h.Bot, tgbotapi.NewMessage(chatID, drawText(result)))
	if result.Finished {
		sendMessage(h.Bot, tgbotapi.NewMessage(chatID, summaryText(result)))
	}
}

func (h *Handler) handleStop(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	isAdmin := h.Admins.IsChatAdmin(chatID, msg.From.ID)
	err := h.Engine.Stop(ctx, chatID, msg.From.ID, isAdmin)
	if err != nil {
		switch {
		case errors.Is(err, loto.ErrNoGame):
		case errors.Is(err, loto.ErrNotLead):
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID,
				"Остановить игру может только ведущий или администратор чата."))
		default:
			log.Printf("[Stop] chat %d: %v", chatID, err)
			sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Не удалось остановить игру 😅"))
		}
		return
	}
	sendMessage(h.Bot, tgbotapi.NewMessage(chatID, "Игра остановлена."))
}

func drawText(result *loto.DrawResult) string {
	if len(result.Drawn) == 0 {
		return "Мешок пуст, тянуть нечего."
	}
	drawn := make([]string, 0, len(result.Drawn))
	for _, b := range result.Drawn {
		drawn = append(drawn, fmt.Sprint(b))
	}
	word := Pluralize(result.Remaining, [3]string{"бочонок", "бочонка", "бочонков"})
	return fmt.Sprintf("Из мешка достали: %s.\nВ мешке %s %d %s.",
		strings.Join(drawn, ", "), remainsForm(result.Remaining), result.Remaining, word)
}

func remainsForm(count int) string {
	if count%10 == 1 && count%100 != 11 {
		return "остался"
	}
	return "осталось"
}

func summaryText(result *loto.DrawResult) string {
	var b strings.Builder
	b.WriteString("Игра окончена!\n")
	if len(result.Winners) == 0 {
		b.WriteString("Бочонки закончились, победителей нет.\n")
	} else {
		b.WriteString("🎉 " + Pluralize(len(result.Winners), [3]string{"Победитель", "Победителя", "Победители"}) + ": ")
		names := make([]string, 0, len(result.Winners))
		for _, w := range result.Winners {
			names = append(names, w.Name)
		}
		b.WriteString(strings.Join(names, ", ") + "\n")
	}
	b.WriteString("\nСтатистика:\n")
	for i, p := range result.Standings {
		wins := Pluralize(p.TimesWon, [3]string{"победа", "победы", "побед"})
		games := Pluralize(p.TimesPlayed, [3]string{"игра", "игры", "игр"})
		fmt.Fprintf(&b, "%d. %s — %d %s из %d %s\n", i+1, p.Name, p.TimesWon, wins, p.TimesPlayed, games)
	}
	return b.String()
}
