package telegram

import (
	"log"
	"os"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sashakosti/Go_Bot_Loto/internal/loto"
	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// shutdownTimeout ограничивает ожидание воркеров при остановке
const shutdownTimeout = 30 * time.Second

type Bot struct {
	bot     *tgbotapi.BotAPI
	store   *storage.Storage
	handler *Handler

	// Команды одного чата обрабатываются строго по одной: на чат
	// заводится свой воркер с очередью. Разные чаты идут параллельно.
	workers map[int64]chan *tgbotapi.Message
	wg      sync.WaitGroup
	quit    chan struct{}
	stopped chan struct{}
}

// NewBot - сборка бота. configPath - путь к .env файлу; пустой путь
// означает .env рядом с процессом либо системные переменные.
func NewBot(configPath string) (*Bot, error) {
	var err error
	if configPath != "" {
		err = godotenv.Load(configPath)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Println("Warning: .env file not found, using system variables")
	}

	botToken := os.Getenv("TELEGRAM_TOKEN")
	if botToken == "" {
		log.Fatal("TELEGRAM_TOKEN is not set")
	}

	botAPI, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is not set")
	}

	store, err := storage.New(dsn)
	if err != nil {
		return nil, err
	}

	err = store.Ping()
	if err != nil {
		log.Fatalf("cannot ping DB: %v", err)
	} else {
		log.Println("✅ Connected to Postgres")
	}

	engine := loto.New(store, loto.TextRenderer{})
	handler := NewHandler(botAPI, engine, chatAdmins{api: botAPI}, "@"+botAPI.Self.UserName)

	return &Bot{
		bot:     botAPI,
		store:   store,
		handler: handler,
		workers: make(map[int64]chan *tgbotapi.Message),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start - цикл длинного опроса. Переподключения и повтор после
// просроченного ключа берет на себя клиентская библиотека, поэтому
// цикл не падает на ошибках опроса.
func (b *Bot) Start() {
	defer close(b.stopped)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)

	log.Println("Bot started!")

	for {
		select {
		case <-b.quit:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			// Игра живет только в групповых чатах: личные
			// сообщения боту не команды
			if msg.Chat.IsPrivate() || msg.From == nil {
				continue
			}
			b.dispatch(msg)
		}
	}
}

// dispatch кладет сообщение в очередь воркера своего чата. Вызывается
// только из цикла Start, поэтому карта воркеров не нуждается в замке.
func (b *Bot) dispatch(msg *tgbotapi.Message) {
	ch, ok := b.workers[msg.Chat.ID]
	if !ok {
		ch = make(chan *tgbotapi.Message, 32)
		b.workers[msg.Chat.ID] = ch
		b.wg.Add(1)
		go b.runWorker(ch)
	}
	ch <- msg
}

func (b *Bot) runWorker(ch <-chan *tgbotapi.Message) {
	defer b.wg.Done()
	for msg := range ch {
		b.handler.HandleMessage(msg)
	}
}

// Stop - изящное завершение: прекращаем прием, даем воркерам дообработать
// очереди и ждем их не дольше shutdownTimeout.
func (b *Bot) Stop() {
	b.bot.StopReceivingUpdates()
	close(b.quit)
	// очереди воркеров закрываются только после выхода из Start,
	// иначе цикл мог бы писать в закрытый канал
	<-b.stopped

	for _, ch := range b.workers {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("Bot stopped")
	case <-time.After(shutdownTimeout):
		log.Println("Bot stopped, some workers timed out")
	}

	b.store.Close()
}

// chatAdmins проверяет права через Telegram API
type chatAdmins struct {
	api *tgbotapi.BotAPI
}

func (c chatAdmins) IsChatAdmin(chatID, userID int64) bool {
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		log.Printf("Failed to get chat member %d in %d: %v", userID, chatID, err)
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}
