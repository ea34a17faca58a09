package loto

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// BagSize - количество бочонков в мешке
const BagSize = 90

// MinPlayers - минимум участников, чтобы наполнить мешок и начать ходы
const MinPlayers = 2

// Нарушение охранного условия перехода. Не фатально: обработчик
// либо молчит, либо отправляет одно сообщение с отказом.
var (
	ErrGameInProgress = errors.New("game already in progress")
	ErrNoGame         = errors.New("no game in this chat")
	ErrWrongPhase     = errors.New("command not allowed in current phase")
	ErrNotLead        = errors.New("actor is not the lead")
	ErrNoFreeCards    = errors.New("no free cards left")
	ErrTooFewPlayers  = errors.New("not enough players")
)

// Repository - порт хранилища. Конфликты уникальности приходят
// сентинельными ошибками пакета storage, движок ветвится по ним как
// по обычным исходам.
type Repository interface {
	CreateSession(ctx context.Context, chatID int64, variant storage.GameVariant) error
	GetSession(ctx context.Context, chatID int64) (*storage.Session, error)
	SetSessionStatus(ctx context.Context, chatID int64, status storage.SessionStatus) error
	TouchSession(ctx context.Context, chatID int64) error
	DeleteSession(ctx context.Context, chatID int64) error

	UpsertPlayer(ctx context.Context, id int64, name string) error
	GetPlayers(ctx context.Context, ids []int64) ([]storage.Player, error)
	UpdatePlayerStats(ctx context.Context, delta storage.StatsDelta) error

	AddMember(ctx context.Context, sessionID, playerID int64, role storage.MemberRole, cardNumber int) error
	GetMembers(ctx context.Context, sessionID int64) ([]storage.SessionPlayer, error)
	GetLead(ctx context.Context, sessionID int64) (*storage.SessionPlayer, error)
	GetTakenCardNumbers(ctx context.Context, sessionID int64) ([]int, error)

	AllocateCardCells(ctx context.Context, sessionID, playerID int64, cells []storage.CardCell) error
	GetCells(ctx context.Context, sessionID int64) ([]storage.CardCell, error)
	GetPlayerCells(ctx context.Context, sessionID, playerID int64) ([]storage.CardCell, error)

	FillBag(ctx context.Context, sessionID int64, barrels []int) error
	GetBag(ctx context.Context, sessionID int64) ([]int, error)
	DrawAndCover(ctx context.Context, sessionID int64, barrels []int) ([]int, error)
}

// GameService - машина состояний игровой сессии. Все переходы идут
// через вставки с ограничениями уникальности в репозитории, поэтому
// одновременные команды в одном чате разрешаются в БД, а не замками.
type GameService struct {
	repo     Repository
	renderer Renderer
}

func New(repo Repository, renderer Renderer) *GameService {
	return &GameService{
		repo:     repo,
		renderer: renderer,
	}
}

// JoinResult - итог присоединения игрока
type JoinResult struct {
	CardNumber int
	Attachment string
	Rejoined   bool
}

// DrawResult - итог хода ведущего
type DrawResult struct {
	Drawn     []int
	Remaining int
	Finished  bool
	Winners   []storage.Player
	Standings []storage.Player
}

// StartGame - "начать лото [1|2]". Создает сессию, если в чате еще
// не играют, и записывает автора ведущим.
func (g *GameService) StartGame(ctx context.Context, chatID, leadID int64, leadName string, variant storage.GameVariant) error {
	if err := g.repo.CreateSession(ctx, chatID, variant); err != nil {
		if errors.Is(err, storage.ErrSessionExists) {
			return ErrGameInProgress
		}
		return fmt.Errorf("create session: %w", err)
	}

	if err := g.repo.UpsertPlayer(ctx, leadID, leadName); err != nil {
		g.abortStart(ctx, chatID)
		return fmt.Errorf("upsert lead profile: %w", err)
	}
	if err := g.repo.AddMember(ctx, chatID, leadID, storage.RoleLead, 0); err != nil {
		g.abortStart(ctx, chatID)
		return fmt.Errorf("add lead: %w", err)
	}
	return nil
}

// abortStart убирает сессию, оставшуюся без ведущего после ошибки
// на старте: иначе чат заперт до вмешательства администратора.
func (g *GameService) abortStart(ctx context.Context, chatID int64) {
	if err := g.repo.DeleteSession(ctx, chatID); err != nil {
		log.Printf("[loto] failed to clean up session %d: %v", chatID, err)
	}
}

// Join - "+". Выдает игроку случайную свободную карту и материализует
// ее клетки. Повторный "+" того же игрока - идемпотентный no-op с его
// прежней картой.
func (g *GameService) Join(ctx context.Context, chatID, playerID int64, name string) (*JoinResult, error) {
	sess, err := g.repo.GetSession(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNoGame
		}
		return nil, err
	}
	if sess.Status != storage.StatusAddingPlayers {
		return nil, ErrWrongPhase
	}

	if err := g.repo.UpsertPlayer(ctx, playerID, name); err != nil {
		return nil, fmt.Errorf("upsert player profile: %w", err)
	}

	result := &JoinResult{}
	for {
		cardNumber, err := g.pickFreeCard(ctx, chatID)
		if err != nil {
			return nil, err
		}

		err = g.repo.AddMember(ctx, chatID, playerID, storage.RolePlayer, cardNumber)
		if errors.Is(err, storage.ErrCardTaken) {
			// номер увели между выбором и вставкой, пробуем другой
			continue
		}
		if errors.Is(err, storage.ErrAlreadyJoined) {
			existing, err := g.memberCard(ctx, chatID, playerID)
			if err != nil {
				return nil, err
			}
			result.CardNumber = existing
			result.Rejoined = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("add member: %w", err)
		}
		result.CardNumber = cardNumber
		break
	}

	card, ok := CardByNumber(result.CardNumber)
	if !ok {
		return nil, fmt.Errorf("card %d is not in the catalog", result.CardNumber)
	}
	err = g.repo.AllocateCardCells(ctx, chatID, playerID, card.Cells(chatID, playerID))
	if err != nil && !errors.Is(err, storage.ErrCardAllocated) {
		return nil, fmt.Errorf("allocate card cells: %w", err)
	}

	cells, err := g.repo.GetPlayerCells(ctx, chatID, playerID)
	if err != nil {
		return nil, err
	}
	attachment, err := g.renderer.Render(result.CardNumber, cells)
	if err != nil {
		return nil, fmt.Errorf("render card: %w", err)
	}
	result.Attachment = attachment

	if err := g.repo.TouchSession(ctx, chatID); err != nil {
		log.Printf("[loto] failed to touch session %d: %v", chatID, err)
	}
	return result, nil
}

// FillBag - "наполнить мешок". Доступно ведущему при двух и более
// участниках; наполняет мешок и открывает фазу ходов. Повторное
// наполнение - безвредный no-op без частичной засыпки. Статус
// filling_bag тоже принимается: если засыпка сорвалась на ошибке
// хранилища, повторная команда доводит ее до конца, а не упирается
// в отказ по фазе.
func (g *GameService) FillBag(ctx context.Context, chatID, actorID int64) error {
	sess, err := g.repo.GetSession(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return ErrNoGame
		}
		return err
	}
	if sess.Status != storage.StatusAddingPlayers && sess.Status != storage.StatusFillingBag {
		return ErrWrongPhase
	}
	if err := g.requireLead(ctx, chatID, actorID); err != nil {
		return err
	}

	members, err := g.repo.GetMembers(ctx, chatID)
	if err != nil {
		return err
	}
	if len(members) < MinPlayers {
		return ErrTooFewPlayers
	}

	if err := g.repo.SetSessionStatus(ctx, chatID, storage.StatusFillingBag); err != nil {
		return err
	}

	barrels := make([]int, BagSize)
	for i := range barrels {
		barrels[i] = i + 1
	}
	err = g.repo.FillBag(ctx, chatID, barrels)
	if err != nil && !errors.Is(err, storage.ErrBagFilled) {
		return fmt.Errorf("fill bag: %w", err)
	}

	return g.repo.SetSessionStatus(ctx, chatID, storage.StatusHandlingMoves)
}

// Draw - "ход [n]". Достает из мешка min(n, остаток) случайных
// бочонков, закрывает клетки и проверяет победные условия. Игра
// заканчивается при победе или когда мешок опустел.
func (g *GameService) Draw(ctx context.Context, chatID, actorID int64, batchSize int) (*DrawResult, error) {
	sess, err := g.repo.GetSession(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNoGame
		}
		return nil, err
	}
	if sess.Status != storage.StatusHandlingMoves {
		return nil, ErrWrongPhase
	}
	if err := g.requireLead(ctx, chatID, actorID); err != nil {
		return nil, err
	}

	bag, err := g.repo.GetBag(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var picked []int
	if n := min(batchSize, len(bag)); n > 0 {
		for _, idx := range rand.Perm(len(bag))[:n] {
			picked = append(picked, bag[idx])
		}
	}

	drawn, err := g.repo.DrawAndCover(ctx, chatID, picked)
	if err != nil {
		return nil, fmt.Errorf("draw and cover: %w", err)
	}

	result := &DrawResult{
		Drawn:     drawn,
		Remaining: len(bag) - len(drawn),
	}

	cells, err := g.repo.GetCells(ctx, chatID)
	if err != nil {
		return nil, err
	}
	winnerIDs := FindWinners(cells, sess.Variant)

	if len(winnerIDs) == 0 && result.Remaining > 0 {
		if err := g.repo.TouchSession(ctx, chatID); err != nil {
			log.Printf("[loto] failed to touch session %d: %v", chatID, err)
		}
		return result, nil
	}

	if err := g.finishSession(ctx, chatID, winnerIDs, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Stop - "стоп лото". Останавливает игру досрочно; разрешено ведущему
// и администраторам чата.
func (g *GameService) Stop(ctx context.Context, chatID, actorID int64, isAdmin bool) error {
	if _, err := g.repo.GetSession(ctx, chatID); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return ErrNoGame
		}
		return err
	}

	if !isAdmin {
		if err := g.requireLead(ctx, chatID, actorID); err != nil {
			return err
		}
	}
	return g.repo.DeleteSession(ctx, chatID)
}

// finishSession - подведение итогов: статистика, таблица участников,
// удаление сессии со всеми зависимыми строками.
func (g *GameService) finishSession(ctx context.Context, chatID int64, winnerIDs []int64, result *DrawResult) error {
	if err := g.repo.SetSessionStatus(ctx, chatID, storage.StatusSummingUp); err != nil {
		return err
	}

	members, err := g.repo.GetMembers(ctx, chatID)
	if err != nil {
		return err
	}

	isWinner := make(map[int64]bool, len(winnerIDs))
	for _, id := range winnerIDs {
		isWinner[id] = true
	}

	var delta storage.StatsDelta
	memberIDs := make([]int64, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.PlayerID)
		delta.Played = append(delta.Played, m.PlayerID)
		if isWinner[m.PlayerID] {
			delta.Won = append(delta.Won, m.PlayerID)
		}
		if m.Role == storage.RoleLead || m.Role == storage.RoleLeadPlayer {
			delta.Led = append(delta.Led, m.PlayerID)
		}
	}
	if err := g.repo.UpdatePlayerStats(ctx, delta); err != nil {
		return fmt.Errorf("update stats: %w", err)
	}

	if len(winnerIDs) > 0 {
		if result.Winners, err = g.repo.GetPlayers(ctx, winnerIDs); err != nil {
			return err
		}
	}
	if result.Standings, err = g.repo.GetPlayers(ctx, memberIDs); err != nil {
		return err
	}
	result.Finished = true

	return g.repo.DeleteSession(ctx, chatID)
}

// pickFreeCard - случайный свободный номер карты каталога
func (g *GameService) pickFreeCard(ctx context.Context, chatID int64) (int, error) {
	taken, err := g.repo.GetTakenCardNumbers(ctx, chatID)
	if err != nil {
		return 0, err
	}
	takenSet := make(map[int]bool, len(taken))
	for _, n := range taken {
		takenSet[n] = true
	}

	var free []int
	for n := 1; n <= CardCount; n++ {
		if !takenSet[n] {
			free = append(free, n)
		}
	}
	if len(free) == 0 {
		return 0, ErrNoFreeCards
	}
	return free[rand.Intn(len(free))], nil
}

func (g *GameService) memberCard(ctx context.Context, chatID, playerID int64) (int, error) {
	members, err := g.repo.GetMembers(ctx, chatID)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		if m.PlayerID == playerID && m.CardNumber > 0 {
			return m.CardNumber, nil
		}
	}
	return 0, fmt.Errorf("player %d has no card in session %d", playerID, chatID)
}

func (g *GameService) requireLead(ctx context.Context, chatID, actorID int64) error {
	lead, err := g.repo.GetLead(ctx, chatID)
	if err != nil {
		return err
	}
	if lead == nil || lead.PlayerID != actorID {
		return ErrNotLead
	}
	return nil
}
