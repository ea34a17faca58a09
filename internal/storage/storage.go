package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Конфликты уникальности - это не сбои, а штатные исходы гонок.
// Вызывающий код ветвится по ним как по обычному результату.
var (
	ErrSessionExists   = errors.New("session already exists for this chat")
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyJoined   = errors.New("player already joined this session")
	ErrCardTaken       = errors.New("card number already taken in this session")
	ErrCardAllocated   = errors.New("card cells already allocated")
	ErrBagFilled       = errors.New("bag already filled")
)

type Storage struct {
	db *pgxpool.Pool
}

// New - Создание подключения
func New(dsn string) (*Storage, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return &Storage{db: pool}, nil
}

// Ping - проверка подключения к DB
func (s *Storage) Ping() error {
	return s.db.Ping(context.Background())
}

// Close - закрытие пула соединений
func (s *Storage) Close() {
	s.db.Close()
}

// CreateSession - создаем сессию для чата. Уникальность chat_id
// гарантирует не больше одной игры на чат: проигравший гонку
// получает ErrSessionExists.
func (s *Storage) CreateSession(ctx context.Context, chatID int64, variant GameVariant) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO sessions (chat_id, variant, status, start_date, last_event_date)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (chat_id) DO NOTHING`,
		chatID, variant, StatusAddingPlayers)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionExists
	}
	return nil
}

// GetSession - смотрим сессию по id чата
func (s *Storage) GetSession(ctx context.Context, chatID int64) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx,
		`SELECT chat_id, variant, status, start_date, last_event_date
		 FROM sessions WHERE chat_id = $1`,
		chatID,
	).Scan(&sess.ChatID, &sess.Variant, &sess.Status, &sess.StartDate, &sess.LastEventDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// SetSessionStatus - переводим сессию в новый статус
func (s *Storage) SetSessionStatus(ctx context.Context, chatID int64, status SessionStatus) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sessions SET status = $1, last_event_date = NOW() WHERE chat_id = $2`,
		status, chatID)
	return err
}

// TouchSession - обновляем время последнего события
func (s *Storage) TouchSession(ctx context.Context, chatID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sessions SET last_event_date = NOW() WHERE chat_id = $1`, chatID)
	return err
}

// DeleteSession - удаляем сессию; участники, мешок и клетки
// уходят каскадом (см. schema.sql)
func (s *Storage) DeleteSession(ctx context.Context, chatID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE chat_id = $1`, chatID)
	return err
}

// UpsertPlayer - заводим профиль игрока при первом появлении
func (s *Storage) UpsertPlayer(ctx context.Context, id int64, name string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO players (id, name, times_won, times_led, times_played)
		 VALUES ($1, $2, 0, 0, 0)
		 ON CONFLICT (id) DO NOTHING`,
		id, name)
	return err
}

// GetPlayers - профили игроков по списку id
func (s *Storage) GetPlayers(ctx context.Context, ids []int64) ([]Player, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, times_won, times_led, times_played
		 FROM players WHERE id = ANY($1) ORDER BY times_won DESC, id`,
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Name, &p.TimesWon, &p.TimesLed, &p.TimesPlayed); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// UpdatePlayerStats - начисляем статистику по итогам игры
func (s *Storage) UpdatePlayerStats(ctx context.Context, delta StatsDelta) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if len(delta.Played) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE players SET times_played = times_played + 1 WHERE id = ANY($1)`,
			delta.Played); err != nil {
			return err
		}
	}
	if len(delta.Won) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE players SET times_won = times_won + 1 WHERE id = ANY($1)`,
			delta.Won); err != nil {
			return err
		}
	}
	if len(delta.Led) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE players SET times_led = times_led + 1 WHERE id = ANY($1)`,
			delta.Led); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// AddMember - добавляем участника в сессию. Если ведущий берет карту,
// его роль поднимается до leadplayer; любой другой повтор - ErrAlreadyJoined.
// Конфликт по уникальному индексу номера карты отдаем как ErrCardTaken:
// так проигрывает гонку второй из двух одновременных "+" за последнюю карту.
func (s *Storage) AddMember(ctx context.Context, sessionID, playerID int64, role MemberRole, cardNumber int) error {
	var card any
	if cardNumber > 0 {
		card = cardNumber
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO session_players (session_id, player_id, role, card_number)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, player_id) DO UPDATE
		 SET role = 'leadplayer', card_number = excluded.card_number
		 WHERE session_players.role = 'lead' AND excluded.card_number IS NOT NULL`,
		sessionID, playerID, role, card)
	if err != nil {
		// ON CONFLICT выше разбирает только пару (session_id, player_id),
		// поэтому сюда долетает лишь нарушение индекса номера карты
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCardTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyJoined
	}
	return nil
}

// GetMembers - все участники сессии
func (s *Storage) GetMembers(ctx context.Context, sessionID int64) ([]SessionPlayer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT session_id, player_id, role, COALESCE(card_number, 0)
		 FROM session_players WHERE session_id = $1 ORDER BY player_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []SessionPlayer
	for rows.Next() {
		var m SessionPlayer
		if err := rows.Scan(&m.SessionID, &m.PlayerID, &m.Role, &m.CardNumber); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetLead - ведущий сессии (lead или leadplayer)
func (s *Storage) GetLead(ctx context.Context, sessionID int64) (*SessionPlayer, error) {
	var m SessionPlayer
	err := s.db.QueryRow(ctx,
		`SELECT session_id, player_id, role, COALESCE(card_number, 0)
		 FROM session_players
		 WHERE session_id = $1 AND role IN ('lead', 'leadplayer')`,
		sessionID,
	).Scan(&m.SessionID, &m.PlayerID, &m.Role, &m.CardNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetTakenCardNumbers - занятые номера карт в сессии
func (s *Storage) GetTakenCardNumbers(ctx context.Context, sessionID int64) ([]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT card_number FROM session_players
		 WHERE session_id = $1 AND card_number IS NOT NULL`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		taken = append(taken, n)
	}
	return taken, rows.Err()
}

// AllocateCardCells - материализуем 15 клеток карты игрока одной
// транзакцией. Любой конфликт откатывает всю вставку: карта либо
// появляется целиком, либо уже была (ErrCardAllocated), частичных
// карт не бывает.
func (s *Storage) AllocateCardCells(ctx context.Context, sessionID, playerID int64, cells []CardCell) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range cells {
		tag, err := tx.Exec(ctx,
			`INSERT INTO card_cells (session_id, player_id, row_index, cell_index, barrel_number, is_covered)
			 VALUES ($1, $2, $3, $4, $5, FALSE)
			 ON CONFLICT (session_id, player_id, row_index, cell_index) DO NOTHING`,
			sessionID, playerID, c.RowIndex, c.CellIndex, c.BarrelNumber)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrCardAllocated
		}
	}

	return tx.Commit(ctx)
}

// GetCells - все клетки карт сессии
func (s *Storage) GetCells(ctx context.Context, sessionID int64) ([]CardCell, error) {
	return s.queryCells(ctx,
		`SELECT session_id, player_id, row_index, cell_index, barrel_number, is_covered
		 FROM card_cells WHERE session_id = $1
		 ORDER BY player_id, row_index, cell_index`,
		sessionID)
}

// GetPlayerCells - клетки карты одного игрока
func (s *Storage) GetPlayerCells(ctx context.Context, sessionID, playerID int64) ([]CardCell, error) {
	return s.queryCells(ctx,
		`SELECT session_id, player_id, row_index, cell_index, barrel_number, is_covered
		 FROM card_cells WHERE session_id = $1 AND player_id = $2
		 ORDER BY row_index, cell_index`,
		sessionID, playerID)
}

func (s *Storage) queryCells(ctx context.Context, query string, args ...any) ([]CardCell, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []CardCell
	for rows.Next() {
		var c CardCell
		if err := rows.Scan(&c.SessionID, &c.PlayerID, &c.RowIndex, &c.CellIndex, &c.BarrelNumber, &c.IsCovered); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// FillBag - наполняем мешок сессии. Вставка всех бочонков идет одной
// транзакцией: если хоть один уже лежит в мешке, откатываемся и
// отдаем ErrBagFilled - мешок наполняется ровно один раз.
func (s *Storage) FillBag(ctx context.Context, sessionID int64, barrels []int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO bag_barrels (session_id, barrel_id)
		 SELECT $1, unnest($2::int[])
		 ON CONFLICT (session_id, barrel_id) DO NOTHING`,
		sessionID, barrels)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(barrels)) {
		return ErrBagFilled
	}

	return tx.Commit(ctx)
}

// GetBag - оставшиеся в мешке бочонки
func (s *Storage) GetBag(ctx context.Context, sessionID int64) ([]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT barrel_id FROM bag_barrels WHERE session_id = $1 ORDER BY barrel_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var barrels []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		barrels = append(barrels, n)
	}
	return barrels, rows.Err()
}

// DrawAndCover - достаем бочонки из мешка и закрываем клетки с их
// номерами одной транзакцией: снаружи нельзя увидеть вынутый бочонок
// без закрытой клетки и наоборот. Возвращает реально вынутые бочонки.
func (s *Storage) DrawAndCover(ctx context.Context, sessionID int64, barrels []int) ([]int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`DELETE FROM bag_barrels
		 WHERE session_id = $1 AND barrel_id = ANY($2)
		 RETURNING barrel_id`,
		sessionID, barrels)
	if err != nil {
		return nil, err
	}
	var removed []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		removed = append(removed, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(removed) > 0 {
		// is_covered меняется только FALSE -> TRUE
		if _, err := tx.Exec(ctx,
			`UPDATE card_cells SET is_covered = TRUE
			 WHERE session_id = $1 AND barrel_number = ANY($2) AND is_covered = FALSE`,
			sessionID, removed); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return removed, nil
}
