package storage

import "time"

// Статус игровой сессии
type SessionStatus string

const (
	StatusAddingPlayers SessionStatus = "adding_players"
	StatusFillingBag    SessionStatus = "filling_bag"
	StatusHandlingMoves SessionStatus = "handling_moves"
	StatusSummingUp     SessionStatus = "summing_up"
)

// Вариант игры: полная (все 15 клеток) или короткая (любой ряд)
type GameVariant string

const (
	VariantSimple GameVariant = "simple"
	VariantShort  GameVariant = "short"
)

// Роль участника сессии. Ведущий без карты - lead,
// ведущий, взявший карту - leadplayer.
type MemberRole string

const (
	RoleLead       MemberRole = "lead"
	RolePlayer     MemberRole = "player"
	RoleLeadPlayer MemberRole = "leadplayer"
)

// Игровая сессия. В одном чате идет не больше одной игры,
// поэтому идентификатором сессии служит id чата.
type Session struct {
	ChatID        int64
	Variant       GameVariant
	Status        SessionStatus
	StartDate     time.Time
	LastEventDate time.Time
}

// Игрок - глобальный профиль, живет между играми
type Player struct {
	ID          int64
	Name        string
	TimesWon    int
	TimesLed    int
	TimesPlayed int
}

// Участие игрока в сессии. CardNumber = 0 означает, что карты нет.
type SessionPlayer struct {
	SessionID  int64
	PlayerID   int64
	Role       MemberRole
	CardNumber int
}

// Клетка карты игрока. Хранятся только 15 живых клеток (с числами),
// пустые клетки восстанавливаются из каталога при отрисовке.
type CardCell struct {
	SessionID    int64
	PlayerID     int64
	RowIndex     int // 1..3
	CellIndex    int // 1..9
	BarrelNumber int
	IsCovered    bool
}

// Дельта статистики по итогам игры
type StatsDelta struct {
	Played []int64
	Won    []int64
	Led    []int64
}
