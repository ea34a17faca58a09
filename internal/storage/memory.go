package storage

import (
	"context"
	"sync"
	"time"
)

// Memory - репозиторий в памяти с той же семантикой конфликтов, что и
// у Postgres-реализации. Используется в тестах движка, в том числе в
// сценариях с гонками.
type Memory struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	players  map[int64]*Player
	members  map[int64]map[int64]*SessionPlayer
	bags     map[int64]map[int]struct{}
	cells    map[int64]map[int64][]*CardCell
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[int64]*Session),
		players:  make(map[int64]*Player),
		members:  make(map[int64]map[int64]*SessionPlayer),
		bags:     make(map[int64]map[int]struct{}),
		cells:    make(map[int64]map[int64][]*CardCell),
	}
}

func (m *Memory) CreateSession(_ context.Context, chatID int64, variant GameVariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[chatID]; ok {
		return ErrSessionExists
	}
	now := time.Now()
	m.sessions[chatID] = &Session{
		ChatID: chatID, Variant: variant, Status: StatusAddingPlayers,
		StartDate: now, LastEventDate: now,
	}
	m.members[chatID] = make(map[int64]*SessionPlayer)
	m.bags[chatID] = make(map[int]struct{})
	m.cells[chatID] = make(map[int64][]*CardCell)
	return nil
}

func (m *Memory) GetSession(_ context.Context, chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[chatID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *Memory) SetSessionStatus(_ context.Context, chatID int64, status SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		sess.Status = status
		sess.LastEventDate = time.Now()
	}
	return nil
}

func (m *Memory) TouchSession(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		sess.LastEventDate = time.Now()
	}
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	delete(m.members, chatID)
	delete(m.bags, chatID)
	delete(m.cells, chatID)
	return nil
}

func (m *Memory) UpsertPlayer(_ context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[id]; !ok {
		m.players[id] = &Player{ID: id, Name: name}
	}
	return nil
}

func (m *Memory) GetPlayers(_ context.Context, ids []int64) ([]Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var players []Player
	for _, id := range ids {
		if p, ok := m.players[id]; ok {
			players = append(players, *p)
		}
	}
	return players, nil
}

func (m *Memory) UpdatePlayerStats(_ context.Context, delta StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range delta.Played {
		if p, ok := m.players[id]; ok {
			p.TimesPlayed++
		}
	}
	for _, id := range delta.Won {
		if p, ok := m.players[id]; ok {
			p.TimesWon++
		}
	}
	for _, id := range delta.Led {
		if p, ok := m.players[id]; ok {
			p.TimesLed++
		}
	}
	return nil
}

func (m *Memory) AddMember(_ context.Context, sessionID, playerID int64, role MemberRole, cardNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.members[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	if cardNumber > 0 {
		for _, sp := range members {
			if sp.CardNumber == cardNumber && sp.PlayerID != playerID {
				return ErrCardTaken
			}
		}
	}

	if existing, ok := members[playerID]; ok {
		if existing.Role == RoleLead && cardNumber > 0 {
			existing.Role = RoleLeadPlayer
			existing.CardNumber = cardNumber
			return nil
		}
		return ErrAlreadyJoined
	}

	members[playerID] = &SessionPlayer{
		SessionID: sessionID, PlayerID: playerID, Role: role, CardNumber: cardNumber,
	}
	return nil
}

func (m *Memory) GetMembers(_ context.Context, sessionID int64) ([]SessionPlayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []SessionPlayer
	for _, sp := range m.members[sessionID] {
		members = append(members, *sp)
	}
	return members, nil
}

func (m *Memory) GetLead(_ context.Context, sessionID int64) (*SessionPlayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sp := range m.members[sessionID] {
		if sp.Role == RoleLead || sp.Role == RoleLeadPlayer {
			copied := *sp
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetTakenCardNumbers(_ context.Context, sessionID int64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var taken []int
	for _, sp := range m.members[sessionID] {
		if sp.CardNumber > 0 {
			taken = append(taken, sp.CardNumber)
		}
	}
	return taken, nil
}

func (m *Memory) AllocateCardCells(_ context.Context, sessionID, playerID int64, cells []CardCell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPlayer, ok := m.cells[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if len(byPlayer[playerID]) > 0 {
		return ErrCardAllocated
	}
	stored := make([]*CardCell, 0, len(cells))
	for _, c := range cells {
		copied := c
		copied.SessionID = sessionID
		copied.PlayerID = playerID
		stored = append(stored, &copied)
	}
	byPlayer[playerID] = stored
	return nil
}

func (m *Memory) GetCells(_ context.Context, sessionID int64) ([]CardCell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cells []CardCell
	for _, playerCells := range m.cells[sessionID] {
		for _, c := range playerCells {
			cells = append(cells, *c)
		}
	}
	return cells, nil
}

func (m *Memory) GetPlayerCells(_ context.Context, sessionID, playerID int64) ([]CardCell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cells []CardCell
	for _, c := range m.cells[sessionID][playerID] {
		cells = append(cells, *c)
	}
	return cells, nil
}

func (m *Memory) FillBag(_ context.Context, sessionID int64, barrels []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bag, ok := m.bags[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	for _, b := range barrels {
		if _, dup := bag[b]; dup {
			return ErrBagFilled
		}
	}
	for _, b := range barrels {
		bag[b] = struct{}{}
	}
	return nil
}

func (m *Memory) GetBag(_ context.Context, sessionID int64) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var barrels []int
	for b := range m.bags[sessionID] {
		barrels = append(barrels, b)
	}
	return barrels, nil
}

func (m *Memory) DrawAndCover(_ context.Context, sessionID int64, barrels []int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bag := m.bags[sessionID]
	var removed []int
	for _, b := range barrels {
		if _, ok := bag[b]; ok {
			delete(bag, b)
			removed = append(removed, b)
		}
	}
	drawn := make(map[int]struct{}, len(removed))
	for _, b := range removed {
		drawn[b] = struct{}{}
	}
	for _, playerCells := range m.cells[sessionID] {
		for _, c := range playerCells {
			if _, hit := drawn[c.BarrelNumber]; hit {
				c.IsCovered = true
			}
		}
	}
	return removed, nil
}
