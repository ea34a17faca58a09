package storage

import (
	"context"
	"errors"
	"testing"
)

// Проверяем семантику конфликтов: репозиторий в памяти обязан вести
// себя так же, как Postgres-реализация с ее ограничениями уникальности.

func newSession(t *testing.T) (*Memory, context.Context) {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateSession(ctx, 1, VariantSimple); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return m, ctx
}

func TestCreateSessionConflict(t *testing.T) {
	m, ctx := newSession(t)
	if err := m.CreateSession(ctx, 1, VariantShort); !errors.Is(err, ErrSessionExists) {
		t.Errorf("ожидалась ErrSessionExists, получено %v", err)
	}
	if err := m.CreateSession(ctx, 2, VariantShort); err != nil {
		t.Errorf("сессия в другом чате: %v", err)
	}
}

func TestAddMemberConflicts(t *testing.T) {
	m, ctx := newSession(t)

	if err := m.AddMember(ctx, 1, 10, RoleLead, 0); err != nil {
		t.Fatalf("AddMember lead: %v", err)
	}
	if err := m.AddMember(ctx, 1, 20, RolePlayer, 7); err != nil {
		t.Fatalf("AddMember player: %v", err)
	}

	t.Run("занятый номер карты", func(t *testing.T) {
		err := m.AddMember(ctx, 1, 30, RolePlayer, 7)
		if !errors.Is(err, ErrCardTaken) {
			t.Errorf("ожидалась ErrCardTaken, получено %v", err)
		}
	})

	t.Run("повторное участие игрока", func(t *testing.T) {
		err := m.AddMember(ctx, 1, 20, RolePlayer, 8)
		if !errors.Is(err, ErrAlreadyJoined) {
			t.Errorf("ожидалась ErrAlreadyJoined, получено %v", err)
		}
	})

	t.Run("ведущий с картой становится leadplayer ровно один раз", func(t *testing.T) {
		if err := m.AddMember(ctx, 1, 10, RolePlayer, 9); err != nil {
			t.Fatalf("повышение роли: %v", err)
		}
		lead, _ := m.GetLead(ctx, 1)
		if lead == nil || lead.Role != RoleLeadPlayer || lead.CardNumber != 9 {
			t.Errorf("ожидался leadplayer с картой 9, получено %+v", lead)
		}

		err := m.AddMember(ctx, 1, 10, RolePlayer, 11)
		if !errors.Is(err, ErrAlreadyJoined) {
			t.Errorf("ожидалась ErrAlreadyJoined, получено %v", err)
		}
	})
}

func TestAllocateCardCellsIdempotent(t *testing.T) {
	m, ctx := newSession(t)
	if err := m.AddMember(ctx, 1, 10, RolePlayer, 3); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	cells := []CardCell{{RowIndex: 1, CellIndex: 1, BarrelNumber: 5}}
	if err := m.AllocateCardCells(ctx, 1, 10, cells); err != nil {
		t.Fatalf("AllocateCardCells: %v", err)
	}
	if err := m.AllocateCardCells(ctx, 1, 10, cells); !errors.Is(err, ErrCardAllocated) {
		t.Errorf("ожидалась ErrCardAllocated, получено %v", err)
	}

	got, _ := m.GetPlayerCells(ctx, 1, 10)
	if len(got) != 1 {
		t.Errorf("клеток %d, ожидалась 1", len(got))
	}
}

func TestFillBagOnce(t *testing.T) {
	m, ctx := newSession(t)

	barrels := make([]int, 90)
	for i := range barrels {
		barrels[i] = i + 1
	}
	if err := m.FillBag(ctx, 1, barrels); err != nil {
		t.Fatalf("FillBag: %v", err)
	}
	if err := m.FillBag(ctx, 1, barrels); !errors.Is(err, ErrBagFilled) {
		t.Errorf("ожидалась ErrBagFilled, получено %v", err)
	}

	bag, _ := m.GetBag(ctx, 1)
	if len(bag) != 90 {
		t.Errorf("в мешке %d бочонков, ожидалось 90", len(bag))
	}
}

func TestDrawAndCover(t *testing.T) {
	m, ctx := newSession(t)
	if err := m.AddMember(ctx, 1, 10, RolePlayer, 3); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	err := m.AllocateCardCells(ctx, 1, 10, []CardCell{
		{RowIndex: 1, CellIndex: 1, BarrelNumber: 5},
		{RowIndex: 1, CellIndex: 2, BarrelNumber: 6},
	})
	if err != nil {
		t.Fatalf("AllocateCardCells: %v", err)
	}
	if err := m.FillBag(ctx, 1, []int{5, 6, 7}); err != nil {
		t.Fatalf("FillBag: %v", err)
	}

	// 8 в мешке нет: вынуться должны только 5 и 7
	removed, err := m.DrawAndCover(ctx, 1, []int{5, 7, 8})
	if err != nil {
		t.Fatalf("DrawAndCover: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("вынуто %d, ожидалось 2", len(removed))
	}

	bag, _ := m.GetBag(ctx, 1)
	if len(bag) != 1 || bag[0] != 6 {
		t.Errorf("в мешке %v, ожидался [6]", bag)
	}

	cells, _ := m.GetPlayerCells(ctx, 1, 10)
	for _, c := range cells {
		if c.BarrelNumber == 5 && !c.IsCovered {
			t.Error("клетка с бочонком 5 должна быть закрыта")
		}
		if c.BarrelNumber == 6 && c.IsCovered {
			t.Error("клетка с бочонком 6 не должна быть закрыта")
		}
	}

	// закрытая клетка не открывается обратно
	if _, err := m.DrawAndCover(ctx, 1, []int{6}); err != nil {
		t.Fatalf("второй DrawAndCover: %v", err)
	}
	cells, _ = m.GetPlayerCells(ctx, 1, 10)
	for _, c := range cells {
		if !c.IsCovered {
			t.Errorf("клетка %d должна остаться закрытой", c.BarrelNumber)
		}
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	m, ctx := newSession(t)
	if err := m.AddMember(ctx, 1, 10, RolePlayer, 3); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := m.AllocateCardCells(ctx, 1, 10, []CardCell{{RowIndex: 1, CellIndex: 1, BarrelNumber: 5}}); err != nil {
		t.Fatalf("AllocateCardCells: %v", err)
	}
	if err := m.FillBag(ctx, 1, []int{1, 2, 3}); err != nil {
		t.Fatalf("FillBag: %v", err)
	}

	if err := m.DeleteSession(ctx, 1); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	if _, err := m.GetSession(ctx, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ожидалась ErrSessionNotFound, получено %v", err)
	}
	if members, _ := m.GetMembers(ctx, 1); len(members) != 0 {
		t.Errorf("участники не удалены: %v", members)
	}
	if bag, _ := m.GetBag(ctx, 1); len(bag) != 0 {
		t.Errorf("мешок не удален: %v", bag)
	}
	if cells, _ := m.GetCells(ctx, 1); len(cells) != 0 {
		t.Errorf("клетки не удалены: %v", cells)
	}
}
