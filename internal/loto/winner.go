package loto

import (
	"sort"

	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// FindWinners - проверка победных условий после хода. В полном
// варианте побеждает игрок, у которого закрыты все 15 клеток, в
// коротком - любой полностью закрытый ряд из 5 чисел. За один ход
// может выиграть ноль, один или сразу несколько игроков.
func FindWinners(cells []storage.CardCell, variant storage.GameVariant) []int64 {
	byPlayer := make(map[int64][]storage.CardCell)
	for _, c := range cells {
		byPlayer[c.PlayerID] = append(byPlayer[c.PlayerID], c)
	}

	var winners []int64
	for playerID, playerCells := range byPlayer {
		if isWinner(playerCells, variant) {
			winners = append(winners, playerID)
		}
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i] < winners[j] })
	return winners
}

func isWinner(cells []storage.CardCell, variant storage.GameVariant) bool {
	switch variant {
	case storage.VariantShort:
		total := make(map[int]int)
		covered := make(map[int]int)
		for _, c := range cells {
			total[c.RowIndex]++
			if c.IsCovered {
				covered[c.RowIndex]++
			}
		}
		for row, n := range total {
			if n == rowNumbers && covered[row] == n {
				return true
			}
		}
		return false
	default:
		if len(cells) != cardNumbers {
			return false
		}
		for _, c := range cells {
			if !c.IsCovered {
				return false
			}
		}
		return true
	}
}
