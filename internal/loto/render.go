package loto

import (
	"fmt"
	"strings"

	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// Renderer - порт отрисовки карты. Возвращает готовое вложение
// к исходящему сообщению.
type Renderer interface {
	Render(cardNumber int, cells []storage.CardCell) (string, error)
}

// TextRenderer рисует карту моноширинным текстом: число в клетке,
// (число) - закрытая клетка, точки - пустая клетка.
type TextRenderer struct{}

func (TextRenderer) Render(cardNumber int, cells []storage.CardCell) (string, error) {
	var grid [cardRows][cardCols]storage.CardCell
	for _, c := range cells {
		if c.RowIndex < 1 || c.RowIndex > cardRows || c.CellIndex < 1 || c.CellIndex > cardCols {
			return "", fmt.Errorf("cell out of range: row %d, cell %d", c.RowIndex, c.CellIndex)
		}
		grid[c.RowIndex-1][c.CellIndex-1] = c
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Карта №%d\n", cardNumber)
	for r := 0; r < cardRows; r++ {
		for col := 0; col < cardCols; col++ {
			cell := grid[r][col]
			switch {
			case cell.BarrelNumber == 0:
				b.WriteString("  ·· ")
			case cell.IsCovered:
				fmt.Fprintf(&b, "(%2d) ", cell.BarrelNumber)
			default:
				fmt.Fprintf(&b, " %2d  ", cell.BarrelNumber)
			}
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
