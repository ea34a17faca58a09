package loto

import (
	"math/rand"
	"sort"

	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// CardCount - размер каталога карт
const CardCount = 24

const (
	cardRows    = 3
	cardCols    = 9
	rowNumbers  = 5
	cardNumbers = cardRows * rowNumbers
)

// Card - раскладка карты из каталога: 3 ряда по 9 клеток,
// в каждом ряду 5 чисел и 4 пустых клетки. 0 - пустая клетка.
type Card struct {
	Number int
	Rows   [cardRows][cardCols]int
}

// Cells - материализация 15 живых клеток карты для игрока
func (c Card) Cells(sessionID, playerID int64) []storage.CardCell {
	cells := make([]storage.CardCell, 0, cardNumbers)
	for r := 0; r < cardRows; r++ {
		for col := 0; col < cardCols; col++ {
			if c.Rows[r][col] == 0 {
				continue
			}
			cells = append(cells, storage.CardCell{
				SessionID:    sessionID,
				PlayerID:     playerID,
				RowIndex:     r + 1,
				CellIndex:    col + 1,
				BarrelNumber: c.Rows[r][col],
			})
		}
	}
	return cells
}

// Каталог генерируется один раз при старте из фиксированного зерна,
// чтобы раскладки были одинаковыми между перезапусками: игрок,
// переприсоединившийся после рестарта, получает ту же карту.
var catalog = generateCatalog(24101917)

// Catalog - статический каталог карт, только для чтения
func Catalog() []Card {
	return catalog
}

// CardByNumber - карта каталога по номеру 1..CardCount
func CardByNumber(n int) (Card, bool) {
	if n < 1 || n > len(catalog) {
		return Card{}, false
	}
	return catalog[n-1], true
}

func generateCatalog(seed int64) []Card {
	rng := rand.New(rand.NewSource(seed))
	cards := make([]Card, CardCount)
	for i := range cards {
		cards[i] = generateCard(rng)
		cards[i].Number = i + 1
	}
	return cards
}

// generateCard строит карту по правилам размещения: в ряду ровно 5
// чисел, колонка c держит числа своего диапазона (1-9, 10-19, ...,
// 80-90), внутри колонки числа различны и растут сверху вниз.
func generateCard(rng *rand.Rand) Card {
	var card Card

	var filled [cardRows][cardCols]bool
	for r := 0; r < cardRows; r++ {
		for _, col := range rng.Perm(cardCols)[:rowNumbers] {
			filled[r][col] = true
		}
	}

	for col := 0; col < cardCols; col++ {
		var rows []int
		for r := 0; r < cardRows; r++ {
			if filled[r][col] {
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			continue
		}
		numbers := pickColumnNumbers(rng, col, len(rows))
		for i, r := range rows {
			card.Rows[r][col] = numbers[i]
		}
	}

	return card
}

func pickColumnNumbers(rng *rand.Rand, col, count int) []int {
	lo, hi := col*10, col*10+9
	if col == 0 {
		lo = 1
	}
	if col == cardCols-1 {
		hi = 90
	}

	span := hi - lo + 1
	picked := make([]int, 0, count)
	for _, offset := range rng.Perm(span)[:count] {
		picked = append(picked, lo+offset)
	}
	sort.Ints(picked)
	return picked
}
