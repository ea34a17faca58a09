package loto

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sashakosti/Go_Bot_Loto/internal/storage"
)

// Вид команды из чата
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdGreeting
	CmdStartGame
	CmdJoin
	CmdFillBag
	CmdDraw
	CmdStop
)

// DefaultBatchSize - сколько бочонков тянем за ход, если не сказано иначе
const DefaultBatchSize = 10

// Command - распознанная команда с извлеченными параметрами
type Command struct {
	Kind      CommandKind
	Variant   storage.GameVariant // для CmdStartGame
	BatchSize int                 // для CmdDraw
}

// Упорядоченный список шаблонов. Текст обязан совпасть ровно с одним
// из них, иначе команда не распознана: и ноль, и несколько совпадений
// дают CmdNone.
var commandPatterns = []struct {
	re   *regexp.Regexp
	kind CommandKind
}{
	{regexp.MustCompile(`^привет!?$`), CmdGreeting},
	{regexp.MustCompile(`^начать лото(?: ([12]))?!?$`), CmdStartGame},
	{regexp.MustCompile(`^\+$`), CmdJoin},
	{regexp.MustCompile(`^(?:наполнить )?мешок!?$`), CmdFillBag},
	{regexp.MustCompile(`^(?:ход|тянуть)(?: ([0-9]{1,2}))?!?$`), CmdDraw},
	{regexp.MustCompile(`^стоп лото!?$`), CmdStop},
}

// Classify - разбор текста сообщения в команду. Регистр не важен,
// упоминание бота в начале и хвостовые пробелы отбрасываются.
func Classify(text, botMention string) Command {
	body := strings.ToLower(strings.TrimSpace(text))
	if botMention != "" {
		mention := strings.ToLower(botMention)
		if rest, ok := strings.CutPrefix(body, mention); ok {
			body = strings.TrimSpace(strings.TrimPrefix(rest, ","))
		}
	}

	matched := -1
	var params []string
	for i, p := range commandPatterns {
		groups := p.re.FindStringSubmatch(body)
		if groups == nil {
			continue
		}
		if matched >= 0 {
			return Command{Kind: CmdNone}
		}
		matched = i
		params = groups[1:]
	}
	if matched < 0 {
		return Command{Kind: CmdNone}
	}

	cmd := Command{Kind: commandPatterns[matched].kind}
	switch cmd.Kind {
	case CmdStartGame:
		cmd.Variant = storage.VariantSimple
		if len(params) > 0 && params[0] == "2" {
			cmd.Variant = storage.VariantShort
		}
	case CmdDraw:
		cmd.BatchSize = DefaultBatchSize
		if len(params) > 0 && params[0] != "" {
			if n, err := strconv.Atoi(params[0]); err == nil {
				cmd.BatchSize = min(max(n, 1), BagSize)
			}
		}
	}
	return cmd
}
