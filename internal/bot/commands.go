package bot

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/gifpick-bot/internal/messages"
)

// Auxiliary commands. The search command itself is configured (bot.command).
const (
	CommandStart = "/start"
	CommandHelp  = "/help"
)

// menuCommands lists the commands shown in the Telegram client menu.
func menuCommands(texts *messages.Catalog, command string) []telebot.Command {
	return []telebot.Command{
		{Text: strings.TrimPrefix(command, "/"), Description: texts.T("bot.menu_search")},
		{Text: strings.TrimPrefix(CommandHelp, "/"), Description: texts.T("bot.menu_help")},
	}
}

// commandWord extracts "/gif" from "/gif@my_bot funny cats".
func commandWord(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	if idx := strings.IndexAny(text, " \t\n"); idx != -1 {
		text = text[:idx]
	}
	if idx := strings.IndexByte(text, '@'); idx != -1 {
		text = text[:idx]
	}

	return strings.ToLower(text)
}
