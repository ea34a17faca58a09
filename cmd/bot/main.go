package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sashakosti/Go_Bot_Loto/internal/telegram"
)

func main() {
	var configPath string
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	bot, err := telegram.NewBot(configPath)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	go bot.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	bot.Stop()
}
