package main

import (
	"context"
	"log"
	"os"

	"github.com/rudransh-shrivastava/peer-chat/internal/client/cmd"
	"github.com/rudransh-shrivastava/peer-chat/internal/config"
)

func main() {
	cfg, err := config.LoadRendezvous()
	if err != nil {
		log.Fatal(err)
		return
	}

	if err := cmd.RunRendezvous(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
