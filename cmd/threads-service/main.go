package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/villetakanen/pelilauta-17-sub000/threadservice"
)

func main() {
	if err := threadservice.Run(); err != nil {
		log.Error().Err(err).Msg("threads-service exited with error")
		os.Exit(1)
	}
}
