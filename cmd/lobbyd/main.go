package main

import (
	"github.com/rs/zerolog/log"

	lobby "pkg.world.dev/lobby"
)

func main() {
	engine, err := lobby.NewEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build engine")
	}
	if err := engine.Start(); err != nil {
		log.Fatal().Err(err).Msg("engine stopped")
	}
}
