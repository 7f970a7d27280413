package main

import (
	"log"

	"github.com/joho/godotenv"

	"attestbot/bot"
	corebootstrap "attestbot/core/bootstrap"
	corecmd "attestbot/core/cmd"
	coreconfig "attestbot/core/config"
)

func main() {
	// .env is optional, real deployments set env vars directly
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap: func(cfg *coreconfig.Config) (corecmd.App, error) {
			res, err := corebootstrap.Run(corebootstrap.Options{Config: cfg})
			if err != nil {
				return nil, err
			}
			return bot.New(cfg, res.DB)
		},
	})
	if err != nil {
		log.Fatalf("attestbot: %v", err)
	}
}
