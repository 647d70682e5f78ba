package commands

import (
	"context"
	"peerchat/config"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// RunInit writes a config file with default settings for later editing.
func RunInit(ctx context.Context, cfg *config.Config) {
	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	log.Info("Wrote default configuration")
}
