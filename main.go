package main

import (
	"context"
	"flag"
	"os"

	"peerchat/commands"
	"peerchat/config"

	log "github.com/sirupsen/logrus"
)

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

// main is the entry point of the application.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	registerGlobalFlags(initCmd)

	trackerCmd := flag.NewFlagSet("tracker", flag.ExitOnError)
	registerGlobalFlags(trackerCmd)

	chatCmd := flag.NewFlagSet("chat", flag.ExitOnError)
	peerID := chatCmd.String("id", "", "Unique peer identifier")
	listenPort := chatCmd.Int("port", 0, "Override the P2P listen port from the config")
	registerGlobalFlags(chatCmd)

	if len(os.Args) < 2 {
		log.WithField("args", os.Args).Fatal("Expected a subcommand: init, tracker or chat")
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "init":
		initCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		commands.RunInit(ctx, cfg)
	case "tracker":
		trackerCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := loadConfig(*configFile)
		commands.RunTracker(ctx, cfg)
	case "chat":
		chatCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		if *peerID == "" {
			log.Fatal("The -id flag is required for chat")
		}
		cfg := loadConfig(*configFile)
		if *listenPort != 0 {
			cfg.Peer.ListenPort = *listenPort
		}
		commands.RunChat(ctx, cfg, *peerID)
	default:
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}
}

func checkConfig(cfg string) {
	if cfg == "" {
		log.Fatal("Config file not specified")
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.NewConfigFromFile(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
