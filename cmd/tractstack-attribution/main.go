package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/startup"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/security"
	"github.com/AtRiskMedia/tractstack-attribution/pkg/config"
)

const usage = `usage:
  tractstack-attribution                        run the attribution service
  tractstack-attribution secret                 print a new ATTRIBUTION_JWT_SECRET
  tractstack-attribution token <subject> [ttl]  print a reporting token`

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1:]); err != nil {
			log.Fatalf("%v\n%s", err, usage)
		}
		return
	}

	if err := startup.Initialize(); err != nil {
		log.Fatalf("Application startup failed: %v", err)
	}

	log.Println("Application has shut down gracefully.")
}

func runCommand(args []string) error {
	switch args[0] {
	case "secret":
		key, err := security.GenerateSecureKey(64)
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	case "token":
		if len(args) < 2 {
			return fmt.Errorf("token requires a subject")
		}
		if config.ReportingJWTSecret == "" {
			return fmt.Errorf("ATTRIBUTION_JWT_SECRET is not set")
		}
		ttl := 24 * time.Hour
		if len(args) > 2 {
			parsed, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("invalid ttl %q: %w", args[2], err)
			}
			ttl = parsed
		}
		token, err := security.GenerateReportingToken(args[1], config.ReportingJWTSecret, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}
