package config

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to the given path.
func RunWizard(path string) (*Config, error) {
	cfg := DefaultConfig()

	fmt.Println("Let's configure the collection server.")
	fmt.Println()

	portPrompt := promptui.Prompt{
		Label:   "Listen port",
		Default: strconv.Itoa(cfg.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port selection: %w", err)
	}
	cfg.Port, _ = strconv.Atoi(portStr)

	dataPrompt := promptui.Prompt{
		Label:   "Data directory",
		Default: cfg.DataDir,
	}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}

	windowPrompt := promptui.Select{
		Label: "Session window (minutes)",
		Items: []string{"15", "30", "60", "120"},
	}
	_, windowStr, err := windowPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("session window: %w", err)
	}
	cfg.SessionWindowMinutes, _ = strconv.Atoi(windowStr)

	secretPrompt := promptui.Prompt{
		Label:   "Beacon signing secret (empty generates one)",
		Default: "",
		Mask:    '*',
	}
	secret, err := secretPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("beacon secret: %w", err)
	}
	if secret == "" {
		secret = uuid.New().String()
		fmt.Println("Generated beacon secret:", secret)
	}
	cfg.BeaconSecret = secret

	cityPrompt := promptui.Prompt{
		Label:   "GeoLite2 City database path (empty to skip)",
		Default: "",
	}
	if cfg.GeoIP.CityDB, err = cityPrompt.Run(); err != nil {
		return nil, fmt.Errorf("city database: %w", err)
	}

	asnPrompt := promptui.Prompt{
		Label:   "GeoLite2 ASN database path (empty to skip)",
		Default: "",
	}
	if cfg.GeoIP.ASNDB, err = asnPrompt.Run(); err != nil {
		return nil, fmt.Errorf("ASN database: %w", err)
	}

	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	fmt.Printf("\nConfiguration saved to %s\n", path)

	return cfg, nil
}
