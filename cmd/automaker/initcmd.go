package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ahmedshikashaker/automaker/pkg/config"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-dir]",
		Short: "Initialize a project for automaker",
		Long:  "Writes .automaker/config.yaml with defaults and optionally stores encrypted provider API keys.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			projectDir := "."
			if len(args) > 0 {
				projectDir = args[0]
			}
			return runInit(projectDir)
		},
	}
}

func runInit(projectDir string) error {
	cfg, err := config.DefaultForProject(projectDir)
	if err != nil {
		return err
	}
	path, err := config.Write(cfg)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("Store provider API keys now? [y/N]: ")
	if !scanner.Scan() || !strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
		fmt.Println("Skipping secrets. Providers will use environment variables.")
		return nil
	}

	secrets := config.NewSecrets()
	for _, name := range []string{
		config.SecretAnthropicAPIKey,
		config.SecretOpenAIAPIKey,
		config.SecretGeminiAPIKey,
	} {
		fmt.Printf("Enter %s (press Enter to skip): ", name)
		if !scanner.Scan() {
			break
		}
		if value := strings.TrimSpace(scanner.Text()); value != "" {
			secrets.Set(name, value)
		}
	}
	if len(secrets.Names()) == 0 {
		fmt.Println("No keys entered, nothing to encrypt.")
		return nil
	}

	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	if err := secrets.SaveToFile(cfg.Project.Path, password); err != nil {
		return fmt.Errorf("save secrets: %w", err)
	}
	fmt.Println("Credentials saved to .automaker/secrets.json.enc (permissions 0600).")
	fmt.Printf("Set %s to skip the password prompt at startup.\n", passwordEnvVar)
	return nil
}

// promptPassword reads a password without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

// promptNewPassword reads a password twice and requires a match.
func promptNewPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for this project: ")
		first, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		second, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}

		if !bytes.Equal(first, second) {
			fmt.Println("Passwords do not match.")
			continue
		}

		password := string(first)
		for i := range first {
			first[i] = 0
		}
		for i := range second {
			second[i] = 0
		}
		return password, nil
	}
	return "", fmt.Errorf("passwords did not match after %d attempts", maxAttempts)
}
