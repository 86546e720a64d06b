package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE:  runInitConfig,
}

func init() {
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	defaultConfig := `# ushadow orchestrator configuration

server:
  host: 127.0.0.1
  port: 8010
  read_timeout: 30s
  write_timeout: 30s
  shutdown_timeout: 10s
  debug: false

docker:
  socket: /var/run/docker.sock
  status_interval: 10s

paths:
  compose_dir: ./compose
  settings_dir: ~/.ushadow
  stacks_dir: ~/ushadow-stacks
  primary_checkout: ~/ushadow
  stack_remote: https://github.com/ushadow/stack.git

setup:
  level1:
    - mem0
    - chronicle-backend
  level2:
    - chronicle
  level3:
    - speaches

cluster:
  token_secret: change-me
  roster_interval: 15s
  roster_url: ""

security:
  rate_limit: 100
  allowed_origins:
    - "*"
`

	if err := os.WriteFile("config.yaml", []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Println("✓ Created config.yaml")
	return nil
}
