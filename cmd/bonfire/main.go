package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/config"
	"github.com/bonfirelabs/bonfire/internal/gateway"
)

// GatewayRunner is the piece of the gateway the CLI drives. Split out so
// tests can swap the real thing for a stub.
type GatewayRunner interface {
	Run(ctx context.Context) error
}

// GatewayFactory builds the runner for the serve command.
type GatewayFactory func(cfg *config.Config) (GatewayRunner, error)

func defaultGatewayFactory(cfg *config.Config) (GatewayRunner, error) {
	return gateway.New(cfg)
}

var rootCmd = &cobra.Command{
	Use:   "bonfire",
	Short: "bonfire - group chat with an AI regular",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway (HTTP API + channels + cron)",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and the first room",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bonfire status",
	RunE:  runStatus,
}

var roomNameFlag string

func init() {
	onboardCmd.Flags().StringVar(&roomNameFlag, "room", "general", "Name of the room created during onboarding")
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	return runServeWithFactory(defaultGatewayFactory)
}

// runServeWithFactory runs the gateway with an injectable constructor for testing.
func runServeWithFactory(factory GatewayFactory) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'bonfire onboard' or set BONFIRE_API_KEY")
	}

	gw, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfgDir, "data", "bonfire.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := chat.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureAgentProfile(cfg.Agent.Name); err != nil {
		return fmt.Errorf("seed agent profile: %w", err)
	}

	room, err := store.CreateRoom(roomNameFlag)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	fmt.Printf("Created room %q: %s\n", room.Name, room.ID)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set BONFIRE_API_KEY environment variable")
	fmt.Println("  3. Run 'bonfire serve' and POST a message to the room")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Agent: %s (%s)\n", cfg.Agent.Name, cfg.Agent.MentionTag)
	fmt.Printf("Model: %s (classifier: %s)\n", cfg.Agent.Model, cfg.Agent.ClassifierModel)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Memory: enabled=%v trigger=%s\n", cfg.Memory.Enabled, cfg.Memory.Trigger)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Listen: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "data", "bonfire.db")
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("Database: not found (run 'bonfire onboard')")
		return nil
	}

	store, err := chat.NewStore(dbPath)
	if err != nil {
		fmt.Printf("Database: error (%v)\n", err)
		return nil
	}
	defer store.Close()

	if n, err := store.MessageCount(); err == nil {
		fmt.Printf("Messages: %d\n", n)
	}

	return nil
}
