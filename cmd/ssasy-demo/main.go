package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ssasy-auth/demo/internal/auth"
	"github.com/ssasy-auth/demo/internal/bridge"
	"github.com/ssasy-auth/demo/internal/challenge"
	"github.com/ssasy-auth/demo/internal/client"
	"github.com/ssasy-auth/demo/internal/config"
	httpapp "github.com/ssasy-auth/demo/internal/http"
	"github.com/ssasy-auth/demo/internal/keys"
	"github.com/ssasy-auth/demo/internal/model"
	"github.com/ssasy-auth/demo/internal/rate"
	"github.com/ssasy-auth/demo/internal/store/sqlite"
)

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL    string `json:"base_url"`
	Username   string `json:"username"`
	PrivateKey string `json:"private_key"`
	Token      string `json:"token"`
}

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("ssasy-demo v0.1.0")
		return
	}
	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "init":
		cmdInit(args)
	case "register":
		cmdRegister(args)
	case "login", "auth":
		cmdLogin(args)
	case "post":
		cmdPost(args)
	case "whoami":
		cmdWhoami(args)
	case "users":
		cmdUsers(args)
	case "thoughts", "read":
		cmdThoughts(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ssasy-demo - passwordless authentication demo

Usage: ssasy-demo <command> [options]

Quick Start:
  ssasy-demo register --name alice
  ssasy-demo post --text "hello world"

Client Commands:
  init                Generate a key pair and save the client config
  register            Setup key pair and register (one command)
  login               Authenticate and store a session token
  post                Post a thought
  whoami              Show the identity behind the local key
  users               List registered users
  thoughts            Read recent thoughts

Server:
  server              Start the demo server (default if no command)

Examples:
  ssasy-demo register --name alice --url http://localhost:3000
  ssasy-demo login --agent
  ssasy-demo post --text "passwords are obsolete"
  ssasy-demo thoughts --user 1

Environment Variables (server):
  SSASY_DEMO_ADDR           Listen address (default: :3000)
  SSASY_DEMO_DB             Database path (default: ssasy-demo.db)
  SSASY_DEMO_PRIVATE_KEY    Server key (ssasy key URI; generated if unset)
  SSASY_DEMO_TOKEN_SECRET   Session token signing secret
  SSASY_DEMO_TOKEN_TTL      Token lifetime (default: 1h)
  SSASY_DEMO_CHALLENGE_TTL  Challenge freshness window (default: 5m)`)
}

// ============================================================================
// SERVER
// ============================================================================

func runServer() {
	log := logrus.New()
	cfg := config.Load()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}
	defer store.Close()

	wallet, err := serverWallet(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to load server key")
	}

	limiter := rate.NewMemory()
	authSvc := auth.NewService(store, wallet, []byte(cfg.TokenSecret), cfg.TokenTTL, cfg.ChallengeTTL)
	server := httpapp.NewServer(store, authSvc, limiter, cfg, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("ssasy demo listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// serverWallet loads the verifier key from config, or generates one and
// persists it next to the database so restarts keep the same identity.
// Losing the key would invalidate every stored signature of record.
func serverWallet(cfg config.Config) (*challenge.Wallet, error) {
	if cfg.PrivateKey != "" {
		return walletFromURI(cfg.PrivateKey)
	}

	keyPath := cfg.DBPath + ".key"
	if data, err := os.ReadFile(keyPath); err == nil {
		return walletFromURI(strings.TrimSpace(string(data)))
	}

	pair, err := keys.GenerateKeyPair(keys.CurveP256)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(keys.Serialize(pair.Private)+"\n"), 0600); err != nil {
		return nil, err
	}
	return challenge.NewWallet(pair)
}

func walletFromURI(uri string) (*challenge.Wallet, error) {
	priv, err := keys.Deserialize(uri)
	if err != nil {
		return nil, err
	}
	return challenge.NewWallet(keys.KeyPair{Private: priv, Public: priv.PublicKey()})
}

// ============================================================================
// CLIENT
// ============================================================================

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "Username (required)")
	url := fs.String("url", "http://localhost:3000", "Demo server URL")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		fmt.Fprintln(os.Stderr, "Usage: ssasy-demo init --name <username> [--url <server-url>]")
		os.Exit(1)
	}

	cfg, err := initConfig(*name, *url)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Initialized '%s'\n", *name)
	fmt.Printf("  Config: %s\n", cliConfigPath())
	fmt.Printf("  Server: %s\n", cfg.BaseURL)
	fmt.Println("\nNext: ssasy-demo register")
}

func initConfig(name, url string) (CLIConfig, error) {
	pair, err := keys.GenerateKeyPair(keys.CurveP256)
	if err != nil {
		return CLIConfig{}, err
	}
	cfg := CLIConfig{
		BaseURL:    strings.TrimSuffix(url, "/"),
		Username:   name,
		PrivateKey: keys.Serialize(pair.Private),
	}
	if err := saveCLIConfig(cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Username (required if not initialized)")
	url := fs.String("url", "http://localhost:3000", "Demo server URL")
	viaAgent := fs.Bool("agent", false, "Solve challenges through an in-process signing agent")
	fs.Parse(args)

	cfg, err := loadCLIConfig()
	if err != nil {
		if *name == "" {
			fmt.Fprintln(os.Stderr, "Error: --name is required for first-time registration")
			os.Exit(1)
		}
		cfg, err = initConfig(*name, *url)
		if err != nil {
			fatal(err)
		}
	}

	wallet, c, err := walletAndClient(cfg)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	solver := pickSolver(ctx, wallet, *viaAgent)

	user, err := c.RegisterWith(solver, cfg.Username)
	if err != nil {
		fatal(fmt.Errorf("register: %w", err))
	}
	if _, err := c.LoginWith(solver); err != nil {
		fatal(fmt.Errorf("login: %w", err))
	}
	cfg.Token = c.Token
	if err := saveCLIConfig(cfg); err != nil {
		fatal(err)
	}

	fmt.Printf("Registered '%s' (user %d)\n", user.Username, user.ID)
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	viaAgent := fs.Bool("agent", false, "Solve challenges through an in-process signing agent")
	fs.Parse(args)

	cfg, err := loadCLIConfig()
	if err != nil {
		fatal(err)
	}
	wallet, c, err := walletAndClient(cfg)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user, err := c.LoginWith(pickSolver(ctx, wallet, *viaAgent))
	if err != nil {
		fatal(fmt.Errorf("login: %w", err))
	}
	cfg.Token = c.Token
	if err := saveCLIConfig(cfg); err != nil {
		fatal(err)
	}

	fmt.Printf("Logged in as '%s'\n", user.Username)
}

// cliOrigin is the origin the CLI presents on the bridge; the in-process
// agent is configured to trust exactly this one.
const cliOrigin = "cli://ssasy-demo"

// pickSolver answers with the wallet directly, or routes every key
// access through the page-to-agent bridge protocol so the handshake
// exercises the same path a browser page would take to an extension.
func pickSolver(ctx context.Context, wallet *challenge.Wallet, viaAgent bool) client.Solver {
	if !viaAgent {
		return client.WalletSolver{Wallet: wallet}
	}
	ch := bridge.NewMemoryChannel()
	agent := bridge.NewAgent(ch, wallet, []string{cliOrigin})
	go func() { _ = agent.Run(ctx) }()
	return client.BridgeSolver{
		Messenger: bridge.NewMessenger(ch, cliOrigin),
		Timeout:   10 * time.Second,
	}
}

func cmdPost(args []string) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	text := fs.String("text", "", "Thought text (required)")
	fs.Parse(args)

	if *text == "" {
		fmt.Fprintln(os.Stderr, "Error: --text is required")
		os.Exit(1)
	}

	cfg, err := loadCLIConfig()
	if err != nil {
		fatal(err)
	}
	wallet, c, err := walletAndClient(cfg)
	if err != nil {
		fatal(err)
	}

	thought, err := c.PostThought(*text)
	if err != nil {
		// Token may have expired; retry once with a fresh login.
		if _, err := c.Login(wallet); err != nil {
			fatal(fmt.Errorf("login: %w", err))
		}
		cfg.Token = c.Token
		_ = saveCLIConfig(cfg)
		thought, err = c.PostThought(*text)
		if err != nil {
			fatal(fmt.Errorf("post: %w", err))
		}
	}

	fmt.Printf("Posted thought %d\n", thought.ID)
}

func cmdWhoami(args []string) {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := loadCLIConfig()
	if err != nil {
		fatal(err)
	}
	wallet, c, err := walletAndClient(cfg)
	if err != nil {
		fatal(err)
	}

	pub := wallet.PublicKey()
	fmt.Printf("Username:   %s\n", cfg.Username)
	fmt.Printf("Server:     %s\n", cfg.BaseURL)
	fmt.Printf("Public key: %s\n", keys.Serialize(pub))

	user, err := c.GetUserByCoordinates(pub.X, pub.Y)
	if err != nil {
		fmt.Println("Registered: no")
		return
	}
	fmt.Printf("Registered: yes (user %d, since %s)\n", user.ID, user.CreatedAt.Format("2006-01-02"))
}

func cmdUsers(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	url := fs.String("url", "", "Demo server URL (default: configured server)")
	fs.Parse(args)

	c := client.New(resolveBaseURL(*url))
	users, err := c.GetUsers()
	if err != nil {
		fatal(err)
	}
	if len(users) == 0 {
		fmt.Println("No users registered yet.")
		return
	}
	for _, u := range users {
		fmt.Printf("%4d  %-20s %s\n", u.ID, u.Username, u.CreatedAt.Format("2006-01-02"))
	}
}

func cmdThoughts(args []string) {
	fs := flag.NewFlagSet("thoughts", flag.ExitOnError)
	url := fs.String("url", "", "Demo server URL (default: configured server)")
	user := fs.Int64("user", 0, "Only this user's thoughts (by user id)")
	fs.Parse(args)

	c := client.New(resolveBaseURL(*url))
	var thoughts []model.Thought
	var err error
	if *user > 0 {
		thoughts, err = c.GetUserThoughts(*user)
	} else {
		thoughts, err = c.GetThoughts()
	}
	if err != nil {
		fatal(err)
	}
	if len(thoughts) == 0 {
		fmt.Println("No thoughts yet.")
		return
	}
	for _, th := range thoughts {
		fmt.Printf("%4d  %-20s %s\n      %s\n", th.ID, th.AuthorName, th.CreatedAt.Format("2006-01-02 15:04"), th.Text)
	}
}

// ============================================================================
// CLI CONFIG
// ============================================================================

func cliConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ssasy-demo.json"
	}
	return filepath.Join(home, ".ssasy-demo", "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not initialized - run 'ssasy-demo register --name <name>'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	path := cliConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(path, data, 0600)
}

func walletAndClient(cfg CLIConfig) (*challenge.Wallet, *client.Client, error) {
	wallet, err := walletFromURI(cfg.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}
	c := client.New(cfg.BaseURL)
	c.Token = cfg.Token
	return wallet, c, nil
}

func resolveBaseURL(flagURL string) string {
	if flagURL != "" {
		return strings.TrimSuffix(flagURL, "/")
	}
	if cfg, err := loadCLIConfig(); err == nil && cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return "http://localhost:3000"
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
