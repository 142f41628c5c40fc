package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/logging"
	"github.com/harshit-ig/startup-genie/internal/streamclient"
)

type cliConfig struct {
	APIURL      string        `env:"GENIE_API_URL" envDefault:"http://localhost:5000"`
	Email       string        `env:"GENIE_EMAIL"`
	Password    string        `env:"GENIE_PASSWORD"`
	HardTimeout time.Duration `env:"GENIE_STREAM_TIMEOUT" envDefault:"5m"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
}

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: "console"})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	client := streamclient.New(cfg.APIURL,
		streamclient.WithLogger(logger),
		streamclient.WithHardTimeout(cfg.HardTimeout),
	)

	if err := authenticate(ctx, reader, client, cfg); err != nil {
		log.Fatalf("auth: %v", err)
	}

	fmt.Println("===== Startup Genie Mentor =====")
	fmt.Println("Ask anything about your startup. Ctrl+C stops an answer, 'exit' quits.")
	for {
		fmt.Print("\nYou > ")
		text, err := reader.ReadString('\n')
		text = strings.TrimSpace(text)
		if err != nil && text == "" {
			return
		}
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "exit") {
			return
		}

		if err := ask(ctx, client, logger, text); err != nil {
			fmt.Printf("\n[error] %v\n", err)
		}
	}
}

// authenticate usa GENIE_EMAIL/GENIE_PASSWORD si estan, si no pregunta.
func authenticate(ctx context.Context, reader *bufio.Reader, client *streamclient.Client, cfg cliConfig) error {
	if cfg.Email != "" && cfg.Password != "" {
		_, err := client.Login(ctx, cfg.Email, cfg.Password)
		return err
	}

	for {
		fmt.Println("[1] Login")
		fmt.Println("[2] Register")
		fmt.Print("Choose an option: ")
		choice := readLine(reader)

		switch choice {
		case "1":
			email := prompt(reader, "Email: ")
			password := prompt(reader, "Password: ")
			if _, err := client.Login(ctx, email, password); err != nil {
				fmt.Printf("Login failed: %v\n", err)
				continue
			}
			return nil
		case "2":
			name := prompt(reader, "Name: ")
			email := prompt(reader, "Email: ")
			password := prompt(reader, "Password: ")
			if _, err := client.Register(ctx, name, email, password); err != nil {
				fmt.Printf("Register failed: %v\n", err)
				continue
			}
			return nil
		default:
			fmt.Println("Invalid option.")
		}
	}
}

// ask crea el prompt e imprime la respuesta a medida que llega. Ctrl+C solo
// corta el stream actual.
func ask(ctx context.Context, client *streamclient.Client, logger *zap.Logger, message string) error {
	promptID, err := client.CreatePrompt(ctx, message)
	if err != nil {
		return err
	}

	streamCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Print("Genie > ")
	start := time.Now()
	res, err := client.Stream(streamCtx, promptID, streamclient.Handlers{
		OnToken: func(tokens []string) {
			for _, t := range tokens {
				fmt.Print(t)
			}
		},
		OnError: func(err error) {
			var srvErr *streamclient.ServerError
			if errors.As(err, &srvErr) {
				fmt.Printf("\n%s", srvErr.Message)
			}
		},
	})
	fmt.Println()

	if errors.Is(err, streamclient.ErrCanceled) {
		fmt.Println("[stopped]")
		return nil
	}
	if err != nil {
		return err
	}
	if res.Outcome == streamclient.OutcomeTimedOut {
		fmt.Println("[response took too long, showing what arrived]")
	}
	logger.Debug("answer finished",
		zap.String("prompt_id", promptID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("tokens", res.TokensReceived),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	return readLine(reader)
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
