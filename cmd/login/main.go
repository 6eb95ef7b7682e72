package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clipstream-client/internal/adapters/authapi"
	"clipstream-client/internal/infra/config"
	"clipstream-client/internal/infra/session"
)

func main() {
	var (
		email    string
		password string
	)
	flag.StringVar(&email, "email", os.Getenv("CLIPSTREAM_EMAIL"), "Email аккаунта платформы")
	flag.StringVar(&password, "password", os.Getenv("CLIPSTREAM_PASSWORD"), "Пароль аккаунта")
	flag.Parse()

	cfg := config.Load()
	if cfg.Platform.AuthURL == "" {
		log.Fatal().Msg("login: требуется PLATFORM_AUTH_URL")
	}

	reader := bufio.NewReader(os.Stdin)
	if email == "" {
		email = prompt(reader, "Email: ")
	}
	if password == "" {
		password = prompt(reader, "Пароль: ")
	}
	if email == "" || password == "" {
		log.Fatal().Msg("login: нужны email и пароль")
	}

	auth, err := authapi.New(cfg.Platform.AuthURL, cfg.Platform.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("login: клиент аутентификации")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := auth.SignIn(ctx, email, password)
	if err != nil {
		log.Fatal().Err(err).Msg("login: вход не выполнен")
	}
	if err := session.NewFileStore(cfg.SessionFile).Save(sess); err != nil {
		log.Fatal().Err(err).Msg("login: сохранение сессии")
	}

	fmt.Printf("Сессия сохранена в %s, пользователь %s\n", cfg.SessionFile, sess.UserID)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Fatal().Err(err).Msg("login: чтение ввода")
	}
	return strings.TrimSpace(line)
}
