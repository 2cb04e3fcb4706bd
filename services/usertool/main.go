// Операторская утилита портала: учётные записи, отзыв сессий, журнал событий.
// Работает напрямую с БД; запускается на том же хосте, что и портал.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/machinepark/internal/audit"
	"github.com/machinepark/internal/config"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/repository"
	"github.com/machinepark/internal/service"
)

func main() {
	logger.SetPrefix("usertool")
	create := flag.Bool("create", false, "create a user (requires -login, -email, -password)")
	login := flag.String("login", "", "login for -create")
	email := flag.String("email", "", "email for -create")
	password := flag.String("password", "", "password for -create")
	list := flag.Bool("list", false, "list users")
	revoke := flag.Int("revoke", 0, "revoke all sessions of the user with this id")
	events := flag.Int("events", 0, "show the last N session events")
	flag.Parse()

	if !*create && !*list && *revoke == 0 && *events == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse db config: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect db: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	creds := service.NewCredentialService(userRepo)
	sessions := service.NewSessionService(sessionRepo, creds, audit.NewPGRecorder(eventRepo))

	switch {
	case *create:
		u, err := creds.CreateUser(ctx, *login, *email, *password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("создан пользователь id=%d login=%s email=%s\n", u.ID, u.Login, u.Email)
	case *list:
		users, err := creds.List(ctx, 200)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list users: %v\n", err)
			os.Exit(1)
		}
		for _, u := range users {
			fmt.Printf("%-5d %-20s %-30s %s\n", u.ID, u.Login, u.Email, u.CreatedAt.Format("2006-01-02"))
		}
		fmt.Printf("всего: %d\n", len(users))
	case *revoke != 0:
		n, err := sessions.RevokeUser(ctx, *revoke)
		if err != nil {
			fmt.Fprintf(os.Stderr, "revoke sessions: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("отозвано сессий пользователя %d: %d\n", *revoke, n)
	case *events != 0:
		recent, err := eventRepo.ListRecent(ctx, *events)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list events: %v\n", err)
			os.Exit(1)
		}
		for _, e := range recent {
			fmt.Printf("%s  %-12s user=%d(%s) session=%s %s\n",
				e.CreatedAt.Format(time.RFC3339), e.Kind, e.UserID, e.UserLogin, e.SessionID, e.Detail)
		}
	}
}
