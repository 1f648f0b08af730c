// Command create-admin creates an admin or super_admin account.
//
//	create-admin -username root -email root@example.com [-role super_admin]
//
// The password comes from -password or ADMIN_PASSWORD.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	accounts "event-ticketing/internal/accounts/service"
	"event-ticketing/internal/clock"
	"event-ticketing/internal/config"
	"event-ticketing/internal/database"
	"event-ticketing/internal/kafka"
	"event-ticketing/internal/logger"
	"event-ticketing/internal/models"
)

func main() {
	_ = godotenv.Load()

	username := flag.String("username", "", "login name")
	email := flag.String("email", "", "e-mail address")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "password, at least 8 characters")
	firstName := flag.String("first-name", "", "first name")
	lastName := flag.String("last-name", "", "last name")
	roleName := flag.String("role", models.RoleAdmin.String(), "admin or super_admin")
	flag.Parse()

	role, err := models.ParseRole(*roleName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.NewWithWriter(os.Stdout)
	ctx := context.Background()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	svc := accounts.NewService(bunDB, kafka.NopPublisher{Log: log}, cfg.Kafka.Topics, clock.NewSystem(), log)
	user, err := svc.CreateAdmin(ctx, accounts.RegisterInput{
		Username:  *username,
		Email:     *email,
		Password:  *password,
		FirstName: *firstName,
		LastName:  *lastName,
	}, role)
	if err != nil {
		log.Error("ACCOUNTS", fmt.Sprintf("Could not create %s: %v", role, err))
		os.Exit(1)
	}
	fmt.Printf("created %s %s (%s)\n", user.Role, user.Username, user.ID)
}
