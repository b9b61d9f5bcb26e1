// Command createuser adds an account to the scheduler database.
//
//	createuser -username alice -first Alice -last Martin [-superuser]
//
// The password is read from -password or, when absent, from the
// CREATEUSER_PASSWORD environment variable.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/market-permanences/internal/config"
	"github.com/iliyamo/market-permanences/internal/database"
	"github.com/iliyamo/market-permanences/internal/repository"
	"github.com/iliyamo/market-permanences/internal/service"
)

func main() {
	username := flag.String("username", "", "login name (required)")
	password := flag.String("password", "", "password (or CREATEUSER_PASSWORD)")
	first := flag.String("first", "", "first name")
	last := flag.String("last", "", "last name")
	superuser := flag.Bool("superuser", false, "grant administrator rights")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if *password == "" {
		*password = os.Getenv("CREATEUSER_PASSWORD")
	}

	db, err := database.Open(database.Params{User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName})
	if err != nil {
		logrus.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	auth := service.NewAuthService(repository.NewUserRepo(db), cfg.JWTSecret, cfg.SessionTTL, cfg.BcryptCost)
	id, err := auth.CreateUser(ctx, service.NewUser{
		Username:  *username,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
		Superuser: *superuser,
	})
	if err != nil {
		logrus.Fatalf("create user: %v", err)
	}
	logrus.WithFields(logrus.Fields{"id": id, "username": *username, "superuser": *superuser}).Info("user created")
}
