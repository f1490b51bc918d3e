package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"poll-api/internal/config"
	"poll-api/internal/db"
	"poll-api/internal/email"
	"poll-api/internal/repository"
	"poll-api/internal/service"
)

// Consola de operacion: promover administradores y revisar encuestas sin pasar por HTTP.
func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal(err)
	}

	userRepo := repository.NewPgUserRepository(pool)
	pollRepo := repository.NewPgPollRepository(pool)

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTSessionTTLMinutes)*time.Minute)
	notifier := service.NewNotifier(logger, email.NewDisabledSender("admin console does not send email"), cfg.EmailTimeout)
	verifier := service.NewVerifier(logger, service.OTPStrategy{}, notifier, nil)
	userSvc := service.NewUserService(logger, userRepo, verifier, notifier, jwtSvc, 0)
	pollSvc := service.NewPollService(logger, pollRepo)

	for {
		fmt.Println("\n===== Poll API Admin =====")
		fmt.Println("[1] Promover usuario a admin")
		fmt.Println("[2] Quitar rol admin")
		fmt.Println("[3] Listar encuestas")
		fmt.Println("[4] Ver ganador de una encuesta")
		fmt.Println("[5] Salir")
		fmt.Print("Selecciona una opcion: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			setAdminFlow(ctx, reader, userSvc, true)
		case "2":
			setAdminFlow(ctx, reader, userSvc, false)
		case "3":
			if err := listPollsFlow(ctx, pollSvc); err != nil {
				fmt.Printf("Error listando encuestas: %v\n", err)
			}
		case "4":
			winnerFlow(ctx, reader, pollSvc)
		case "5":
			return
		default:
			fmt.Println("Opcion invalida.")
		}
	}
}

func setAdminFlow(ctx context.Context, reader *bufio.Reader, userSvc *service.UserService, admin bool) {
	fmt.Print("Email del usuario: ")
	emailAddr, _ := reader.ReadString('\n')
	user, err := userSvc.SetAdmin(ctx, strings.TrimSpace(emailAddr), admin)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%s (ID: %s) admin=%t\n", user.Email, user.ID, user.IsAdmin)
}

func listPollsFlow(ctx context.Context, pollSvc *service.PollService) error {
	polls, err := pollSvc.ListPolls(ctx)
	if err != nil {
		return err
	}
	if len(polls) == 0 {
		fmt.Println("No hay encuestas.")
		return nil
	}
	for _, p := range polls {
		fmt.Printf("- %s (ID: %s) votos=%d\n", p.Question, p.ID, p.TotalVotes())
		for i, opt := range p.Options {
			fmt.Printf("    [%d] %s: %d\n", i+1, opt.Text, p.Votes[i])
		}
	}
	return nil
}

func winnerFlow(ctx context.Context, reader *bufio.Reader, pollSvc *service.PollService) {
	fmt.Print("ID de la encuesta: ")
	pollID, _ := reader.ReadString('\n')
	res, err := pollSvc.Winner(ctx, strings.TrimSpace(pollID))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if res.Winner == nil {
		fmt.Println("La encuesta no tiene opciones.")
		return
	}
	suffix := ""
	if res.Tie {
		suffix = " (empate)"
	}
	fmt.Printf("Ganador: %s con %d votos%s\n", res.Winner.Text, res.Votes, suffix)
}
