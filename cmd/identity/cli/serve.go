package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/curadesk/identity/internal/email"
	"github.com/curadesk/identity/internal/server"
	"github.com/curadesk/identity/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the identity HTTP server",
		Long: `Start the HTTP server exposing /validate, /activate, and /register.
Email delivery requires email.resend_api_key (IDENTITY_EMAIL_RESEND_API_KEY);
without it, registration answers 503 while validation and activation keep
working.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3001, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer st.Close()
	logger.Info("credential store ready")

	var mailer email.Sender
	if apiKey := viper.GetString("email.resend_api_key"); apiKey != "" {
		from := viper.GetString("email.from")
		if from == "" {
			from = "CuraDesk <kontakt@curadesk.de>"
		}
		mailer, err = email.NewResend(apiKey, from, viper.GetString("email.template"))
		if err != nil {
			return fmt.Errorf("init email sender: %w", err)
		}
		logger.Info("email delivery configured", "from", from)
	} else {
		logger.Warn("email delivery not configured - registration will answer 503")
	}

	svc := service.New(st, mailer, logger)

	cfg := server.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	srv := server.New(cfg, st, svc, logger)

	fmt.Printf("Identity server listening on http://%s:%d\n", host, port)
	return srv.ListenAndServe()
}
