package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/scrimsnet/scrimsbot/pkg/bus"
	"github.com/scrimsnet/scrimsbot/pkg/db"
	"github.com/scrimsnet/scrimsbot/pkg/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the data layer",
	Long: `Start the data layer: connect to postgres, warm the table caches,
listen for change notifications and serve metrics until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("config")
		return serve(envFile)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "path to an env file (defaults to .env when present)")
}

func loadConfig(envFile string) *viper.Viper {
	// .env is optional; real environments set variables directly
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetEnvPrefix("scrimsbot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "scrims")
	v.SetDefault("db.user", "scrims")
	v.SetDefault("db.password", "")
	v.SetDefault("db.schema", "public")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("bus.driver", "pg")
	v.SetDefault("bus.redis.addr", "localhost:6379")
	v.SetDefault("bus.redis.password", "")
	v.SetDefault("bus.redis.database", 0)
	v.SetDefault("metrics.addr", ":9090")
	return v
}

func newLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if err := config.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return config.Build()
}

func newBus(ctx context.Context, v *viper.Viper, dsn string, log *zap.Logger) (bus.Bus, error) {
	switch driver := v.GetString("bus.driver"); driver {
	case "pg":
		return bus.NewPGBus(dsn, log)
	case "redis":
		return bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:     v.GetString("bus.redis.addr"),
			Password: v.GetString("bus.redis.password"),
			Database: v.GetInt("bus.redis.database"),
		}, log)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", driver)
	}
}

func serveMetrics(addr string, log *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
}

func serve(envFile string) error {
	v := loadConfig(envFile)

	log, err := newLogger(v.GetString("log.level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config := db.DefaultConfig(
		v.GetString("db.host"),
		v.GetString("db.name"),
		v.GetString("db.user"),
		v.GetString("db.password"),
	)
	config.Port = v.GetInt("db.port")
	config.Schema = v.GetString("db.schema")
	config.SSLMode = v.GetString("db.sslmode")
	config.LogLevel = v.GetString("log.level")

	notifier, err := newBus(ctx, v, config.DSN(), log)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	client, err := db.NewClient(config, notifier, log)
	if err != nil {
		return err
	}
	database := models.NewDatabase(client)

	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := database.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	serveMetrics(v.GetString("metrics.addr"), log)

	log.Info("data layer up")
	<-ctx.Done()

	log.Info("shutting down")
	return database.Destroy()
}
