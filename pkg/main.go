package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	pkg "github.com/heartlink-app/heartlink-core/pkg/internal"
	"github.com/heartlink-app/heartlink-core/pkg/internal/database"
	"github.com/heartlink-app/heartlink-core/pkg/internal/media"
	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
	"github.com/heartlink-app/heartlink-core/pkg/internal/services"
	"github.com/heartlink-app/heartlink-core/pkg/internal/signaling"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Open the local cache
	if err := database.NewSource(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when opening the local cache.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running cache auto migration.")
	}

	// Resolve who we are
	self, err := services.LoadSelfUser()
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when resolving the local identity.")
	}

	// Call stack
	api := signaling.NewClient(viper.GetString("signaling.endpoint"))
	engine := media.NewLiveKitEngine(nil)
	calls := services.NewCallService(api, engine, services.NewLogRinger(), services.CallEvents{
		OnIncomingCall: func(room string, from models.UserInfo) {
			log.Info().Str("room", room).Str("from", from.Name).Msg("Incoming call...")
		},
	}, services.CallConfig{
		Self:            self,
		AutoStartVideo:  viper.GetBool("calls.auto_start_video"),
		MobileProfile:   viper.GetBool("calls.mobile_profile"),
		MaxCallDuration: viper.GetDuration("calls.max_duration"),
		Cache:           database.C,
	})

	listener := signaling.NewListener(viper.GetString("signaling.endpoint"), self.ID)
	go func() {
		if err := listener.Start(context.Background(), calls.HandlePushEvent); err != nil {
			log.Error().Err(err).Msg("The push event stream was closed.")
		}
	}()

	// Chat stack
	socket, err := services.DialChatSocket(viper.GetString("chat.endpoint"), self.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connecting the chat socket.")
	}
	chats := services.NewChatService(socket, self.ID, database.C)

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every 60m", services.DoAutoCacheCleanup)
	quartz.Start()

	// Messages
	log.Info().Msgf("HeartLink Core v%s is started...", pkg.AppVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("HeartLink Core v%s is quitting...", pkg.AppVersion)

	calls.Leave()
	chats.CloseConversation()
	socket.Close()
	quartz.Stop()
}
