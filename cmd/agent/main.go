package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/gps-streamer/internal/console"
	"github.com/benmeehan/gps-streamer/internal/service_registry"
	"github.com/benmeehan/gps-streamer/internal/utils"
	"github.com/benmeehan/gps-streamer/pkg/file"
	"github.com/benmeehan/gps-streamer/pkg/identity"
	"github.com/benmeehan/gps-streamer/pkg/mqtt"
	"github.com/benmeehan/gps-streamer/pkg/permission"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the agent configuration")
	flag.Parse()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		bootstrap := utils.NewLogger(&utils.Config{})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := utils.NewLogger(config)

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device information")
	}
	log = log.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()

	// The MQTT connection is only needed by the mirror
	var mqttClient mqtt.MQTTClient
	if config.Mirror.Enabled {
		clientID := config.Mirror.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Connecting MQTT mirror")

		mqttService := mqtt.NewMqttService(fileClient)
		if err := mqttService.Initialize(config.Mirror.Broker, clientID, config.Mirror.CACertificate); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		defer mqttService.Disconnect(250)
		mqttClient = mqttService
	}

	granted, err := config.GrantedPermissions()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid permissions")
	}

	lines := console.NewLineReader(os.Stdin)
	var prompter permission.Prompter
	if config.Permissions.Prompt {
		prompter = console.NewTerminalPrompter(lines, os.Stdout)
	}
	permissions := permission.NewManager(prompter, granted...)

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, permissions, console.NewLogNotifier(log), log)

	streamer, err := serviceRegistry.RegisterServices(config, deviceInfo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	screen := console.NewScreen(os.Stdout)
	streamer.OnChange(screen.Render)

	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := console.NewConsole(lines, os.Stdout, screen, streamer, permissions, log)
	switch err := cli.Run(ctx); {
	case errors.Is(err, console.ErrInputClosed):
		// No operator attached (daemon mode): keep streaming until signalled.
		<-ctx.Done()
	case err != nil:
		log.Error().Err(err).Msg("Console stopped")
	}

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Failed to stop services cleanly")
	}
}
