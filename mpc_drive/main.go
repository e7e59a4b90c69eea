package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mpc-drive-core/control"
	"mpc-drive-core/utils"
)

func main() {
	var (
		addr      = flag.String("addr", ":4567", "websocket listen address")
		cfgPath   = flag.String("config", "", "JSON tuning file (defaults used when empty)")
		logLevel  = flag.String("log", "info", "trace|debug|info|warn|error|critical")
		logFile   = flag.String("logfile", "mpc_drive.log", "log file path")
		delayMS   = flag.Int("delay-ms", 100, "artificial actuation delay before each command is sent")
		policy    = flag.String("policy", "hold", "cycle-failure policy: hold|stop")
		canIface  = flag.String("can-iface", "", "SocketCAN interface to mirror commands onto (disabled when empty)")
		canMap    = flag.String("can-map", "config/can_map.csv", "signal map CSV for the CAN mirror")
		canFrame  = flag.String("can-frame", "MPC_CMD", "frame name to transmit on the CAN mirror")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logFile, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open log file: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := control.DefaultConfig()
	if *cfgPath != "" {
		cfg, err = control.LoadConfig(*cfgPath)
		if err != nil {
			log.Critical("Config rejected: %v", err)
			os.Exit(1)
		}
	}

	pol, err := parsePolicy(*policy)
	if err != nil {
		log.Critical("%v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mirror *CommandMirror
	if *canIface != "" {
		mirror, err = NewCommandMirror(ctx, *canIface, *canMap, *canFrame, log)
		if err != nil {
			log.Critical("CAN mirror startup failed: %v", err)
			os.Exit(1)
		}
		defer mirror.Close()
	}

	srv := &Server{
		Addr:           *addr,
		Config:         cfg,
		Policy:         pol,
		ActuationDelay: time.Duration(*delayMS) * time.Millisecond,
		Log:            log,
		Mirror:         mirror,
	}
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		log.Critical("Server failed: %v", err)
		os.Exit(1)
	}
}
