// Command simulator runs one scenario, optionally exposing the websocket
// observation feed and the MQTT control plane while the simulation runs.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"

	"github.com/tribui1912/UavNetSim/internal/mqttctl"
	"github.com/tribui1912/UavNetSim/internal/server"
	"github.com/tribui1912/UavNetSim/internal/sim"
)

func main() {
	scenarioPath := flag.String("scenario", "scenario.yaml", "YAML or JSON scenario description")
	flag.Parse()

	sc, err := sim.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenario: %v\n", err)
		os.Exit(1)
	}
	logFile := setupLogging(sc.Logging.Level)
	if logFile != nil {
		defer logFile.Close()
	}

	runner := sim.NewRunner(sc)

	if sc.Server.Enabled {
		addr := sc.Server.Addr
		if addr == "" {
			addr = ":8080"
		}
		server.New(runner.Sim, runner.Bus).Start(addr)
	}

	var ctl *mqttctl.Manager
	if sc.MQTT.Enabled {
		clientID := sc.MQTT.ClientID
		if clientID == "" {
			clientID = "uavnetsim"
		}
		ctl, err = mqttctl.New(sc.MQTT.Broker, clientID, runner.Sim)
		if err != nil {
			log.WithError(err).Fatal("mqtt control plane")
		}
		defer ctl.Disconnect()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run() }()

	select {
	case err := <-runErr:
		if err != nil {
			log.WithError(err).Fatal("run failed")
		}
	case s := <-sigCh:
		log.Infof("received %v, winding down", s)
		runner.Stop()
		if err := <-runErr; err != nil {
			log.WithError(err).Error("run stopped with error")
		}
	}

	if ctl != nil {
		if err := ctl.PublishSummary(runner.Stats.Summarize()); err != nil {
			log.WithError(err).Error("summary publish failed")
		}
	}
}

// setupLogging mirrors everything to stdout and a timestamped file under
// logs/.
func setupLogging(level string) *os.File {
	out := io.Writer(os.Stdout)
	var f *os.File
	if err := os.MkdirAll("logs", 0755); err == nil {
		name := "logs/run_" + time.Now().Format("2006-01-02_15-04-05") + ".log"
		if file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err == nil {
			f = file
			out = io.MultiWriter(os.Stdout, file)
		}
	}
	log.SetHandler(text.New(out))

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	return f
}
