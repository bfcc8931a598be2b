// Command batch sweeps one scenario over several seeds and reports the
// aggregate figures, the usual way simulation papers average out the
// randomness of a single run.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"gonum.org/v1/gonum/stat"

	"github.com/tribui1912/UavNetSim/internal/metrics"
	"github.com/tribui1912/UavNetSim/internal/sim"
	"github.com/tribui1912/UavNetSim/internal/utils"
)

func main() {
	scenarioPath := flag.String("scenario", "scenario.yaml", "YAML or JSON scenario description")
	runs := flag.Int("runs", 5, "number of seeds to sweep")
	firstSeed := flag.Int64("seed", 2025, "seed of the first run")
	out := flag.String("out", "batch_results.json", "aggregate output file")
	flag.Parse()

	log.SetHandler(text.New(os.Stdout))
	utils.MonitorResources(30 * time.Second)

	sc, err := sim.LoadScenario(*scenarioPath)
	if err != nil {
		log.WithError(err).Fatal("scenario")
	}
	// per-run reports would overwrite each other, the aggregate is the
	// batch's output
	sc.Logging.MetricsFile = ""
	sc.Logging.ExcelFile = ""

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var summaries []metrics.Summary
	for i := 0; i < *runs; i++ {
		sc.Seed = *firstSeed + int64(i)
		log.Infof("run %d/%d, seed %d", i+1, *runs, sc.Seed)

		runner := sim.NewRunner(sc)
		done := make(chan error, 1)
		go func() { done <- runner.Run() }()

		select {
		case err := <-done:
			if err != nil {
				log.WithError(err).Fatal("run failed")
			}
		case s := <-sigCh:
			log.Infof("received %v, stopping batch", s)
			runner.Stop()
			<-done
			i = *runs // no further runs
		}
		summaries = append(summaries, runner.Stats.Summarize())
	}

	printAggregate(summaries)
	if err := writeResults(*out, summaries); err != nil {
		log.WithError(err).Fatal("write results")
	}
	log.Infof("batch results written to %s", *out)
}

func printAggregate(summaries []metrics.Summary) {
	pull := func(f func(metrics.Summary) float64) []float64 {
		xs := make([]float64, len(summaries))
		for i, s := range summaries {
			xs[i] = f(s)
		}
		return xs
	}
	pdr := pull(func(s metrics.Summary) float64 { return s.PDR })
	delay := pull(func(s metrics.Summary) float64 { return s.AvgE2EDelayMs })
	hops := pull(func(s metrics.Summary) float64 { return s.AvgHopCount })

	fmt.Printf("\n=== batch aggregate over %d runs ===\n", len(summaries))
	fmt.Printf("PDR: %.2f%% ± %.2f\n", stat.Mean(pdr, nil), stat.StdDev(pdr, nil))
	fmt.Printf("E2E delay: %.2f ms ± %.2f\n", stat.Mean(delay, nil), stat.StdDev(delay, nil))
	fmt.Printf("Hop count: %.2f ± %.2f\n", stat.Mean(hops, nil), stat.StdDev(hops, nil))
}

func writeResults(path string, summaries []metrics.Summary) error {
	body, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0644)
}
