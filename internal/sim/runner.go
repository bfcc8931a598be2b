package sim

import (
	"github.com/apex/log"

	"github.com/tribui1912/UavNetSim/internal/eventbus"
	"github.com/tribui1912/UavNetSim/internal/metrics"
)

// Runner drives one scenario end to end: build the simulator, expose the
// observation and control surfaces while it runs, then write the reports.
type Runner struct {
	sc    *Scenario
	Sim   *Simulator
	Bus   *eventbus.Bus
	Stats *metrics.Collector
}

func NewRunner(sc *Scenario) *Runner {
	bus := eventbus.New()
	stats := metrics.NewCollector()
	return &Runner{
		sc:    sc,
		Sim:   New(sc.Config(), bus, stats),
		Bus:   bus,
		Stats: stats,
	}
}

// Stop winds the simulation down early at the next event boundary.
func (r *Runner) Stop() { r.Sim.Sched.Halt() }

// Run executes the scenario and writes the configured reports.
func (r *Runner) Run() error {
	r.Sim.Run()
	r.Stats.Print()

	if f := r.sc.Logging.MetricsFile; f != "" {
		if err := r.Stats.Flush(f); err != nil {
			return err
		}
		log.Infof("metrics written to %s", f)
	}
	if f := r.sc.Logging.ExcelFile; f != "" {
		if err := r.Stats.ExportExcel(f); err != nil {
			return err
		}
		log.Infof("report written to %s", f)
	}
	return nil
}
