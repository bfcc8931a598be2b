package metrics

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

// ExportExcel writes the run summary and the raw per-packet samples to an
// .xlsx workbook, one sheet per concern.
func (c *Collector) ExportExcel(file string) error {
	s := c.Summarize()

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	const packetSheet = "Packets"
	const macSheet = "MAC_Delay"

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(packetSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(macSheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Run ID", s.RunID},
		{"Data packets generated", s.Generated},
		{"Data packets delivered", s.Delivered},
		{"Packet delivery ratio (%)", s.PDR},
		{"Average end-to-end delay (ms)", s.AvgE2EDelayMs},
		{"Jitter (ms)", s.JitterMs},
		{"Average throughput (kbps)", s.AvgThroughputKbs},
		{"Average hop count", s.AvgHopCount},
		{"Routing load", s.RoutingLoad},
		{"Average MAC delay (ms)", s.AvgMACDelayMs},
		{"Collisions", s.Collisions},
		{"Control packets", s.ControlPackets},
		{"Queue drops", s.QueueDrops},
		{"Expired drops", s.ExpiredDrops},
		{"No-route drops", s.NoRouteDrops},
		{"TTL drops", s.TTLDrops},
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	header := []interface{}{"Packet ID", "Latency (ms)", "Throughput (kbps)", "Hop count"}
	if err := f.SetSheetRow(packetSheet, "A1", &header); err != nil {
		return err
	}
	c.mu.Lock()
	ids := make([]int, 0, len(c.deliverTime))
	for id := range c.deliverTime {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	r := 2
	for _, id := range ids {
		row := []interface{}{id, c.deliverTime[id] / 1e3, c.throughput[id] / 1e3, c.hopCount[id]}
		if err := f.SetSheetRow(packetSheet, fmt.Sprintf("A%d", r), &row); err != nil {
			c.mu.Unlock()
			return err
		}
		r++
	}
	macHeader := []interface{}{"Sample", "MAC delay (ms)"}
	if err := f.SetSheetRow(macSheet, "A1", &macHeader); err != nil {
		c.mu.Unlock()
		return err
	}
	for i, d := range c.macDelay {
		row := []interface{}{i + 1, d}
		if err := f.SetSheetRow(macSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()

	return f.SaveAs(file)
}
