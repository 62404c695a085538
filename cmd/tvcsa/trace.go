package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/observe-l/tvcsa/descrambler"
)

type traceSummary struct {
	service   uint16
	flushes   int
	fill      int
	advanced  int
	maxPasses int
}

func summariseTrace(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	byService := make(map[uint16]*traceSummary)
	err = descrambler.ReadTrace(f, func(ev *descrambler.FlushEvent) error {
		s, ok := byService[ev.Service]
		if !ok {
			s = &traceSummary{service: ev.Service}
			byService[ev.Service] = s
		}
		s.flushes++
		s.fill += ev.Fill
		s.advanced += ev.Advanced
		s.maxPasses = max(s.maxPasses, ev.Passes)
		return nil
	})
	if err != nil {
		return err
	}

	list := lo.Values(byService)
	slices.SortFunc(list, func(a, b *traceSummary) int { return int(a.service) - int(b.service) })
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tFLUSHES\tPACKETS\tAVG FILL\tMAX PASSES")
	for _, s := range list {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f\t%d\n", s.service, s.flushes, s.advanced,
			float64(s.fill)/float64(s.flushes), s.maxPasses)
	}
	return tw.Flush()
}
