package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/observe-l/tvcsa/descrambler"
	"github.com/observe-l/tvcsa/internal/cwfeed"
)

func main() {
	var (
		addr   = flag.String("addr", "127.0.0.1:50061", "control word feed address")
		cmd    = flag.String("cmd", "status", "command: keys|state|status")
		sid    = flag.Uint("sid", 0, "service id")
		client = flag.String("client", "ctl", "descrambler name")
		kind   = flag.String("kind", "csa", "cipher kind for keys")
		even   = flag.String("even", "", "even control word (hex), empty keeps it")
		odd    = flag.String("odd", "", "odd control word (hex), empty keeps it")
		state  = flag.String("state", "forbidden", "key state for state")
	)
	flag.Parse()

	cc, err := cwfeed.Dial(*addr)
	if err != nil {
		fail(err)
	}
	defer cc.Close()
	c := cwfeed.NewClient(cc)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	switch *cmd {
	case "keys":
		k, err := descrambler.ParseKind(*kind)
		if err != nil {
			fail(err)
		}
		r := cwfeed.Record{SID: uint16(*sid), Client: *client, Kind: k}
		if *even != "" {
			r.Even = descrambler.ParseKey(*even, k.KeySize())
		}
		if *odd != "" {
			r.Odd = descrambler.ParseKey(*odd, k.KeySize())
		}
		if err := c.SetKeys(ctx, r); err != nil {
			fail(err)
		}
		fmt.Println("keys installed")
	case "state":
		st, err := descrambler.ParseKeyState(*state)
		if err != nil {
			fail(err)
		}
		if err := c.SetState(ctx, cwfeed.StateRecord{SID: uint16(*sid), Client: *client, State: st}); err != nil {
			fail(err)
		}
		fmt.Println("state set")
	case "status":
		list, err := c.Status(ctx)
		if err != nil {
			fail(err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SERVICE\tPENDING\tDESCRAMBLER\tSTATE\tKIND")
		for _, s := range list {
			if len(s.Descramblers) == 0 {
				fmt.Fprintf(tw, "%d\t%d\t-\t-\t-\n", s.SID, s.Pending)
			}
			for _, d := range s.Descramblers {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", s.SID, s.Pending, d.Name, d.State, d.Kind)
			}
		}
		tw.Flush()
	default:
		fail(fmt.Errorf("unknown cmd %q", *cmd))
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
