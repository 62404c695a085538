package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/observe-l/tvcsa/csa"
	"github.com/observe-l/tvcsa/descrambler"
	"github.com/observe-l/tvcsa/internal/config"
	"github.com/observe-l/tvcsa/internal/cwfeed"
	tvlog "github.com/observe-l/tvcsa/internal/log"
	"github.com/observe-l/tvcsa/internal/tsfec"
	"github.com/observe-l/tvcsa/internal/tsheader"
	"github.com/observe-l/tvcsa/internal/tsio"
)

const (
	readPackets = 64
	queueDepth  = 16
)

// output serialises writes from the service pipelines and the clear
// pass-through.
type output struct {
	mu  deadlock.Mutex
	w   *tsio.Writer
	err error
}

func (o *output) write(b []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err == nil {
		_, o.err = o.w.Write(b)
	}
}

func (o *output) Deliver(_ uint16, pkts []byte) { o.write(pkts) }

func (o *output) flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	return o.w.Flush()
}

type pipeline struct {
	cfg     *config.Config
	log     *logrus.Entry
	reg     *descrambler.Registry
	out     *output
	dropped *prometheus.CounterVec

	byPID  map[uint16]uint16
	queues map[uint16]chan []byte
}

func runPipeline(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	log, err := tvlog.NewLogger(cfg.Log, version)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvcsa",
		Subsystem: "input",
		Name:      "dropped_packets_total",
		Help:      "Service packets discarded before descrambling.",
	}, []string{"reason"})
	promReg.MustRegister(dropped)

	var tracer *descrambler.Tracer
	if cfg.Engine.Trace != "" {
		f, err := os.Create(cfg.Engine.Trace)
		if err != nil {
			return err
		}
		defer f.Close()
		tracer = descrambler.NewTracer(f)
	}

	w, closeOut, err := openOutput(cfg.Output.Path)
	if err != nil {
		return err
	}
	defer closeOut()
	out := &output{w: tsio.NewWriter(w)}

	clients, err := constCWClients(cfg.ConstCW, log)
	if err != nil {
		return err
	}
	reg := descrambler.NewRegistry(descrambler.Options{
		Sink:            out,
		Width:           csa.Width(cfg.Engine.Width),
		ClusterMultiple: cfg.Engine.ClusterMultiple,
		Metrics:         descrambler.NewMetrics(promReg),
		Tracer:          tracer,
		Logger:          log,
	}, clients...)

	p := &pipeline{
		cfg:     cfg,
		log:     log,
		reg:     reg,
		out:     out,
		dropped: dropped,
		byPID:   make(map[uint16]uint16),
		queues:  make(map[uint16]chan []byte),
	}
	for _, sc := range cfg.Services {
		reg.Start(serviceInfo(sc))
		for _, pid := range sc.PIDs {
			p.byPID[pid] = sc.SID
		}
		p.queues[sc.SID] = make(chan []byte, queueDepth)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}
	if cfg.CWFeed.Listen != "" {
		ln, err := net.Listen("tcp", cfg.CWFeed.Listen)
		if err != nil {
			return err
		}
		gs := grpc.NewServer()
		cwfeed.NewServer(reg, log).Register(gs)
		log.Infof("control word feed listening on %s", ln.Addr())
		g.Go(func() error { return gs.Serve(ln) })
		g.Go(func() error {
			<-gctx.Done()
			gs.Stop()
			return nil
		})
	}

	g.Go(func() error {
		defer stop()
		err := p.dispatch(gctx, p.read)
		reg.DrainAll()
		for _, sid := range reg.Services() {
			reg.Stop(sid)
		}
		if ferr := out.flush(); err == nil {
			err = ferr
		}
		return err
	})
	err = g.Wait()
	if tracer != nil && err == nil {
		err = tracer.Err()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func serviceInfo(sc config.ServiceConfig) descrambler.ServiceInfo {
	info := descrambler.ServiceInfo{SID: sc.SID, TSID: sc.TSID}
	if sc.ForceCAID != "" {
		info.ForceCAID = descrambler.CAIDByName(sc.ForceCAID)
	}
	info.CAIDs = lo.Map(sc.CAIDs, func(c config.CAIDConfig, _ int) descrambler.CAID {
		return descrambler.CAID{ID: descrambler.CAIDByName(c.ID), Provider: c.Provider}
	})
	return info
}

func constCWClients(list []config.ConstCWConfig, log *logrus.Entry) ([]descrambler.Client, error) {
	var clients []descrambler.Client
	for _, c := range list {
		kind := descrambler.KindCSA
		if c.Kind != "" {
			k, err := descrambler.ParseKind(c.Kind)
			if err != nil {
				return nil, err
			}
			kind = k
		}
		cw, err := descrambler.NewConstCW(c.Name, kind, descrambler.CAIDByName(c.CAID), c.Provider, c.TSID, c.SID, c.KeyEven, c.KeyOdd)
		if err != nil {
			return nil, err
		}
		cw.Logger = log
		clients = append(clients, cw)
	}
	return clients, nil
}

// dispatch runs one worker per service queue and feeds them with read. A
// failing worker cancels the context read and route run under, so the
// reader never blocks on a queue nobody drains. The worker error wins over
// the reader's.
func (p *pipeline) dispatch(ctx context.Context, read func(context.Context) error) error {
	workers, wctx := errgroup.WithContext(ctx)
	for sid, q := range p.queues {
		workers.Go(func() error { return p.serve(sid, q) })
	}
	rerr := read(wctx)
	for _, q := range p.queues {
		close(q)
	}
	if err := workers.Wait(); err != nil {
		return err
	}
	return rerr
}

// read feeds the input to route until it ends or ctx is done.
func (p *pipeline) read(ctx context.Context) error {
	if p.cfg.Input.UDP != "" {
		return p.readUDP(ctx)
	}
	in := os.Stdin
	if path := p.cfg.Input.Path; path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	r := tsio.NewReader(in)
	buf := make([]byte, readPackets*tsheader.PacketSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if rerr := p.route(ctx, buf[:n]); rerr != nil {
				return rerr
			}
		}
		if errors.Is(err, io.EOF) {
			if s := r.Skipped(); s > 0 {
				p.log.Warnf("skipped %d bytes while resynchronising", s)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (p *pipeline) readUDP(ctx context.Context) error {
	src, err := tsio.ListenUDP(p.cfg.Input.UDP, p.cfg.Input.Interface, 1024)
	if err != nil {
		return err
	}
	defer src.Close()
	p.log.Infof("receiving on %s", src.LocalAddr())

	var dec *tsfec.Decoder
	if p.cfg.Input.FEC.Enabled {
		dec = tsfec.NewDecoder(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(gctx) })
	g.Go(func() error {
		for {
			dg, err := src.Next(gctx)
			if err != nil {
				return err
			}
			if dec != nil {
				data, ok, err := dec.Add(dg)
				if err != nil {
					p.log.WithError(err).Debug("bad fec datagram")
					continue
				}
				if !ok {
					continue
				}
				dg = data
			}
			dg = dg[:len(dg)-len(dg)%tsheader.PacketSize]
			if err := p.route(gctx, dg); err != nil {
				return err
			}
		}
	})
	err = g.Wait()
	if dec != nil {
		p.log.Infof("fec: %d blocks recovered, %d lost", dec.Recovered, dec.Lost)
	}
	if d := src.Dropped(); d > 0 {
		p.log.Warnf("%d datagrams dropped by a full queue", d)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// route splits pkts by service. Packets of no configured service pass
// through unchanged.
func (p *pipeline) route(ctx context.Context, pkts []byte) error {
	var clear []byte
	batches := make(map[uint16][]byte)
	for off := 0; off+tsheader.PacketSize <= len(pkts); off += tsheader.PacketSize {
		pkt := pkts[off : off+tsheader.PacketSize]
		sid, ok := p.byPID[tsheader.PID(pkt)]
		if !ok {
			clear = append(clear, pkt...)
			continue
		}
		batches[sid] = append(batches[sid], pkt...)
	}
	if len(clear) > 0 {
		p.out.write(clear)
	}
	for sid, b := range batches {
		select {
		case p.queues[sid] <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *pipeline) serve(sid uint16, q <-chan []byte) error {
	for b := range q {
		outcome, err := p.reg.Descramble(sid, b)
		if err != nil {
			return err
		}
		n := float64(len(b) / tsheader.PacketSize)
		switch outcome {
		case descrambler.OutcomePending:
			p.dropped.WithLabelValues("pending").Add(n)
		case descrambler.OutcomeForbidden:
			p.dropped.WithLabelValues("forbidden").Add(n)
		}
	}
	return nil
}
