package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/tvcsa/descrambler"
	"github.com/observe-l/tvcsa/internal/tsheader"
)

func TestDispatchStopsReaderWhenWorkerFails(t *testing.T) {
	// service 5 has a queue but was never started, so its worker fails on
	// the first batch
	p := &pipeline{
		reg:    descrambler.NewRegistry(descrambler.Options{}),
		byPID:  map[uint16]uint16{0x100: 5},
		queues: map[uint16]chan []byte{5: make(chan []byte, queueDepth)},
	}
	pkt, err := tsheader.Build(tsheader.Header{PID: 0x100, Payload: true}, nil, make([]byte, 184))
	require.NoError(t, err)

	routed := 0
	read := func(ctx context.Context) error {
		for {
			if err := p.route(ctx, pkt); err != nil {
				return err
			}
			routed++
		}
	}
	done := make(chan error, 1)
	go func() { done <- p.dispatch(context.Background(), read) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, descrambler.ErrUnknownService)
		assert.LessOrEqual(t, routed, queueDepth+1)
	case <-time.After(5 * time.Second):
		t.Fatal("reader still blocked after its worker failed")
	}
}

func TestDispatchReturnsReaderError(t *testing.T) {
	reg := descrambler.NewRegistry(descrambler.Options{})
	reg.Start(descrambler.ServiceInfo{SID: 5})
	p := &pipeline{
		reg:    reg,
		byPID:  map[uint16]uint16{0x100: 5},
		queues: map[uint16]chan []byte{5: make(chan []byte, queueDepth)},
	}
	err := p.dispatch(context.Background(), func(ctx context.Context) error { return context.DeadlineExceeded })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
