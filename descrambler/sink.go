package descrambler

//go:generate go run go.uber.org/mock/mockgen -package descrambler -destination mock_sink_test.go github.com/observe-l/tvcsa/descrambler Sink

// Sink receives descrambled packets in arrival order. pkts is only valid
// for the duration of the call.
type Sink interface {
	Deliver(service uint16, pkts []byte)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(service uint16, pkts []byte)

func (f SinkFunc) Deliver(service uint16, pkts []byte) { f(service, pkts) }

var discard = SinkFunc(func(uint16, []byte) {})
