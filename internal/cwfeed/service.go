package cwfeed

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/observe-l/tvcsa/descrambler"
)

const (
	serviceName    = "tvcsa.cwfeed.CWFeed"
	methodSetKeys  = "/" + serviceName + "/SetKeys"
	methodSetState = "/" + serviceName + "/SetState"
	methodStatus   = "/" + serviceName + "/Status"
)

// Registry is the part of descrambler.Registry the feed drives.
type Registry interface {
	Keys(sid uint16, name string, k descrambler.Kind, even, odd []byte) error
	SetKeyState(sid uint16, name string, st descrambler.KeyState) error
	Services() []uint16
	Service(sid uint16) (*descrambler.Service, bool)
}

// FeedServer is the server side of the CWFeed service.
type FeedServer interface {
	SetKeys(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	SetState(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// Server forwards feed requests to a registry.
type Server struct {
	reg Registry
	log *logrus.Entry
}

func NewServer(reg Registry, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{reg: reg, log: log.WithField("subsystem", "cwfeed")}
}

// Register installs the service on g.
func (s *Server) Register(g *grpc.Server) { g.RegisterService(&serviceDesc, s) }

func (s *Server) SetKeys(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var r Record
	if err := r.Unmarshal(in.GetValue()); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.log.WithFields(logrus.Fields{"service": r.SID, "client": r.Client}).Debugf("%s keys", r.Kind)
	if err := s.reg.Keys(r.SID, r.Client, r.Kind, r.Even, r.Odd); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) SetState(_ context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var r StateRecord
	if err := r.Unmarshal(in.GetValue()); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.reg.SetKeyState(r.SID, r.Client, r.State); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) Status(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	var list []ServiceStatus
	for _, sid := range s.reg.Services() {
		svc, ok := s.reg.Service(sid)
		if !ok {
			continue
		}
		list = append(list, ServiceStatus{SID: sid, Pending: svc.Pending(), Descramblers: svc.Descramblers()})
	}
	return wrapperspb.Bytes(MarshalStatus(list)), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, descrambler.ErrUnknownService):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, descrambler.ErrKindBusy):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, descrambler.ErrUnknownKind), errors.Is(err, descrambler.ErrKeySize), errors.Is(err, descrambler.ErrNoKind):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SetKeys", Handler: setKeysHandler},
		{MethodName: "SetState", Handler: setStateHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cwfeed",
}

func setKeysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).SetKeys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSetKeys}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).SetKeys(ctx, req.(*wrapperspb.BytesValue))
	})
}

func setStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).SetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSetState}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).SetState(ctx, req.(*wrapperspb.BytesValue))
	})
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).Status(ctx, req.(*emptypb.Empty))
	})
}

// Client talks to a CWFeed server.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.Dial(addr, opts...)
}

func (c *Client) SetKeys(ctx context.Context, r Record) error {
	return c.cc.Invoke(ctx, methodSetKeys, wrapperspb.Bytes(r.Marshal()), new(emptypb.Empty))
}

func (c *Client) SetState(ctx context.Context, r StateRecord) error {
	return c.cc.Invoke(ctx, methodSetState, wrapperspb.Bytes(r.Marshal()), new(emptypb.Empty))
}

func (c *Client) Status(ctx context.Context) ([]ServiceStatus, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodStatus, new(emptypb.Empty), out); err != nil {
		return nil, err
	}
	return UnmarshalStatus(out.GetValue())
}
