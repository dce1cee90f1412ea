package grpccomm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName   = "gridflow.v1.Exchange"
	deliverMethod = "/" + serviceName + "/Deliver"

	// sourceHeader carries the sending rank.
	sourceHeader = "gridflow-source-rank"
)

// exchangeServer is the server side of gridflow.v1.Exchange.
type exchangeServer interface {
	Deliver(ctx context.Context, frame *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(exchangeServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(exchangeServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gridflow/v1/exchange.proto",
}

// deliver invokes Deliver on conn.
func deliver(ctx context.Context, conn grpc.ClientConnInterface, data []byte) error {
	return conn.Invoke(ctx, deliverMethod, wrapperspb.Bytes(data), new(emptypb.Empty))
}

// retryServiceConfig retries Deliver when the peer is briefly unavailable.
const retryServiceConfig = `{
  "methodConfig": [{
    "name": [{"service": "gridflow.v1.Exchange"}],
    "retryPolicy": {
      "maxAttempts": 4,
      "initialBackoff": "0.1s",
      "maxBackoff": "1s",
      "backoffMultiplier": 2.0,
      "retryableStatusCodes": ["UNAVAILABLE"]
    }
  }]
}`
