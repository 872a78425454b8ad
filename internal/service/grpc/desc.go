package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC сервиса.
const ServiceName = "grocery.v1.OrderService"

// Имена методов сервиса.
const (
	MethodCreateOrder           = "CreateOrder"
	MethodGetOrder              = "GetOrder"
	MethodTrackOrder            = "TrackOrder"
	MethodListOrders            = "ListOrders"
	MethodCancelOrder           = "CancelOrder"
	MethodUpdateOrderStatus     = "UpdateOrderStatus"
	MethodProcessPayment        = "ProcessPayment"
	MethodGetDigitalBill        = "GetDigitalBill"
	MethodRateOrder             = "RateOrder"
	MethodAssignDeliveryPartner = "AssignDeliveryPartner"
	MethodReportPreparation     = "ReportPreparation"
	MethodReportDelay           = "ReportDelay"
	MethodReportLocation        = "ReportLocation"
	MethodListOrdersByStatus    = "ListOrdersByStatus"
	MethodValidateCard          = "ValidateCard"
	MethodVerifyUpi             = "VerifyUpi"
)

// FullMethod возвращает путь метода в формате "/service/method".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// OrderServiceServer — серверная сторона grocery.v1.OrderService.
// Запросы и ответы передаются как google.protobuf.Struct.
type OrderServiceServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TrackOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateOrderStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessPayment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDigitalBill(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignDeliveryPartner(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReportPreparation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReportDelay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReportLocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrdersByStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateCard(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyUpi(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(OrderServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// OrderServiceDesc описывает сервис для grpc.Server без сгенерированного кода.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodCreateOrder, OrderServiceServer.CreateOrder),
		unaryMethod(MethodGetOrder, OrderServiceServer.GetOrder),
		unaryMethod(MethodTrackOrder, OrderServiceServer.TrackOrder),
		unaryMethod(MethodListOrders, OrderServiceServer.ListOrders),
		unaryMethod(MethodCancelOrder, OrderServiceServer.CancelOrder),
		unaryMethod(MethodUpdateOrderStatus, OrderServiceServer.UpdateOrderStatus),
		unaryMethod(MethodProcessPayment, OrderServiceServer.ProcessPayment),
		unaryMethod(MethodGetDigitalBill, OrderServiceServer.GetDigitalBill),
		unaryMethod(MethodRateOrder, OrderServiceServer.RateOrder),
		unaryMethod(MethodAssignDeliveryPartner, OrderServiceServer.AssignDeliveryPartner),
		unaryMethod(MethodReportPreparation, OrderServiceServer.ReportPreparation),
		unaryMethod(MethodReportDelay, OrderServiceServer.ReportDelay),
		unaryMethod(MethodReportLocation, OrderServiceServer.ReportLocation),
		unaryMethod(MethodListOrdersByStatus, OrderServiceServer.ListOrdersByStatus),
		unaryMethod(MethodValidateCard, OrderServiceServer.ValidateCard),
		unaryMethod(MethodVerifyUpi, OrderServiceServer.VerifyUpi),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grocery/v1/order_service.proto",
}

// RegisterOrderServiceServer регистрирует реализацию на сервере.
func RegisterOrderServiceServer(registrar grpc.ServiceRegistrar, srv OrderServiceServer) {
	registrar.RegisterService(&OrderServiceDesc, srv)
}
