package server

import (
	"reflect"

	"github.com/pkg/errors"

	"rpccore/calls"
	"rpccore/future"
	"rpccore/types"
)

// serviceMethod exposes one reflected receiver method as a calls.MethodSimple.
type serviceMethod struct {
	rcvr      reflect.Value
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// scanService collects the exported methods of rcvr shaped like
// func (*T) Name(args *Args, reply *Reply) error, keyed by "T.Name".
func scanService(rcvr any) (map[string]*serviceMethod, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, errors.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	val := reflect.ValueOf(rcvr)
	serviceName := typ.Elem().Name()
	methods := make(map[string]*serviceMethod)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1).Kind() != reflect.Ptr || mt.In(2).Kind() != reflect.Ptr {
			continue
		}
		methods[serviceName+"."+method.Name] = &serviceMethod{
			rcvr:      val,
			method:    method,
			ArgType:   mt.In(1).Elem(),
			ReplyType: mt.In(2).Elem(),
		}
	}
	if len(methods) == 0 {
		return nil, errors.Errorf("rpc: %s has no methods of the form func(*Args, *Reply) error", serviceName)
	}
	return methods, nil
}

// Call decodes params into a fresh Args, invokes the method and encodes Reply.
// The reflected method runs inline, so the future is settled on return.
func (s *serviceMethod) Call(params types.Params) future.Future[types.Value] {
	argv := reflect.New(s.ArgType)
	if !params.IsNone() {
		if err := params.Parse(argv.Interface()); err != nil {
			return future.Failed[types.Value](err)
		}
	}
	replyv := reflect.New(s.ReplyType)

	results := s.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if errIface := results[0].Interface(); errIface != nil {
		return future.Failed[types.Value](errIface.(error))
	}
	return future.FromResult(types.NewValue(replyv.Interface()))
}

var _ calls.MethodSimple = (*serviceMethod)(nil)

// RegisterService registers every method of rcvr that matches
// func(*Args, *Reply) error as a simple method named "Type.Method".
func (svr *Server[M]) RegisterService(rcvr any) error {
	methods, err := scanService(rcvr)
	if err != nil {
		return err
	}
	for name, m := range methods {
		svr.AddMethodSimple(name, m)
	}
	return nil
}
