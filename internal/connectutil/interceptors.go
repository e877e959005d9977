package connectutil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/security"
	connectInterceptors "github.com/pitabwire/frame/security/interceptors/connect"
	securityhttp "github.com/pitabwire/frame/security/interceptors/httptor"
)

// HandlerOptions returns the handler options for a JSON connect service.
// With a nil authenticator only logging is installed; otherwise frame's
// security chain runs before it.
func HandlerOptions(ctx context.Context, authenticator security.Authenticator) ([]connect.HandlerOption, error) {
	interceptors := []connect.Interceptor{}
	if authenticator != nil {
		chain, err := connectInterceptors.DefaultList(ctx, authenticator)
		if err != nil {
			return nil, err
		}
		interceptors = append(interceptors, chain...)
	}
	interceptors = append(interceptors, NewLoggingInterceptor())

	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(interceptors...),
	}, nil
}

// HTTPMiddleware guards REST endpoints with frame's bearer token check. A nil
// authenticator leaves handler unchanged.
func HTTPMiddleware(handler http.Handler, authenticator security.Authenticator) http.Handler {
	if authenticator == nil {
		return handler
	}
	return securityhttp.AuthenticationMiddleware(handler, authenticator)
}

// ClientOptions returns the options for clients of a JSON connect service.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(NewLoggingInterceptor()),
	}
}

// ConversationHeader lets callers tag RPCs with the conversation they act on.
const ConversationHeader = "X-Conversation-Id"

type loggingInterceptor struct{}

// NewLoggingInterceptor logs procedure, duration and error of every call.
func NewLoggingInterceptor() connect.Interceptor {
	return &loggingInterceptor{}
}

func (l *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		attrs := []any{
			slog.String("procedure", req.Spec().Procedure),
			slog.Duration("duration", time.Since(start)),
		}
		if conv := req.Header().Get(ConversationHeader); conv != "" {
			attrs = append(attrs, slog.String("conversation_id", conv))
		}
		if err != nil {
			attrs = append(attrs, slog.String("code", connect.CodeOf(err).String()), slog.String("error", err.Error()))
			slog.WarnContext(ctx, "rpc error", attrs...)
		} else {
			slog.DebugContext(ctx, "rpc ok", attrs...)
		}
		return resp, err
	}
}

func (l *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (l *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		attrs := []any{
			slog.String("procedure", conn.Spec().Procedure),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("streaming", true),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			slog.WarnContext(ctx, "rpc stream error", attrs...)
		}
		return err
	}
}
