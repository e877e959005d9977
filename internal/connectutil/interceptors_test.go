package connectutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
)

var errEmpty = errors.New("text is required")

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

func TestHandlerOptionsWithoutAuthenticator(t *testing.T) {
	opts, err := HandlerOptions(t.Context(), nil)
	if err != nil {
		t.Fatalf("HandlerOptions: %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("len(opts) = %d, want 2", len(opts))
	}
}

func TestHTTPMiddlewareWithoutAuthenticator(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	HTTPMiddleware(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestJSONCodecRoundTripOverConnect(t *testing.T) {
	opts, err := HandlerOptions(t.Context(), nil)
	if err != nil {
		t.Fatalf("HandlerOptions: %v", err)
	}
	const procedure = "/test.v1.EchoService/Echo"
	mux := http.NewServeMux()
	mux.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(_ context.Context, req *connect.Request[echoRequest]) (*connect.Response[echoResponse], error) {
			if req.Msg.Text == "" {
				return nil, connect.NewError(connect.CodeInvalidArgument, errEmpty)
			}
			return connect.NewResponse(&echoResponse{Text: req.Msg.Text, Count: len(req.Msg.Text)}), nil
		}, opts...))
	srv := httptest.NewServer(H2CHandler(mux))
	defer srv.Close()

	client := connect.NewClient[echoRequest, echoResponse](srv.Client(), srv.URL+procedure, ClientOptions()...)
	resp, err := client.CallUnary(t.Context(), connect.NewRequest(&echoRequest{Text: "hello"}))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if resp.Msg.Text != "hello" || resp.Msg.Count != 5 {
		t.Errorf("response = %+v", resp.Msg)
	}

	_, err = client.CallUnary(t.Context(), connect.NewRequest(&echoRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want invalid_argument", connect.CodeOf(err))
	}
}

func TestJSONCodecEmptyBody(t *testing.T) {
	var msg echoRequest
	if err := (JSONCodec{}).Unmarshal(nil, &msg); err != nil {
		t.Errorf("Unmarshal(nil) = %v", err)
	}
	if err := (JSONCodec{}).Unmarshal([]byte("{"), &msg); err == nil {
		t.Error("expected error for malformed body")
	}
}
