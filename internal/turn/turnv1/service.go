// Package turnv1 defines the botservice.turn.v1.TurnService connect service.
// Messages are plain structs carried by the JSON codec in connectutil.
package turnv1

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/Anmol9893/botservice/internal/connectutil"
	"github.com/Anmol9893/botservice/pkg/bot"
	"github.com/Anmol9893/botservice/pkg/dialog"
)

// ServiceName is the fully-qualified name of the TurnService.
const ServiceName = "botservice.turn.v1.TurnService"

// Procedure paths.
const (
	ProcessTurnProcedure       = "/" + ServiceName + "/ProcessTurn"
	GetConversationProcedure   = "/" + ServiceName + "/GetConversation"
	ResetConversationProcedure = "/" + ServiceName + "/ResetConversation"
)

type ProcessTurnRequest struct {
	Activity dialog.Activity `json:"activity"`
}

type ProcessTurnResponse struct {
	ConversationID string         `json:"conversation_id"`
	Replies        []dialog.Reply `json:"replies"`
	Stack          []dialog.ID    `json:"stack"`
	Action         string         `json:"action,omitempty"`
	Failed         bool           `json:"failed,omitempty"`
}

type GetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type GetConversationResponse struct {
	Conversation *bot.Conversation `json:"conversation"`
}

type ResetConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ResetConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// TurnServiceHandler is implemented by the service.
type TurnServiceHandler interface {
	ProcessTurn(context.Context, *connect.Request[ProcessTurnRequest]) (*connect.Response[ProcessTurnResponse], error)
	GetConversation(context.Context, *connect.Request[GetConversationRequest]) (*connect.Response[GetConversationResponse], error)
	ResetConversation(context.Context, *connect.Request[ResetConversationRequest]) (*connect.Response[ResetConversationResponse], error)
}

// NewTurnServiceHandler returns the mount path and handler for svc. The JSON
// codec is always installed.
func NewTurnServiceHandler(svc TurnServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(connectutil.JSONCodec{})}, opts...)

	processTurn := connect.NewUnaryHandler(ProcessTurnProcedure, svc.ProcessTurn, opts...)
	getConversation := connect.NewUnaryHandler(GetConversationProcedure, svc.GetConversation, opts...)
	resetConversation := connect.NewUnaryHandler(ResetConversationProcedure, svc.ResetConversation, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ProcessTurnProcedure:
			processTurn.ServeHTTP(w, r)
		case GetConversationProcedure:
			getConversation.ServeHTTP(w, r)
		case ResetConversationProcedure:
			resetConversation.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// TurnServiceClient calls a remote TurnService.
type TurnServiceClient interface {
	ProcessTurn(context.Context, *connect.Request[ProcessTurnRequest]) (*connect.Response[ProcessTurnResponse], error)
	GetConversation(context.Context, *connect.Request[GetConversationRequest]) (*connect.Response[GetConversationResponse], error)
	ResetConversation(context.Context, *connect.Request[ResetConversationRequest]) (*connect.Response[ResetConversationResponse], error)
}

// NewTurnServiceClient creates a client for the service at baseURL.
func NewTurnServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TurnServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(connectutil.JSONCodec{})}, opts...)
	return &turnServiceClient{
		processTurn:       connect.NewClient[ProcessTurnRequest, ProcessTurnResponse](httpClient, baseURL+ProcessTurnProcedure, opts...),
		getConversation:   connect.NewClient[GetConversationRequest, GetConversationResponse](httpClient, baseURL+GetConversationProcedure, opts...),
		resetConversation: connect.NewClient[ResetConversationRequest, ResetConversationResponse](httpClient, baseURL+ResetConversationProcedure, opts...),
	}
}

type turnServiceClient struct {
	processTurn       *connect.Client[ProcessTurnRequest, ProcessTurnResponse]
	getConversation   *connect.Client[GetConversationRequest, GetConversationResponse]
	resetConversation *connect.Client[ResetConversationRequest, ResetConversationResponse]
}

func (c *turnServiceClient) ProcessTurn(ctx context.Context, req *connect.Request[ProcessTurnRequest]) (*connect.Response[ProcessTurnResponse], error) {
	return c.processTurn.CallUnary(ctx, req)
}

func (c *turnServiceClient) GetConversation(ctx context.Context, req *connect.Request[GetConversationRequest]) (*connect.Response[GetConversationResponse], error) {
	return c.getConversation.CallUnary(ctx, req)
}

func (c *turnServiceClient) ResetConversation(ctx context.Context, req *connect.Request[ResetConversationRequest]) (*connect.Response[ResetConversationResponse], error) {
	return c.resetConversation.CallUnary(ctx, req)
}
