package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"transitquery/internal/logging"
	"transitquery/internal/reply"
)

// ResponseModel is the envelope of every API response.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	// ErrorCode is set when a query failed without any result.
	ErrorCode string `json:"errorCode,omitempty"`
	Data      any    `json:"data"`
}

func (api *RestAPI) newResponse(code int, text string, data any) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: api.Clock.Now().UnixMilli(),
		Text:        text,
		Data:        data,
	}
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response ResponseModel) {
	setJSONResponseType(&w)
	if response.Code != 0 && response.Code != http.StatusOK {
		w.WriteHeader(response.Code)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		api.serverErrorResponse(r, err)
	}
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusNotFound, "resource not found")
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	if code == http.StatusBadRequest {
		setOutcome(r, outcomeInvalid)
	}
	api.sendResponse(w, r, api.newResponse(code, message, nil))
}

// serverErrorResponse logs a response that could not be written. The
// status line has already been sent at that point.
func (api *RestAPI) serverErrorResponse(r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "failed to write response", err,
		slog.String("path", r.URL.Path))
}

func setJSONResponseType(w *http.ResponseWriter) {
	(*w).Header().Set("Content-Type", "application/json")
}

// queryReply is the read side of a reply.
type queryReply[T any] interface {
	Wait(ctx context.Context) error
	Result() []T
	ErrorCode() reply.ErrorCode
	ErrorMessage() string
}

// statusFor maps the error code of a reply without results to an HTTP
// status.
func statusFor(code reply.ErrorCode) int {
	switch code {
	case reply.NotFoundError:
		return http.StatusNotFound
	case reply.NetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// queryContext bounds a query started for r by the configured timeout.
func (api *RestAPI) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	if api.Config.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), api.Config.RequestTimeout)
}

// sendReply waits for rep to finish and writes its results. A reply
// with results is a success even if some backends failed. An empty answer
// is sent but kept out of client caches.
func sendReply[T any](ctx context.Context, api *RestAPI, w http.ResponseWriter, r *http.Request, rep queryReply[T]) {
	if err := rep.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			setOutcome(r, outcomeTimeout)
			api.sendError(w, r, http.StatusGatewayTimeout, "query timed out")
			return
		}
		// client went away
		return
	}

	results := rep.Result()
	code := rep.ErrorCode()
	if len(results) == 0 && code != reply.NoError {
		setOutcome(r, code.String())
		response := api.newResponse(statusFor(code), rep.ErrorMessage(), nil)
		response.ErrorCode = code.String()
		api.sendResponse(w, r, response)
		return
	}

	if len(results) == 0 {
		setOutcome(r, outcomeEmpty)
		markUncacheable(w)
	} else {
		setOutcome(r, outcomeResults)
	}
	api.sendResponse(w, r, api.newResponse(http.StatusOK, "OK", results))
}
