package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"solana-ico/internal/ico"
	"solana-ico/internal/storage"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    uint32 `json:"code,omitempty"` // program error code
}

// errorStatus maps the session error taxonomy to HTTP.
func errorStatus(err error) (int, ErrorResponse) {
	var perr *ico.ProgramError
	switch {
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "program_error", Code: perr.Code}
	case errors.Is(err, ico.ErrInvalidAmount):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_amount"}
	case errors.Is(err, ico.ErrWalletNotConnected):
		return http.StatusUnauthorized, ErrorResponse{Error: "wallet_not_connected"}
	case errors.Is(err, ico.ErrSaleNotInitialized):
		return http.StatusNotFound, ErrorResponse{Error: "sale_not_initialized"}
	case errors.Is(err, ico.ErrInsufficientBalance):
		return http.StatusPaymentRequired, ErrorResponse{Error: "insufficient_balance"}
	case errors.Is(err, ico.ErrBusy):
		return http.StatusConflict, ErrorResponse{Error: "busy"}
	case errors.Is(err, ico.ErrConfirmTimeout):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "confirmation_timeout"}
	case errors.Is(err, ico.ErrTransactionFailed):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "transaction_failed"}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found"}
	default:
		return http.StatusBadGateway, ErrorResponse{Error: "upstream_error"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, resp := errorStatus(err)
	resp.Message = ico.UserMessage(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, resp)
}
