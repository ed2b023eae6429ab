package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"remitlend/crypto"
	"remitlend/gateway/middleware"
	nativecommon "remitlend/native/common"
)

const maxRequestBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeProtocolError renders an error returned by the protocol. Rejections
// carry their message; anything else is reported without detail.
func writeProtocolError(w http.ResponseWriter, err error) {
	code := nativecommon.Reason(err)
	status := statusFor(code)
	msg := err.Error()
	if !nativecommon.IsRejection(err) {
		msg = "internal error"
	}
	writeError(w, status, code, msg)
}

// statusFor maps a rejection code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case "unauthorized", "not_borrower", "not_collateral_owner", "borrower_mismatch":
		return http.StatusForbidden
	case "loan_not_found", "collateral_not_found", "verification_not_found", "loan_not_monitored":
		return http.StatusNotFound
	case "already_initialized", "already_processed", "already_monitored", "verification_pending",
		"collateral_staked", "collateral_bound", "collateral_inactive", "collateral_mismatch",
		"loan_not_active", "loan_not_pending", "reentrant_call":
		return http.StatusConflict
	case "insufficient_balance", "insufficient_allowance", "insufficient_deposit", "insufficient_liquidity":
		return http.StatusUnprocessableEntity
	case "module_paused", "not_initialized":
		return http.StatusServiceUnavailable
	case "invariant_violation", "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// requireCaller returns the authenticated caller or writes 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || caller.Address.IsZero() {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authenticated caller required")
		return crypto.Address{}, false
	}
	return caller.Address, true
}

func parseAmount(w http.ResponseWriter, raw string) (*uint256.Int, bool) {
	amount, err := nativecommon.ParseAmount(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a base-10 integer string")
		return nil, false
	}
	return amount, true
}

func parseAddress(w http.ResponseWriter, raw, field string) (crypto.Address, bool) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", fmt.Sprintf("%s: %v", field, err))
		return crypto.Address{}, false
	}
	return addr, true
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) (crypto.Address, bool) {
	return parseAddress(w, chi.URLParam(r, param), param)
}

func pathUint(w http.ResponseWriter, r *http.Request, param string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(chi.URLParam(r, param)), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", fmt.Sprintf("%s must be an unsigned integer", param))
		return 0, false
	}
	return v, true
}

func queryUint(r *http.Request, key string) (*uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an unsigned integer", key)
	}
	return &v, nil
}
