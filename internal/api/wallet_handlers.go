package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/money"
	"github.com/hackgods/tutor-booking/internal/wallet"
)

func openWalletHandler(svc *wallet.Service, defaultCurrency string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		var req OpenWalletRequest
		if !decode(w, r, &req) {
			return
		}

		currency := req.Currency
		if currency == "" {
			currency = defaultCurrency
		}

		wal, err := svc.OpenWallet(r.Context(), instructorID, currency)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, walletResponse(wal))
	}
}

func getWalletHandler(svc *wallet.Service) http.HandlerFunc {
	return walletActionHandler(svc.GetWallet)
}

func walletActionHandler(fn func(ctx context.Context, instructorID uuid.UUID) (*wallet.Wallet, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		wal, err := fn(r.Context(), instructorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, walletResponse(wal))
	}
}

func listTransactionsHandler(svc *wallet.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		txs, err := svc.ListTransactions(r.Context(), instructorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]TransactionResponse, 0, len(txs))
		for i := range txs {
			resp = append(resp, transactionResponse(&txs[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// verifyLedgerHandler reports a mismatched trail in the body; only lookup
// and storage failures map to error statuses.
func verifyLedgerHandler(svc *wallet.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		summary, err := svc.VerifyLedger(r.Context(), instructorID)
		if err != nil && !errors.Is(err, wallet.ErrLedgerMismatch) {
			handleError(w, r, err)
			return
		}
		if err != nil {
			LoggerFrom(r.Context()).WithError(err).WithField("instructor_id", instructorID).Error("ledger mismatch")
		}
		writeJSON(w, http.StatusOK, ledgerResponse(summary, err))
	}
}

func requestWithdrawalHandler(svc *wallet.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		var req WithdrawalRequest
		if !decode(w, r, &req) {
			return
		}

		wal, err := svc.GetWallet(r.Context(), instructorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		amount, err := money.Parse(req.Amount, wal.Currency)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
			return
		}

		t, err := svc.RequestWithdrawal(r.Context(), instructorID, amount, req.Description)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, transactionResponse(t))
	}
}

func completeWithdrawalHandler(svc *wallet.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		t, err := svc.CompleteWithdrawal(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transactionResponse(t))
	}
}

func failWithdrawalHandler(svc *wallet.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		var req FailWithdrawalRequest
		if !decode(w, r, &req) {
			return
		}
		t, err := svc.FailWithdrawal(r.Context(), id, req.Reason)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, transactionResponse(t))
	}
}

func reconcileHandler(svc *wallet.Service, defaultLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
				return
			}
			limit = n
		}
		if limit <= 0 {
			limit = 100
		}

		report, err := svc.ReconcileCredits(r.Context(), limit)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ReconcileResponse{
			Attempted: report.Attempted,
			Resolved:  report.Resolved,
			Failed:    report.Failed,
			Skipped:   report.Skipped,
		})
	}
}
