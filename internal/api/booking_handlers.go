package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/booking"
	"github.com/hackgods/tutor-booking/internal/session"
)

// resultStatus serves a business rejection (success=false) as 409.
func resultStatus(success bool, ok int) int {
	if success {
		return ok
	}
	return http.StatusConflict
}

func initiateHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InitiateRequest
		if !decode(w, r, &req) {
			return
		}

		res, err := orch.Initiate(r.Context(), booking.InitiateRequest{
			StudentID:    req.StudentID,
			InstructorID: req.InstructorID,
			SlotID:       req.SlotID,
			RuleID:       req.RuleID,
			StartAt:      req.StartAt.UTC(),
			LessonType:   session.Type(req.LessonType),
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, resultStatus(res.Success, http.StatusCreated), initiateResponse(res))
	}
}

func confirmHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmRequest
		if !decode(w, r, &req) {
			return
		}

		res, err := orch.Confirm(r.Context(), booking.ConfirmRequest{
			PaymentID:        req.PaymentID,
			StudentID:        req.StudentID,
			GatewayOrderID:   req.GatewayOrderID,
			GatewayPaymentID: req.GatewayPaymentID,
			Signature:        req.Signature,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, resultStatus(res.Success, http.StatusOK), confirmResponse(res))
	}
}

func getPaymentHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		pay, err := orch.GetPayment(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentResponse(pay))
	}
}

func cancelPaymentHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		var req CancelPaymentRequest
		if !decode(w, r, &req) {
			return
		}

		pay, err := orch.CancelPayment(r.Context(), id, req.StudentID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, paymentResponse(pay))
	}
}

func getSessionHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return sessionActionHandler(orch.GetSession)
}

func listSessionsHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		from, err := queryTime(r, "from", time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := queryTime(r, "to", from.AddDate(0, 0, defaultAvailabilityDays))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		list, err := orch.ListSessions(r.Context(), instructorID, from.UTC(), to.UTC())
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]SessionResponse, 0, len(list))
		for i := range list {
			resp = append(resp, sessionResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func sessionActionHandler(fn func(ctx context.Context, id uuid.UUID) (*session.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		sess, err := fn(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(sess))
	}
}

func cancelSessionHandler(orch *booking.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		var req CancelSessionRequest
		if !decode(w, r, &req) {
			return
		}

		res, err := orch.CancelSession(r.Context(), booking.CancelSessionRequest{
			SessionID: id,
			ActorID:   req.ActorID,
			Reason:    req.Reason,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := CancelSessionResponse{Session: sessionResponse(res.Session), Warning: res.Warning}
		if res.Payment != nil {
			pay := paymentResponse(res.Payment)
			resp.Payment = &pay
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
