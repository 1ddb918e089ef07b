package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/tutor-booking/internal/schedule"
)

// defaultAvailabilityDays is the range served when the caller omits "to".
const defaultAvailabilityDays = 7

func urlID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryTime(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func availabilityHandler(svc *schedule.Service) http.HandlerFunc {
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

		slots, err := svc.AvailableSlots(r.Context(), instructorID, from.UTC(), to.UTC())
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]AvailableSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, AvailableSlotResponse{
				SlotID:          s.SlotID,
				RuleID:          s.RuleID,
				StartAt:         s.StartAt,
				EndAt:           s.EndAt,
				DurationMinutes: s.DurationMinutes,
				Generated:       s.Generated,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listRulesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

		rules, err := svc.ListRules(r.Context(), instructorID, activeOnly)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]RuleResponse, 0, len(rules))
		for i := range rules {
			resp = append(resp, ruleResponse(&rules[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		var req RuleRequest
		if !decode(w, r, &req) {
			return
		}
		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		rule, err := svc.CreateRule(r.Context(), instructorID, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ruleResponse(rule))
	}
}

func updateRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		var req RuleRequest
		if !decode(w, r, &req) {
			return
		}
		in, err := req.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}

		rule, err := svc.UpdateRule(r.Context(), id, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ruleResponse(rule))
	}
}

func idActionHandler(fn func(ctx context.Context, id uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		if err := fn(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteRuleHandler(svc *schedule.Service) http.HandlerFunc {
	return idActionHandler(svc.DeleteRule)
}

func createSlotHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		var req WindowRequest
		if !decode(w, r, &req) {
			return
		}

		slot, err := svc.CreateSlot(r.Context(), instructorID, req.window())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, slotResponse(slot))
	}
}

func getSlotHandler(svc *schedule.Service) http.HandlerFunc {
	return slotActionHandler(svc.GetSlot)
}

func slotActionHandler(fn func(ctx context.Context, id uuid.UUID) (*schedule.BookingSlot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		slot, err := fn(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slotResponse(slot))
	}
}

func resizeSlotHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlID(w, r, "id")
		if !ok {
			return
		}
		var req WindowRequest
		if !decode(w, r, &req) {
			return
		}

		slot, err := svc.ResizeSlot(r.Context(), id, req.window())
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, slotResponse(slot))
	}
}

func deleteSlotHandler(svc *schedule.Service) http.HandlerFunc {
	return idActionHandler(svc.DeleteSlot)
}

func createTimeOffHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		var req TimeOffRequest
		if !decode(w, r, &req) {
			return
		}

		t := &schedule.TimeOff{
			InstructorID: instructorID,
			StartAt:      req.StartAt.UTC(),
			EndAt:        req.EndAt.UTC(),
			Reason:       req.Reason,
			IsRecurring:  req.IsRecurring,
		}
		if req.RecurrenceDay != nil {
			d := time.Weekday(*req.RecurrenceDay)
			t.RecurrenceDay = &d
		}
		if err := svc.CreateTimeOff(r.Context(), t); err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, timeOffResponse(t))
	}
}

func listTimeOffHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instructorID, ok := urlID(w, r, "instructorID")
		if !ok {
			return
		}
		list, err := svc.ListTimeOff(r.Context(), instructorID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]TimeOffResponse, 0, len(list))
		for i := range list {
			resp = append(resp, timeOffResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteTimeOffHandler(svc *schedule.Service) http.HandlerFunc {
	return idActionHandler(svc.DeleteTimeOff)
}
