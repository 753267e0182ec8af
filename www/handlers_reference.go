package www

import (
	"net/http"
	"strings"
	"time"

	"linehaul/store"
)

// --- Terminals ---

func (h *Handlers) apiListTerminals(w http.ResponseWriter, r *http.Request) {
	terms, err := h.engine.DB().ListTerminals(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, terms)
}

func (h *Handlers) apiCreateTerminal(w http.ResponseWriter, r *http.Request) {
	var t store.Terminal
	if !h.decode(w, r, &t) {
		return
	}
	if t.Code == "" || t.Name == "" {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "code and name are required")
		return
	}
	if !h.validTimezone(w, t.Timezone) {
		return
	}
	if err := h.engine.DB().CreateTerminal(r.Context(), &t); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, t)
}

func (h *Handlers) apiGetTerminal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.engine.DB().GetTerminal(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, t)
}

func (h *Handlers) apiUpdateTerminal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var t store.Terminal
	if !h.decode(w, r, &t) {
		return
	}
	if !h.validTimezone(w, t.Timezone) {
		return
	}
	t.ID = id
	if err := h.engine.DB().UpdateTerminal(r.Context(), &t); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, t)
}

func (h *Handlers) apiDeleteTerminal(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.DB().DeleteTerminal(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) validTimezone(w http.ResponseWriter, tz string) bool {
	if tz == "" {
		return true
	}
	if _, err := time.LoadLocation(tz); err != nil {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "unknown timezone "+tz)
		return false
	}
	return true
}

// --- Drivers ---

func (h *Handlers) apiListDrivers(w http.ResponseWriter, r *http.Request) {
	terminalID, ok := h.queryID(w, r, "terminal_id")
	if !ok {
		return
	}
	drivers, err := h.engine.DB().ListDrivers(r.Context(), terminalID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, drivers)
}

func (h *Handlers) apiCreateDriver(w http.ResponseWriter, r *http.Request) {
	var d store.Driver
	if !h.decode(w, r, &d) {
		return
	}
	if d.Name == "" {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}
	if !h.validDriverStatus(w, d.Status) {
		return
	}
	term, err := h.engine.DB().GetTerminal(r.Context(), d.TerminalID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	d.TenantID = term.TenantID
	if err := h.engine.DB().CreateDriver(r.Context(), &d); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, d)
}

func (h *Handlers) apiGetDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.engine.DB().GetDriver(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, d)
}

func (h *Handlers) apiUpdateDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.engine.DB().GetDriver(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	d := *existing
	if !h.decode(w, r, &d) {
		return
	}
	if !h.validDriverStatus(w, d.Status) {
		return
	}
	d.ID = id
	if err := h.engine.DB().UpdateDriver(r.Context(), &d); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, d)
}

func (h *Handlers) apiDeleteDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.DB().DeleteDriver(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) validDriverStatus(w http.ResponseWriter, status string) bool {
	switch status {
	case "", store.DriverActive, store.DriverInactive:
		return true
	}
	h.jsonError(w, http.StatusBadRequest, codeBadRequest, "status must be active or inactive")
	return false
}

func (h *Handlers) apiDriverAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")
	if !h.validDate(w, "date", date) {
		return
	}
	avail, err := h.engine.DB().IsDriverAvailable(r.Context(), id, date)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, map[string]any{"driver_id": id, "date": date, "available": avail})
}

func (h *Handlers) apiListTimeOff(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	offs, err := h.engine.DB().ListDriverTimeOff(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, offs)
}

func (h *Handlers) apiAddTimeOff(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var off store.DriverTimeOff
	if !h.decode(w, r, &off) {
		return
	}
	if !h.validDate(w, "start_date", off.StartDate) || !h.validDate(w, "end_date", off.EndDate) {
		return
	}
	if off.EndDate < off.StartDate {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "end_date is before start_date")
		return
	}
	if _, err := h.engine.DB().GetDriver(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	off.DriverID = id
	if err := h.engine.DB().AddDriverTimeOff(r.Context(), &off); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, off)
}

func (h *Handlers) apiDeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	offID, ok := h.pathID(w, r, "offId")
	if !ok {
		return
	}
	if err := h.engine.DB().DeleteDriverTimeOff(r.Context(), offID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Routes ---

func (h *Handlers) apiListRoutes(w http.ResponseWriter, r *http.Request) {
	terminalID, ok := h.queryID(w, r, "terminal_id")
	if !ok {
		return
	}
	routes, err := h.engine.DB().ListRoutes(r.Context(), terminalID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, routes)
}

func (h *Handlers) apiCreateRoute(w http.ResponseWriter, r *http.Request) {
	rt := store.Route{IsActive: true}
	if !h.decode(w, r, &rt) {
		return
	}
	if !h.validRoute(w, &rt) {
		return
	}
	term, err := h.engine.DB().GetTerminal(r.Context(), rt.TerminalID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	rt.TenantID = term.TenantID
	if err := h.engine.DB().CreateRoute(r.Context(), &rt); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, rt)
}

func (h *Handlers) apiGetRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	rt, err := h.engine.DB().GetRoute(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, rt)
}

func (h *Handlers) apiUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.engine.DB().GetRoute(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	rt := *existing
	if !h.decode(w, r, &rt) {
		return
	}
	if !h.validRoute(w, &rt) {
		return
	}
	rt.ID = id
	rt.TenantID = existing.TenantID
	if err := h.engine.DB().UpdateRoute(r.Context(), &rt); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, rt)
}

func (h *Handlers) apiDeleteRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.DB().DeleteRoute(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) validRoute(w http.ResponseWriter, rt *store.Route) bool {
	if rt.Name == "" || rt.TerminalID <= 0 {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "name and terminal_id are required")
		return false
	}
	if rt.DepartureTime != nil && !validClock(*rt.DepartureTime) {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "departure_time must be HH:MM")
		return false
	}
	for _, d := range rt.ActiveDays {
		if !validWeekday(d) {
			h.jsonError(w, http.StatusBadRequest, codeBadRequest, "unknown active day "+d)
			return false
		}
	}
	return true
}

func validWeekday(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if store.WeekdayKey(wd) == s {
			return true
		}
	}
	return false
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func (h *Handlers) validDate(w http.ResponseWriter, field, s string) bool {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, field+" must be YYYY-MM-DD")
		return false
	}
	return true
}

// --- Route stops ---

func (h *Handlers) apiListRouteStops(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	stops, err := h.engine.DB().ListRouteStops(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, stops)
}

func (h *Handlers) apiCreateRouteStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var s store.RouteStop
	if !h.decode(w, r, &s) {
		return
	}
	if s.Sequence <= 0 || s.Name == "" {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "sequence and name are required")
		return
	}
	for _, t := range []*string{s.PlannedETA, s.PlannedETD} {
		if t != nil && !validClock(*t) {
			h.jsonError(w, http.StatusBadRequest, codeBadRequest, "planned times must be HH:MM")
			return
		}
	}
	if _, err := h.engine.DB().GetRoute(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	s.RouteID = id
	if err := h.engine.DB().CreateRouteStop(r.Context(), &s); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, s)
}

func (h *Handlers) apiDeleteRouteStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	stopID, ok := h.pathID(w, r, "stopId")
	if !ok {
		return
	}
	if err := h.engine.DB().DeleteRouteStop(r.Context(), id, stopID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Substitutions ---

func (h *Handlers) apiListSubstitutions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	subs, err := h.engine.DB().ListSubstitutions(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, subs)
}

func (h *Handlers) apiCreateSubstitution(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var s store.RouteSubstitution
	if !h.decode(w, r, &s) {
		return
	}
	if !h.validDate(w, "start_date", s.StartDate) || !h.validDate(w, "end_date", s.EndDate) {
		return
	}
	if s.EndDate < s.StartDate {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "end_date is before start_date")
		return
	}
	if _, err := h.engine.DB().GetRoute(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	s.RouteID = id
	if err := h.engine.DB().CreateSubstitution(r.Context(), &s); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, s)
}

func (h *Handlers) apiDeleteSubstitution(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	subID, ok := h.pathID(w, r, "subId")
	if !ok {
		return
	}
	if err := h.engine.DB().DeleteSubstitution(r.Context(), id, subID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
