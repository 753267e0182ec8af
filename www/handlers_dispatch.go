package www

import (
	"net/http"

	"linehaul/dispatch"
	"linehaul/store"
)

func (h *Handlers) today() string {
	return h.engine.Dispatcher().Today()
}

func (h *Handlers) apiListDispatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.DispatchFilter{Date: q.Get("date"), Status: q.Get("status"), Limit: queryLimit(r, 100)}
	var ok bool
	if f.TerminalID, ok = h.queryID(w, r, "terminal_id"); !ok {
		return
	}
	if f.RouteID, ok = h.queryID(w, r, "route_id"); !ok {
		return
	}
	if f.Date != "" && !h.validDate(w, "date", f.Date) {
		return
	}
	events, err := h.engine.DB().ListDispatchEvents(r.Context(), f)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, events)
}

func (h *Handlers) apiCreateDispatch(w http.ResponseWriter, r *http.Request) {
	var in dispatch.CreateInput
	if !h.decode(w, r, &in) {
		return
	}
	detail, err := h.engine.Dispatcher().Create(r.Context(), in, h.actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonStatus(w, http.StatusCreated, detail)
}

type generateRequest struct {
	TerminalID int64  `json:"terminal_id"`
	Date       string `json:"date"`
}

func (h *Handlers) apiGenerateDispatch(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Date == "" {
		req.Date = h.today()
	}
	if _, err := h.engine.DB().GetTerminal(r.Context(), req.TerminalID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.engine.Dispatcher().GenerateDaily(r.Context(), req.TerminalID, req.Date, h.actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, res)
}

func (h *Handlers) apiGetDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	detail, err := h.engine.Dispatcher().Get(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, detail)
}

func (h *Handlers) apiUpdateDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var p dispatch.EventPatch
	if !h.decode(w, r, &p) {
		return
	}
	ev, err := h.engine.Dispatcher().Update(r.Context(), id, p, h.actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, ev)
}

func (h *Handlers) apiDeleteDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.Dispatcher().Remove(r.Context(), id, h.actor(r)); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status"`
	dispatch.StatusOptions
}

func (h *Handlers) apiChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.engine.Dispatcher().ChangeStatus(r.Context(), id, req.Status, h.actor(r), req.StatusOptions)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, ev)
}

// assignRequest clears the driver when driver_id is null or absent.
type assignRequest struct {
	DriverID *int64  `json:"driver_id"`
	TruckID  *string `json:"truck_id"`
}

func (h *Handlers) apiAssignDriver(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.engine.Dispatcher().AssignDriver(r.Context(), id, req.DriverID, req.TruckID, h.actor(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, ev)
}

type stopResponse struct {
	Stop         *store.DispatchEventStop `json:"stop"`
	Event        *store.DispatchEvent     `json:"event,omitempty"`
	CascadeError string                   `json:"cascade_error,omitempty"`
}

// apiUpdateStop returns the saved stop with its parent. A failed cascade
// does not undo the stop write, so it is reported alongside a 200.
func (h *Handlers) apiUpdateStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	stopID, ok := h.pathID(w, r, "stopId")
	if !ok {
		return
	}
	var p dispatch.StopPatch
	if !h.decode(w, r, &p) {
		return
	}
	stop, err := h.engine.Dispatcher().UpdateStop(r.Context(), id, stopID, p, h.actor(r))
	if stop == nil {
		h.writeErr(w, r, err)
		return
	}
	resp := stopResponse{Stop: stop}
	if err != nil {
		h.log.Warn().Err(err).Int64("dispatch_id", id).Int64("stop_id", stopID).Msg("stop cascade failed")
		resp.CascadeError = err.Error()
	}
	if ev, gerr := h.engine.DB().GetDispatchEvent(r.Context(), id); gerr == nil {
		resp.Event = ev
	}
	h.jsonOK(w, resp)
}

func (h *Handlers) apiBoard(w http.ResponseWriter, r *http.Request) {
	terminalID, ok := h.queryID(w, r, "terminal_id")
	if !ok {
		return
	}
	if terminalID == 0 {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "terminal_id is required")
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.today()
	}
	if !h.validDate(w, "date", date) {
		return
	}
	boards := h.engine.Board()
	if boards == nil {
		h.jsonError(w, http.StatusServiceUnavailable, codeInternal, "board unavailable")
		return
	}
	b, err := boards.Get(r.Context(), terminalID, date)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, b)
}

func (h *Handlers) apiListAudit(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	if entityType == "" {
		entityType = "dispatch_event"
	}
	entityID, ok := h.queryID(w, r, "entity_id")
	if !ok {
		return
	}
	if entityID == 0 {
		h.jsonError(w, http.StatusBadRequest, codeBadRequest, "entity_id is required")
		return
	}
	entries, err := h.engine.DB().ListAudit(r.Context(), entityType, entityID, queryLimit(r, 200))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.jsonOK(w, entries)
}
