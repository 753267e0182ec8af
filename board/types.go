package board

// Row is one dispatch event as shown on a terminal's daily board.
type Row struct {
	DispatchID        int64   `json:"dispatch_id"`
	RouteID           int64   `json:"route_id"`
	RouteName         string  `json:"route_name"`
	Status            string  `json:"status"`
	Priority          string  `json:"priority"`
	DriverID          *int64  `json:"driver_id,omitempty"`
	DriverName        string  `json:"driver_name,omitempty"`
	TruckID           *string `json:"truck_id,omitempty"`
	SubUnitID         *string `json:"sub_unit_id,omitempty"`
	PlannedDeparture  *string `json:"planned_departure,omitempty"`
	StopsTotal        int     `json:"stops_total"`
	StopsDone         int     `json:"stops_done"`
	NeedsAttention    bool    `json:"needs_attention"`
	OnTimePerformance *int    `json:"on_time_performance,omitempty"`
}

// Board is the cached snapshot for one terminal and date.
type Board struct {
	TerminalID int64  `json:"terminal_id"`
	Date       string `json:"date"`
	Rows       []Row  `json:"rows"`
	Source     string `json:"source"` // "redis" or "sql"
}
