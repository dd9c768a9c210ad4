package domain

// ServiceStatus is a summary of the service's operational state.
type ServiceStatus struct {
	Mode          string `json:"mode"`
	Backend       string `json:"backend"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Markets       uint64 `json:"markets"`
	OpenMarkets   uint64 `json:"open_markets"`
	WSClients     int    `json:"ws_clients"`
}
