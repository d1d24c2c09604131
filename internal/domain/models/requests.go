package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type DecisionRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
}

type StatsRequest struct {
	Factor   string `query:"factor" json:"factor"`
	Window   string `query:"window" json:"window" default:"1h"`
	Since    string `query:"since" json:"since"`
	MinLevel string `query:"min_level" json:"min_level" default:"NORMAL" validate:"oneof=NORMAL WARNING DEGRADED DISABLED normal warning degraded disabled"`
}

type AlertsRequest struct {
	Window string `query:"window" json:"window" default:"1h"`
}
