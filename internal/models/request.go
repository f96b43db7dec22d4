package models

import "errors"

// AdmitRequest asks for one admission decision. ActiveRequests, when set, is
// reported to the load monitor before the check. An empty ClientID is an
// ordinary key.
type AdmitRequest struct {
	ClientID       string `json:"client_id"`
	ActiveRequests *int64 `json:"active_requests,omitempty"`
}

// LoadRequest updates the load signal. Exactly one of ActiveRequests and
// LoadFactor must be set.
type LoadRequest struct {
	ActiveRequests *int64   `json:"active_requests,omitempty"`
	LoadFactor     *float64 `json:"load_factor,omitempty"`
}

func (r *LoadRequest) Validate() error {
	if r.ActiveRequests == nil && r.LoadFactor == nil {
		return errors.New("one of active_requests or load_factor is required")
	}
	if r.ActiveRequests != nil && r.LoadFactor != nil {
		return errors.New("active_requests and load_factor are mutually exclusive")
	}
	return nil
}
