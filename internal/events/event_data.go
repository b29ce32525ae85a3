package events

// EventData is implemented by typed event payloads
// This allows type-safe event data while keeping the bus generic
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// DepositSettledData contains data for DepositSettled events.
// Amounts are 18-decimal fixed-point values rendered as base-10 strings.
type DepositSettledData struct {
	Account      string `json:"account"`
	Amount       string `json:"amount"`
	SharesMinted string `json:"shares_minted"`
	ExchangeRate string `json:"exchange_rate"`
}

// EventType returns the event type for DepositSettledData
func (d *DepositSettledData) EventType() EventType {
	return DepositSettled
}

// WithdrawalSettledData contains data for WithdrawalSettled events
type WithdrawalSettledData struct {
	Account      string `json:"account"`
	SharesBurned string `json:"shares_burned"`
	AssetPaidOut string `json:"asset_paid_out"`
	ExchangeRate string `json:"exchange_rate"`
}

// EventType returns the event type for WithdrawalSettledData
func (d *WithdrawalSettledData) EventType() EventType {
	return WithdrawalSettled
}

// HarvestCompletedData contains data for HarvestCompleted events
type HarvestCompletedData struct {
	Harvested         string `json:"harvested"`
	LifetimeHarvested string `json:"lifetime_harvested"`
	Marker            int64  `json:"marker"`
}

// EventType returns the event type for HarvestCompletedData
func (d *HarvestCompletedData) EventType() EventType {
	return HarvestCompleted
}

// YieldLoopCompletedData contains data for YieldLoopCompleted events
type YieldLoopCompletedData struct {
	Harvested    string `json:"harvested"`
	ProtocolFee  string `json:"protocol_fee"`
	TreasurySkim string `json:"treasury_skim"`
	Deployed     string `json:"deployed"`
	AmountA      string `json:"amount_a"`
	AmountB      string `json:"amount_b"`
	BlendedRate  uint32 `json:"blended_rate_bps"`
	ExchangeRate string `json:"exchange_rate"`
}

// EventType returns the event type for YieldLoopCompletedData
func (d *YieldLoopCompletedData) EventType() EventType {
	return YieldLoopCompleted
}

// EpochSettledData contains data for EpochSettled events
type EpochSettledData struct {
	EpochNumber    int64  `json:"epoch_number"`
	Spent          string `json:"spent"`
	UnitsPurchased string `json:"units_purchased"`
	PartnersPaid   int    `json:"partners_paid"`
}

// EventType returns the event type for EpochSettledData
func (d *EpochSettledData) EventType() EventType {
	return EpochSettled
}

// PartnerChangedData contains data for PartnerAdded and PartnerRemoved events
type PartnerChangedData struct {
	PartnerID    string `json:"partner_id"`
	BoostRateBps uint32 `json:"boost_rate_bps,omitempty"`
	Active       bool   `json:"active"`
}

// EventType returns the event type for PartnerChangedData
func (d *PartnerChangedData) EventType() EventType {
	if d.Active {
		return PartnerAdded
	}
	return PartnerRemoved
}

// DispatchSubmittedData contains data for DispatchSubmitted events
type DispatchSubmittedData struct {
	RequestID   string `json:"request_id"`
	Venue       string `json:"venue"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

// EventType returns the event type for DispatchSubmittedData
func (d *DispatchSubmittedData) EventType() EventType {
	return DispatchSubmitted
}

// ParameterUpdatedData contains data for ParameterUpdated events
type ParameterUpdatedData struct {
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// EventType returns the event type for ParameterUpdatedData
func (d *ParameterUpdatedData) EventType() EventType {
	return ParameterUpdated
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
