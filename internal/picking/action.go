package picking

// ActionPayload carries the optional details of a picker action.
type ActionPayload struct {
	Substitute  *Substitute `json:"substitute,omitempty"`
	WeightGrams *int        `json:"weightGrams,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	ScannedCode string      `json:"scannedCode,omitempty"`
	// OrderID pins the action to one order of the batch. When empty the unit
	// goes to the first order with remaining demand.
	OrderID string `json:"orderId,omitempty"`
}

// Action is one picker submission. Devices queue it verbatim and the server
// accepts the same shape.
type Action struct {
	SessionID         string        `json:"sessionId"`
	OriginalProductID string        `json:"originalProductId"`
	Kind              ActionKind    `json:"kind"`
	Payload           ActionPayload `json:"payload"`
	IdempotencyKey    string        `json:"idempotencyKey,omitempty"`
	Actor             string        `json:"actor,omitempty"`
}

// ActionResult reports a ledger write.
type ActionResult struct {
	OK        bool     `json:"ok"`
	Duplicate bool     `json:"duplicate"`
	EventIDs  []string `json:"eventIds,omitempty"`
}

// ForceCompleted reports how many units the admin path wrote for one order.
type ForceCompleted struct {
	OrderID      string `json:"orderId"`
	AssignmentID string `json:"assignmentId"`
	Inserted     int    `json:"inserted"`
}
