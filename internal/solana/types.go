package solana

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus string
}

// Reached reports whether the status satisfies the commitment level.
func (s *SignatureStatus) Reached(commitment string) bool {
	if s == nil {
		return false
	}
	switch commitment {
	case CommitmentFinalized:
		return s.ConfirmationStatus == CommitmentFinalized
	case CommitmentConfirmed:
		return s.ConfirmationStatus == CommitmentConfirmed || s.ConfirmationStatus == CommitmentFinalized
	default:
		return s.ConfirmationStatus != ""
	}
}

// ParseInstructionError extracts the failing instruction index and custom
// program error code from a transaction error value such as
// {"InstructionError":[1,{"Custom":6001}]}.
func ParseInstructionError(txErr interface{}) (index int, code uint32, ok bool) {
	m, isMap := txErr.(map[string]interface{})
	if !isMap {
		return 0, 0, false
	}
	pair, isSlice := m["InstructionError"].([]interface{})
	if !isSlice || len(pair) != 2 {
		return 0, 0, false
	}
	idx, isNum := pair[0].(float64)
	if !isNum {
		return 0, 0, false
	}
	detail, isMap := pair[1].(map[string]interface{})
	if !isMap {
		return int(idx), 0, false
	}
	custom, isNum := detail["Custom"].(float64)
	if !isNum {
		return int(idx), 0, false
	}
	return int(idx), uint32(custom), true
}
