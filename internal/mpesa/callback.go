package mpesa

import (
	"encoding/json"
	"fmt"
)

// CallbackResult is the flattened outcome of a gateway result callback.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            float64
	MpesaReceipt      string
	PhoneNumber       string
}

// Completed reports whether the callback signals a successful charge.
func (r *CallbackResult) Completed() bool {
	return r.ResultCode == 0
}

type callbackEnvelope struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes the gateway's STK callback envelope. Metadata items
// are only present on success; their absence is not an error.
func ParseCallback(data []byte) (*CallbackResult, error) {
	var envelope callbackEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("mpesa: decode callback: %w", err)
	}

	cb := envelope.Body.STKCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("mpesa: callback missing checkout request id")
	}

	result := &CallbackResult{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.Amount = v
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.MpesaReceipt = v
			}
		case "PhoneNumber":
			switch v := item.Value.(type) {
			case float64:
				result.PhoneNumber = fmt.Sprintf("%.0f", v)
			case string:
				result.PhoneNumber = v
			}
		}
	}

	return result, nil
}
