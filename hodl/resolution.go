package hodl

// Resolution is the instruction returned to the host by a hook.
type Resolution string

const (
	// ResolutionContinue lets the host proceed as if the plugin were not
	// present.
	ResolutionContinue Resolution = "continue"

	// ResolutionFail fails the htlc back to the sender.
	ResolutionFail Resolution = "fail"

	// ResolutionReject rejects a fully received invoice payment.
	ResolutionReject Resolution = "reject"
)

// HookResult is the wire form of a Resolution.
type HookResult struct {
	Result Resolution `json:"result"`
}

// HookResult returns the wire form of the resolution.
func (r Resolution) HookResult() *HookResult {
	return &HookResult{Result: r}
}
