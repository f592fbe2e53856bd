package governance

// View statuses.
const (
	ViewPending  = "pending"
	ViewReady    = "ready"
	ViewExecuted = "executed"
)

// ProposalView is a proposal shaped for the admin list.
type ProposalView struct {
	Proposal
	Description   string  `json:"description"`
	ApprovalCount int     `json:"approvalCount"`
	Threshold     uint32  `json:"threshold"`
	Progress      float64 `json:"progress"`
	Status        string  `json:"status"`
}

// Summarize derives the list view of p under threshold. Progress is the
// approval ratio capped at 1, and 0 when the threshold is unknown.
func Summarize(p Proposal, threshold uint32) ProposalView {
	v := ProposalView{
		Proposal:      p,
		Description:   p.Action.Description(),
		ApprovalCount: len(p.Approvals),
		Threshold:     threshold,
		Status:        ViewPending,
	}
	if threshold > 0 {
		v.Progress = min(float64(v.ApprovalCount)/float64(threshold), 1)
	}
	switch {
	case p.Executed:
		v.Status = ViewExecuted
	case ReadyToExecute(p, threshold):
		v.Status = ViewReady
	}
	return v
}

// SummarizeAll applies Summarize to each proposal, keeping order.
func SummarizeAll(ps []Proposal, threshold uint32) []ProposalView {
	out := make([]ProposalView, len(ps))
	for i, p := range ps {
		out[i] = Summarize(p, threshold)
	}
	return out
}
