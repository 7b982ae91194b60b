package creator

// View is what the status display renders. It has no state of its own.
type View struct {
	SubmissionID string     `json:"submissionId,omitempty"`
	Phase        string     `json:"phase"`
	Busy         bool       `json:"busy"`
	Message      string     `json:"message,omitempty"`
	Image        string     `json:"image,omitempty"`
	MetadataURL  string     `json:"metadataUrl,omitempty"`
	Minted       bool       `json:"minted"`
	PendingTx    string     `json:"pendingTx,omitempty"`
	TxHash       string     `json:"txHash,omitempty"`
	TokenID      string     `json:"tokenId,omitempty"`
	Outcome      string     `json:"outcome"`
	Error        *ErrorView `json:"error,omitempty"`
	Account      string     `json:"account,omitempty"`
	ChainID      string     `json:"chainId,omitempty"`
}

type ErrorView struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Project maps state onto the display: a spinner message while busy, the
// image once generated, and the metadata link once stored.
func Project(s State, sess SessionInfo) View {
	v := View{
		SubmissionID: s.SubmissionID,
		Phase:        s.Phase.String(),
		Busy:         s.Busy,
		Message:      s.Message,
		PendingTx:    s.PendingTx,
		Outcome:      s.Outcome.String(),
		Account:      sess.Account,
		ChainID:      sess.ChainID,
	}
	if s.Busy {
		return v
	}
	if s.Image != nil {
		v.Image = s.Image.DataURI
	}
	if s.Metadata != nil {
		v.MetadataURL = s.Metadata.URL
	}
	if s.Minted != nil {
		v.Minted = true
		v.TxHash = s.Minted.TxHash
		v.TokenID = s.Minted.TokenID
	}
	if s.Err != nil {
		v.Error = &ErrorView{Kind: s.Err.Kind.String(), Stage: s.Err.Stage.String(), Message: s.Err.Msg}
	}
	return v
}
