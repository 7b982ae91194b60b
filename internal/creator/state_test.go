package creator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestReduceHappyPath(t *testing.T) {
	s := Reduce(State{}, SubmitStarted{ID: "sub-1", Draft: Draft{Name: "n", Description: "d"}})
	assert.True(t, s.Busy)

	s = Reduce(s, GenerateStarted{})
	assert.Equal(t, PhaseGenerating, s.Phase)
	assert.Equal(t, "Making image...", s.Message)

	s = Reduce(s, GenerateSucceeded{Image: GeneratedImage{DataURI: "data:image/png;base64,AA=="}})
	s = Reduce(s, UploadStarted{})
	assert.Equal(t, "Uploading image...", s.Message)

	s = Reduce(s, UploadSucceeded{Metadata: StoredMetadata{CID: "abc123", URL: "https://ipfs.io/ipfs/abc123/metadata.json"}})
	s = Reduce(s, MintStarted{})
	assert.Equal(t, "Waiting to mint...", s.Message)
	s = Reduce(s, MintSent{TxHash: "0x01"})
	s = Reduce(s, MintSucceeded{Record: MintRecord{TxHash: "0x01", TokenID: "1", Block: 3}})

	want := State{
		SubmissionID: "sub-1",
		Phase:        PhaseIdle,
		Busy:         false,
		Message:      "Minted",
		Draft:        Draft{Name: "n", Description: "d"},
		Image:        &GeneratedImage{DataURI: "data:image/png;base64,AA=="},
		Metadata:     &StoredMetadata{CID: "abc123", URL: "https://ipfs.io/ipfs/abc123/metadata.json"},
		Minted:       &MintRecord{TxHash: "0x01", TokenID: "1", Block: 3},
		Outcome:      OutcomeSucceeded,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceFailureClearsBusyAndKeepsArtifacts(t *testing.T) {
	s := Reduce(State{}, SubmitStarted{ID: "sub-2"})
	s = Reduce(s, GenerateStarted{})
	s = Reduce(s, GenerateSucceeded{Image: GeneratedImage{DataURI: "img"}})
	s = Reduce(s, UploadStarted{})

	failure := &Error{Kind: KindNetwork, Stage: PhaseUploading, Msg: "Upload timed out"}
	s = Reduce(s, StageFailed{Err: failure})

	assert.False(t, s.Busy)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, OutcomeFailed, s.Outcome)
	assert.Equal(t, "Upload timed out", s.Message)
	assert.NotNil(t, s.Image)
	assert.Nil(t, s.Metadata)
}

func TestSubmitStartedResetsPreviousRun(t *testing.T) {
	prev := State{
		SubmissionID: "old",
		Image:        &GeneratedImage{},
		Metadata:     &StoredMetadata{},
		Minted:       &MintRecord{},
		Outcome:      OutcomeSucceeded,
		Err:          &Error{Kind: KindWallet},
	}
	s := Reduce(prev, SubmitStarted{ID: "new"})
	assert.Equal(t, State{SubmissionID: "new", Busy: true, Message: "Submitting..."}, s)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	before := State{SubmissionID: "x", Busy: true, Phase: PhaseMinting}
	_ = Reduce(before, MintSucceeded{Record: MintRecord{TxHash: "0x02"}})
	assert.True(t, before.Busy)
	assert.Nil(t, before.Minted)
}

func TestDraftValidate(t *testing.T) {
	cases := []struct {
		draft Draft
		ok    bool
	}{
		{Draft{Name: "n", Description: "d"}, true},
		{Draft{Name: "", Description: "d"}, false},
		{Draft{Name: "n", Description: ""}, false},
		{Draft{Name: "  ", Description: "\t"}, false},
	}
	for _, tc := range cases {
		err := tc.draft.Validate()
		if tc.ok {
			assert.NoError(t, err)
			continue
		}
		assert.True(t, IsKind(err, KindValidation), "draft %+v", tc.draft)
	}
}

func TestProjectHidesResultsWhileBusy(t *testing.T) {
	s := State{
		Busy:     true,
		Phase:    PhaseUploading,
		Message:  "Uploading image...",
		Image:    &GeneratedImage{DataURI: "img"},
		Metadata: &StoredMetadata{URL: "u"},
	}
	v := Project(s, SessionInfo{Account: "0xabc", ChainID: "31337"})
	assert.True(t, v.Busy)
	assert.Equal(t, "Uploading image...", v.Message)
	assert.Empty(t, v.Image)
	assert.Empty(t, v.MetadataURL)
	assert.Equal(t, "0xabc", v.Account)

	s.Busy = false
	v = Project(s, SessionInfo{})
	assert.Equal(t, "img", v.Image)
	assert.Equal(t, "u", v.MetadataURL)
	assert.False(t, v.Minted)
}
