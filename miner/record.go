package miner

import (
	"encoding/json"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/reputation"
)

// JustificationRecord is the replay snapshot taken before log entry Index is
// applied. Record N (one past the last entry) holds the final state.
type JustificationRecord struct {
	Index            uint64            `json:"index"`
	InterimHash      common.Hash       `json:"interimHash"`
	NNodes           uint64            `json:"nNodes"`
	JhLeafValue      []byte            `json:"jhLeafValue"`
	JustUpdatedProof reputation.Bundle `json:"justUpdatedProof"`
	NextUpdateProof  reputation.Bundle `json:"nextUpdateProof"`
	Newest           reputation.Bundle `json:"newestReputation"`
}

func (r *JustificationRecord) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

func decodeRecord(b []byte) (JustificationRecord, error) {
	var r JustificationRecord
	err := json.Unmarshal(b, &r)
	return r, err
}

// String method returns the record as a formatted JSON string
func (r *JustificationRecord) String() string {
	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(jsonData)
}
