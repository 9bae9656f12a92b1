package recipients

import (
	"encoding/json"
)

// RowView is the JSON shape of a row as served to status clients.
type RowView struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Valid     bool   `json:"valid"`
	Amount    string `json:"amount"`
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// View flattens the row's sum types.
func (r Row) View() RowView {
	v := RowView{
		ID:      r.ID.String(),
		Address: r.Destination.String(),
		Amount:  r.Amount,
		State:   r.State.Name(),
	}
	_, v.Valid = r.Address()
	if sig := SignatureOf(r.State); sig != nil {
		v.Signature = sig.String()
	}
	switch st := r.State.(type) {
	case Failed:
		v.Reason = st.Reason
	case Skipped:
		v.Reason = st.Reason
	}
	return v
}

func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.View())
}
