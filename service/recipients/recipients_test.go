package recipients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	addrB = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestParseDestination(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantValid bool
		wantText  string
	}{
		{name: "valid address", raw: addrA, wantValid: true, wantText: addrA},
		{name: "surrounding whitespace is trimmed", raw: "  " + addrA + "\t", wantValid: true, wantText: addrA},
		{name: "garbage", raw: "not-an-address", wantValid: false, wantText: "not-an-address"},
		{name: "empty", raw: "", wantValid: false, wantText: ""},
		{name: "too short base58", raw: "abc", wantValid: false, wantText: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ParseDestination(tt.raw)
			_, isValid := d.(Valid)
			assert.Equal(t, tt.wantValid, isValid)
			assert.Equal(t, tt.wantText, d.String())
		})
	}
}

func TestValidateTransition(t *testing.T) {
	sig := solana.Signature{1}
	tests := []struct {
		name string
		from TransferState
		to   TransferState
		ok   bool
	}{
		{"idle to in progress", Idle{}, InProgress{Signature: sig}, true},
		{"idle to skipped", Idle{}, Skipped{Reason: "x"}, true},
		{"idle to failed before submission", Idle{}, Failed{Reason: "x"}, true},
		{"idle to succeeded", Idle{}, Succeeded{Signature: sig}, false},
		{"in progress to succeeded", InProgress{Signature: sig}, Succeeded{Signature: sig}, true},
		{"in progress to failed", InProgress{Signature: sig}, Failed{Signature: &sig, Reason: "x"}, true},
		{"in progress to idle", InProgress{Signature: sig}, Idle{}, false},
		{"succeeded to failed", Succeeded{Signature: sig}, Failed{Reason: "x"}, false},
		{"failed to in progress", Failed{Reason: "x"}, InProgress{Signature: sig}, false},
		{"skipped to in progress", Skipped{Reason: "x"}, InProgress{Signature: sig}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestNewDefaultStore(t *testing.T) {
	s := NewDefaultStore()
	rows := s.Snapshot()

	require.Len(t, rows, DefaultRowCount)
	seen := map[uuid.UUID]bool{}
	for _, r := range rows {
		assert.True(t, r.IsBlank())
		assert.Equal(t, Idle{}, r.State)
		assert.False(t, seen[r.ID], "ids must be unique")
		seen[r.ID] = true
	}
}

func TestStore_TransitionByID(t *testing.T) {
	s := NewStore(
		NewRow(ParseDestination(addrA), "1"),
		NewRow(ParseDestination(addrB), "2"),
	)
	rows := s.Snapshot()
	sig := solana.Signature{7}

	var observed []Row
	s.Subscribe(func(r Row) { observed = append(observed, r) })

	_, err := s.Transition(rows[1].ID, InProgress{Signature: sig})
	require.NoError(t, err)
	_, err = s.Transition(rows[1].ID, Succeeded{Signature: sig})
	require.NoError(t, err)

	got := s.Snapshot()
	assert.Equal(t, Idle{}, got[0].State)
	assert.Equal(t, Succeeded{Signature: sig}, got[1].State)
	require.Len(t, observed, 2)
	assert.Equal(t, rows[1].ID, observed[1].ID)

	_, err = s.Transition(rows[1].ID, Failed{Reason: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Transition(uuid.New(), Skipped{})
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestStore_ConcurrentTransitionsDoNotLoseUpdates(t *testing.T) {
	const n = 64
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = NewRow(ParseDestination(addrA), fmt.Sprint(i+1))
	}
	s := NewStore(rows...)

	var wg sync.WaitGroup
	for i, r := range rows {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			sig := solana.Signature{byte(i)}
			_, err := s.Transition(id, InProgress{Signature: sig})
			assert.NoError(t, err)
			if i%2 == 0 {
				_, err = s.Transition(id, Succeeded{Signature: sig})
			} else {
				_, err = s.Transition(id, Failed{Signature: &sig, Reason: "rejected"})
			}
			assert.NoError(t, err)
		}(i, r.ID)
	}
	wg.Wait()

	for i, r := range s.Snapshot() {
		assert.Equal(t, rows[i].ID, r.ID, "order must be preserved")
		if i%2 == 0 {
			assert.IsType(t, Succeeded{}, r.State)
		} else {
			assert.IsType(t, Failed{}, r.State)
		}
	}
}

func TestStore_UpdateOnlyWhileIdle(t *testing.T) {
	s := NewDefaultStore()
	id := s.Snapshot()[0].ID

	updated, err := s.Update(id, ParseDestination(addrA), "5")
	require.NoError(t, err)
	assert.Equal(t, "5", updated.Amount)

	_, err = s.Transition(id, Skipped{Reason: "test"})
	require.NoError(t, err)

	_, err = s.Update(id, ParseDestination(addrB), "6")
	assert.ErrorIs(t, err, ErrRowLocked)
}

func TestStore_AddRemove(t *testing.T) {
	s := NewStore()
	r := s.Add(ParseDestination(addrA), " 3 ")
	assert.Equal(t, "3", r.Amount)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Remove(r.ID))
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Remove(r.ID), ErrRowNotFound)
}

func TestParseCSV(t *testing.T) {
	doc := "Addresses,Amount\n" +
		addrA + ",1\n" +
		"\n" +
		"bogus,2.5\n" +
		"  " + addrB + " , 0.75 \n" +
		addrA + "\n"

	rows, err := ParseCSVString(doc)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	addr, ok := rows[0].Address()
	require.True(t, ok)
	assert.Equal(t, addrA, addr.String())
	assert.Equal(t, "1", rows[0].Amount)

	_, ok = rows[1].Address()
	assert.False(t, ok)
	assert.Equal(t, "bogus", rows[1].Destination.String())
	assert.Equal(t, "2.5", rows[1].Amount)

	addr, ok = rows[2].Address()
	require.True(t, ok)
	assert.Equal(t, addrB, addr.String())
	assert.Equal(t, "0.75", rows[2].Amount)

	assert.Equal(t, "", rows[3].Amount, "missing amount column yields an empty amount")
}

func TestCSVRoundTrip(t *testing.T) {
	original := []Row{
		NewRow(ParseDestination(addrA), "1"),
		NewRow(ParseDestination("not valid"), "2"),
		NewRow(ParseDestination(addrB), "0.000000001"),
		NewRow(ParseDestination("has,comma"), "3"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, original))
	assert.Contains(t, buf.String(), "Addresses,Amount\n")

	parsed, err := ParseCSV(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, len(original))

	for i := range original {
		assert.Equal(t, original[i].Destination.String(), parsed[i].Destination.String())
		assert.Equal(t, original[i].Amount, parsed[i].Amount)
		_, wantValid := original[i].Address()
		_, gotValid := parsed[i].Address()
		assert.Equal(t, wantValid, gotValid)
		assert.NotEqual(t, original[i].ID, parsed[i].ID, "ids are regenerated on import")
	}
}

func TestWriteCSV_SkipsRowsWithoutAddressText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, NewDefaultStore().Snapshot()))
	assert.Equal(t, "Addresses,Amount\n", buf.String())
}

func TestImportReplacesDefaultRows(t *testing.T) {
	s := NewDefaultStore()
	rows, err := ParseCSVString("Addresses,Amount\n" + addrA + ",1\n" + addrB + ",2")
	require.NoError(t, err)

	s.ReplaceAll(rows)

	got := s.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, addrA, got[0].Destination.String())
	assert.Equal(t, "1", got[0].Amount)
	assert.Equal(t, addrB, got[1].Destination.String())
	assert.Equal(t, "2", got[1].Amount)
	for _, r := range got {
		assert.Equal(t, Idle{}, r.State)
	}
}

func TestRowJSON(t *testing.T) {
	sig := solana.Signature{9}
	r := NewRow(ParseDestination(addrA), "4")
	r.State = Failed{Signature: &sig, Reason: "blockhash not found"}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var view RowView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, r.ID.String(), view.ID)
	assert.True(t, view.Valid)
	assert.Equal(t, "failed", view.State)
	assert.Equal(t, sig.String(), view.Signature)
	assert.Equal(t, "blockhash not found", view.Reason)
}
