package ledger

import "testing"

func TestAppendAndVerify(t *testing.T) {
	var l Ledger
	l = Append(&l, "agent-a", []byte("genesis"))
	l = Append(&l, "agent-b", []byte("second"))
	l = Append(&l, "agent-a", []byte("third"))

	if len(l.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(l.Entries))
	}
	if err := Verify(l); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	var l Ledger
	l = Append(&l, "agent-a", []byte("genesis"))
	l = Append(&l, "agent-b", []byte("second"))

	l.Entries[0].Payload = []byte("tampered")
	if err := Verify(l); err == nil {
		t.Fatal("Verify() = nil, want error after tampering with entry payload")
	}
}

func TestVerifyDetectsBrokenChain(t *testing.T) {
	var l Ledger
	l = Append(&l, "agent-a", []byte("genesis"))
	l = Append(&l, "agent-b", []byte("second"))

	l.Entries[1].PrevHash = "not-the-real-prev-hash"
	if err := Verify(l); err == nil {
		t.Fatal("Verify() = nil, want error after breaking the chain link")
	}
}

func TestSigners(t *testing.T) {
	var l Ledger
	l = Append(&l, "agent-a", nil)
	l = Append(&l, "agent-b", nil)
	l = Append(&l, "agent-a", nil)

	got := Signers(l)
	want := []AgentID{"agent-a", "agent-b"}
	if len(got) != len(want) {
		t.Fatalf("Signers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Signers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	var l Ledger
	l = Append(&l, "agent-a", []byte("payload"))

	data, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if err := Verify(got); err != nil {
		t.Fatalf("Verify(round-tripped) = %v", err)
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	l, err := Unmarshal(nil)
	if err != nil {
		t.Fatalf("Unmarshal(nil) error = %v", err)
	}
	if len(l.Entries) != 0 {
		t.Fatalf("Unmarshal(nil).Entries = %v, want empty", l.Entries)
	}
}
