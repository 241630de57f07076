package nats

import "testing"

func TestSubjectShape(t *testing.T) {
	s := NewFromConn(nil)

	cases := []struct {
		id   string
		want string
	}{
		{"conv-1", "drover.conv-1.events"},
		{"a.b c", "drover.a-b-c.events"},
		{"wild*card>", "drover.wild-card-.events"},
		{"", "drover._global.events"},
	}
	for _, tc := range cases {
		if got := s.subject(tc.id); got != tc.want {
			t.Errorf("subject(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestWithPrefix(t *testing.T) {
	s := NewFromConn(nil, WithPrefix("agents.prod"))
	if got, want := s.subject("conv-1"), "agents-prod.conv-1.events"; got != want {
		t.Errorf("subject = %q, want %q", got, want)
	}

	s = NewFromConn(nil, WithPrefix(""))
	if got, want := s.subject("conv-1"), "drover.conv-1.events"; got != want {
		t.Errorf("empty prefix: subject = %q, want %q", got, want)
	}
}

func TestCloseLeavesBorrowedConnOpen(t *testing.T) {
	s := NewFromConn(nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close on borrowed conn: %v", err)
	}
}
